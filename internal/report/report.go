// Package report renders a Markdown summary of a verification run so the
// captures can be reviewed side by side.
package report

import (
	"io"
	"path"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"verifyshot/internal/runner"
)

// FileName is the report file written into the run directory.
const FileName = "REPORT.md"

// Write renders m as Markdown. Image links are relative to the run directory.
func Write(w io.Writer, m runner.Manifest) error {
	md := markdown.NewMarkdown(w)

	md.H1("Visual verification run")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + m.RunID + "`"},
			{"Target", m.TargetURL},
			{"Engine", m.Engine},
			{"Started", m.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", m.Duration().Round(time.Millisecond).String()},
			{"Fixtures", strconv.Itoa(m.Fixtures)},
			{"Console messages", strconv.Itoa(m.ConsoleMessages)},
			{"Status", statusText(m)},
		},
	})
	md.PlainText("")

	switch {
	case m.Status == runner.StatusFailed:
		md.Cautionf("Run failed: %s", m.Error)
	case len(m.Captures()) == 0:
		md.Note("The scenario took no screenshots.")
	default:
		md.Tip("All steps completed. Review the captures below.")
	}

	writeSteps(md, m)
	writeCaptures(md, m)

	if m.VideoWebP != "" || m.VideoWebM != "" {
		md.H2("Video")
		md.PlainText("")
		if m.VideoWebP != "" {
			md.PlainText("![run](" + path.Join("artifacts", m.VideoWebP) + ")")
		} else {
			md.PlainText("[recording](" + path.Join("artifacts", m.VideoWebM) + ")")
		}
		md.PlainText("")
	}

	return md.Build()
}

func statusText(m runner.Manifest) string {
	if m.Status == runner.StatusFailed {
		return "❌ Failed"
	}
	return "✅ Passed"
}

func writeSteps(md *markdown.Markdown, m runner.Manifest) {
	md.H2("Steps")
	md.PlainText("")
	if len(m.Steps) == 0 {
		md.PlainText("No scenario step ran.")
		md.PlainText("")
		return
	}
	rows := make([][]string, 0, len(m.Steps))
	for _, s := range m.Steps {
		result := "ok"
		if s.Error != "" {
			result = s.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Index),
			s.Name,
			strconv.FormatInt(s.DurationMS, 10) + " ms",
			result,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Step", "Duration", "Result"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeCaptures(md *markdown.Markdown, m runner.Manifest) {
	captures := m.Captures()
	if len(captures) == 0 {
		return
	}
	md.H2("Captures")
	md.PlainText("")
	for _, c := range captures {
		md.H3(c.Label)
		md.PlainText("")
		md.PlainText("![" + c.Label + "](" + path.Join("artifacts", c.Screenshot) + ")")
		md.PlainText("")
		if c.DOMSnapshot != "" {
			md.PlainText("DOM snapshot: [" + c.DOMSnapshot + "](" + path.Join("artifacts", c.DOMSnapshot) + ")")
			md.PlainText("")
		}
	}
}
