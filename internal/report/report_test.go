package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyshot/internal/runner"
)

func passedManifest() runner.Manifest {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return runner.Manifest{
		RunID:           "0192-abc",
		StartedAt:       start,
		FinishedAt:      start.Add(2500 * time.Millisecond),
		TargetURL:       "http://localhost:5173/report/dummy.server.com",
		Engine:          "playwright",
		Status:          runner.StatusPassed,
		Fixtures:        3,
		ConsoleMessages: 4,
		Steps: []runner.StepRecord{
			{Index: 1, Kind: "screenshot", Name: "screenshot 01-server-list", Label: "01-server-list", Screenshot: "01-server-list.png", DurationMS: 120},
			{Index: 2, Kind: "click_text", Name: "click server2.com", DurationMS: 40},
			{Index: 3, Kind: "screenshot", Name: "screenshot 02-server-selected", Label: "02-server-selected", Screenshot: "02-server-selected.png", DOMSnapshot: "02-server-selected.html"},
		},
	}
}

func TestWritePassed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, passedManifest()))
	out := buf.String()

	assert.Contains(t, out, "# Visual verification run")
	assert.Contains(t, out, "`0192-abc`")
	assert.Contains(t, out, "http://localhost:5173/report/dummy.server.com")
	assert.Contains(t, out, "2.5s")
	assert.Contains(t, out, "✅ Passed")
	assert.Contains(t, out, "[!TIP]")
	assert.Contains(t, out, "click server2.com")
	assert.Contains(t, out, "![01-server-list](artifacts/01-server-list.png)")
	assert.Contains(t, out, "![02-server-selected](artifacts/02-server-selected.png)")
	assert.Contains(t, out, "[02-server-selected.html](artifacts/02-server-selected.html)")
	assert.NotContains(t, out, "## Video")

	i1 := strings.Index(out, "### 01-server-list")
	i2 := strings.Index(out, "### 02-server-selected")
	assert.True(t, i1 >= 0 && i1 < i2)
}

func TestWriteFailed(t *testing.T) {
	m := passedManifest()
	m.Status = runner.StatusFailed
	m.Error = "ready: readiness marker did not appear within 10s"
	m.Steps = nil

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	out := buf.String()

	assert.Contains(t, out, "❌ Failed")
	assert.Contains(t, out, "[!CAUTION]")
	assert.Contains(t, out, "readiness marker did not appear within 10s")
	assert.Contains(t, out, "No scenario step ran.")
	assert.NotContains(t, out, "## Captures")
}

func TestWriteVideo(t *testing.T) {
	m := passedManifest()
	m.VideoWebM = "video/page.webm"
	m.VideoWebP = "run.webp"

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	assert.Contains(t, buf.String(), "![run](artifacts/run.webp)")
}
