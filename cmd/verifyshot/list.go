package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"verifyshot/internal/history"
	"verifyshot/internal/runner"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Long: `List reads the run history database. When history is disabled it falls
back to the run directories found in the workspace.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().Bool("json", false, "Print runs as JSON")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	var runs []history.Run
	if cfg.HistoryDir != "" {
		db, err := history.Open(cfg.HistoryDir)
		if err != nil {
			return err
		}
		defer db.Close()
		if runs, err = db.List(cmd.Context(), limit); err != nil {
			return err
		}
	} else {
		if runs, err = workspaceRuns(cfg.Workspace, limit); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tENGINE\tSTATUS\tTARGET")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Engine,
			r.Status,
			r.TargetURL,
		)
	}
	return tw.Flush()
}

// workspaceRuns reads manifests from workspace/runs when there is no history.
func workspaceRuns(workspace string, limit int) ([]history.Run, error) {
	ids, err := runner.FindRuns(workspace)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var runs []history.Run
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(runs) >= limit {
			break
		}
		m, err := runner.LoadManifest(runner.ManifestPath(workspace, ids[i]))
		if err != nil {
			continue
		}
		runs = append(runs, history.Run{
			ID:              m.RunID,
			StartedAt:       m.StartedAt,
			FinishedAt:      m.FinishedAt,
			TargetURL:       m.TargetURL,
			Engine:          m.Engine,
			Status:          m.Status,
			Error:           m.Error,
			ConsoleMessages: m.ConsoleMessages,
		})
	}
	return runs, nil
}
