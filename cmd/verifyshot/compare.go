package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"verifyshot/internal/config"
	"verifyshot/internal/history"
	"verifyshot/internal/imgdiff"
	"verifyshot/internal/runner"
)

// Expectations accepted by --expect.
const (
	expectAny       = "any"
	expectIdentical = "identical"
	expectDifferent = "different"
)

// ErrExpectationFailed is returned when --expect does not hold.
var ErrExpectationFailed = errors.New("comparison expectation failed")

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <capture-a> <capture-b>",
		Short: "Pixel-diff two captures",
		Long: `Compare decodes two PNG captures and reports how many pixels differ.

A capture is either a PNG path or <run>:<label>, where <run> is a run id or
"latest" (the newest run in the workspace) and <label> is a screenshot label
such as 01-server-list.`,
		Example: `  # Repeated runs should render the list identically
  verifyshot compare <run-a>:01-server-list <run-b>:01-server-list --expect identical

  # Selecting a server must change the page
  verifyshot compare latest:01-server-list latest:02-server-selected --expect different`,
		Args: cobra.ExactArgs(2),
		RunE: runCompare,
	}
	cmd.Flags().Uint8("tolerance", 0, "Per-channel difference (0-255) still treated as equal")
	cmd.Flags().String("mask", "", "Write a PNG mask of the changed pixels to this path")
	cmd.Flags().String("expect", expectAny, "Fail unless the captures are: any, identical or different")
	return cmd
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tolerance, _ := cmd.Flags().GetUint8("tolerance")
	mask, _ := cmd.Flags().GetString("mask")
	expect, _ := cmd.Flags().GetString("expect")
	switch expect {
	case expectAny, expectIdentical, expectDifferent:
	default:
		return fmt.Errorf("invalid --expect %q: use any, identical or different", expect)
	}

	ctx := cmd.Context()
	pathA, err := resolveCapture(ctx, cfg, args[0])
	if err != nil {
		return err
	}
	pathB, err := resolveCapture(ctx, cfg, args[1])
	if err != nil {
		return err
	}

	res, err := imgdiff.CompareFiles(ctx, pathA, pathB, tolerance)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\nchanged %d of %d pixels (%.4f%%)",
		pathA, pathB, res.Changed, res.Total(), res.Ratio()*100)
	if !res.Identical() {
		fmt.Fprintf(cmd.OutOrStdout(), " within %v", res.Bounds)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	if mask != "" {
		if err := res.WriteMask(mask); err != nil {
			return fmt.Errorf("write mask: %w", err)
		}
	}

	switch {
	case expect == expectIdentical && !res.Identical():
		return fmt.Errorf("%w: expected identical captures", ErrExpectationFailed)
	case expect == expectDifferent && res.Identical():
		return fmt.Errorf("%w: expected different captures", ErrExpectationFailed)
	}
	return nil
}

// resolveCapture turns a PNG path or <run>:<label> into a file path.
func resolveCapture(ctx context.Context, cfg *config.Config, ref string) (string, error) {
	if strings.HasSuffix(strings.ToLower(ref), ".png") {
		return ref, nil
	}
	runID, label, ok := strings.Cut(ref, ":")
	if !ok || runID == "" || label == "" {
		return "", fmt.Errorf("capture %q: want a .png path or <run>:<label>", ref)
	}

	var (
		runDir string
		err    error
	)
	if runID == "latest" {
		runDir, err = latestRunDir(cfg.Workspace)
	} else {
		runDir, err = findRunDir(ctx, cfg, runID)
	}
	if err != nil {
		return "", err
	}

	m, err := runner.LoadManifest(filepath.Join(runDir, "run.json"))
	if err != nil {
		return "", fmt.Errorf("run %s: %w", filepath.Base(runDir), err)
	}
	c, ok := m.Capture(label)
	if !ok {
		return "", fmt.Errorf("run %s has no capture %q", m.RunID, label)
	}
	return filepath.Join(runDir, "artifacts", c.Screenshot), nil
}

// latestRunDir returns the newest run of the workspace. The history database
// is shared between workspaces and skips --no-history runs, so it is not
// consulted here.
func latestRunDir(workspace string) (string, error) {
	ids, err := runner.FindRuns(workspace)
	if err != nil || len(ids) == 0 {
		return "", fmt.Errorf("no runs found in %s", workspace)
	}
	return filepath.Join(workspace, "runs", ids[len(ids)-1]), nil
}

// findRunDir looks for runID in the workspace first, then in the history
// database, whose rows carry the absolute run directory.
func findRunDir(ctx context.Context, cfg *config.Config, runID string) (string, error) {
	dir := filepath.Join(cfg.Workspace, "runs", runID)
	if _, err := os.Stat(filepath.Join(dir, "run.json")); err == nil {
		return dir, nil
	}
	if cfg.HistoryDir == "" {
		return "", fmt.Errorf("run %s not found in %s", runID, cfg.Workspace)
	}
	db, err := history.Open(cfg.HistoryDir)
	if err != nil {
		return "", err
	}
	defer db.Close()
	r, err := db.Get(ctx, runID)
	if err != nil {
		return "", err
	}
	return r.RunDir, nil
}
