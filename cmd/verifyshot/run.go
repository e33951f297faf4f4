package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"verifyshot/internal/browser"
	"verifyshot/internal/config"
	"verifyshot/internal/history"
	"verifyshot/internal/report"
	"verifyshot/internal/runner"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the verification scenario once",
		Long: `Run seeds the fixture into local storage, opens the target page, waits for
the readiness marker and walks the scenario, saving a screenshot at each
capture step. Captures are written to the output directory (overwritten every
run) and kept under runs/<id>/ with a manifest, an NDJSON log and REPORT.md.`,
		Example: `  verifyshot run
  verifyshot run --base-url http://127.0.0.1:4173 --path /report/my.server.com
  verifyshot run --engine rod --dom`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	cmd.Flags().String("engine", config.DefaultEngine, "Browser engine: playwright or rod")
	cmd.Flags().String("base-url", config.DefaultBaseURL, "Base URL of the app under test")
	cmd.Flags().String("path", config.DefaultPath, "Path of the page under test")
	cmd.Flags().StringP("out", "o", config.DefaultOutputDir, "Directory for the screenshots")
	cmd.Flags().Duration("ready-timeout", config.DefaultReadyTimeout, "How long to wait for the readiness marker")
	cmd.Flags().Bool("headless", true, "Run the browser headless")
	cmd.Flags().Bool("install", true, "Install the Playwright browser before launching")
	cmd.Flags().Bool("full-page", false, "Capture the full scrollable page")
	cmd.Flags().Bool("video", false, "Record a video of the run and convert it to WebP")
	cmd.Flags().Bool("dom", false, "Save a DOM snapshot next to each screenshot")
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := execute(ctx, cfg, logger, cmd.OutOrStdout())
	if res.RunID == "" {
		return err
	}

	captures := res.Manifest.Captures()
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s failed after %d capture(s): see %s\n",
			res.RunID, len(captures), filepath.Join(res.RunDir, report.FileName))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s passed: %d capture(s) in %s\n", res.RunID, len(captures), cfg.OutputDir)
	for _, c := range captures {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", c.Output)
	}
	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine, _ = flags.GetString("engine")
	}
	if flags.Changed("base-url") {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("path") {
		cfg.Path, _ = flags.GetString("path")
	}
	if flags.Changed("out") {
		cfg.OutputDir, _ = flags.GetString("out")
	}
	if flags.Changed("ready-timeout") {
		cfg.ReadyTimeout, _ = flags.GetDuration("ready-timeout")
	}
	if flags.Changed("headless") {
		cfg.Headless, _ = flags.GetBool("headless")
	}
	if flags.Changed("install") {
		cfg.InstallBrowsers, _ = flags.GetBool("install")
	}
	if flags.Changed("full-page") {
		cfg.FullPage, _ = flags.GetBool("full-page")
	}
	if flags.Changed("video") {
		cfg.RecordVideo, _ = flags.GetBool("video")
	}
	if flags.Changed("dom") {
		cfg.DOMSnapshots, _ = flags.GetBool("dom")
	}
	if noHistory, _ := flags.GetBool("no-history"); noHistory {
		cfg.HistoryDir = ""
	}
	return cfg.Validate()
}

// execute runs the scenario, writes REPORT.md and records the run in history.
// Report and history failures are logged, not returned.
func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger, console io.Writer) (runner.Result, error) {
	engine, err := browser.New(cfg.Engine, logger)
	if err != nil {
		return runner.Result{}, err
	}
	return executeWith(ctx, cfg, engine, logger, console)
}

func executeWith(ctx context.Context, cfg *config.Config, engine browser.Engine, logger *slog.Logger, console io.Writer) (runner.Result, error) {
	res, runErr := runner.Run(ctx, runner.Options{
		Config:  cfg,
		Engine:  engine,
		Console: console,
		Logger:  logger,
	})
	if res.RunID == "" {
		return res, runErr
	}

	if err := writeReport(res); err != nil {
		logger.Warn("write report failed", "run_id", res.RunID, "error", err)
	}
	if cfg.HistoryDir != "" {
		if err := recordHistory(context.WithoutCancel(ctx), cfg.HistoryDir, res); err != nil {
			logger.Warn("record history failed", "run_id", res.RunID, "error", err)
		}
	}
	return res, runErr
}

func writeReport(res runner.Result) error {
	f, err := os.Create(filepath.Join(res.RunDir, report.FileName))
	if err != nil {
		return err
	}
	if err := report.Write(f, res.Manifest); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func recordHistory(ctx context.Context, dir string, res runner.Result) error {
	if abs, err := filepath.Abs(res.RunDir); err == nil {
		res.RunDir = abs
	}
	db, err := history.Open(dir)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Record(ctx, res)
}
