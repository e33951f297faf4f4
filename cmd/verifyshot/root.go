package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"verifyshot/internal/config"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verifyshot",
		Short: "Capture screenshots of UI states for visual verification",
		Long: `verifyshot seeds browser local storage with fixture data, opens the page
under test, waits for it to be ready, performs a short scenario of clicks and
saves a screenshot after each milestone.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Config file (default: ./"+config.DefaultConfigFile+", then XDG config dir)")
	cmd.PersistentFlags().String("workspace", "", "Directory holding runs/ (default: .)")
	cmd.PersistentFlags().String("history-dir", "", "Run history directory (default: XDG data dir)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig builds the configuration: defaults, then the config file, then
// the persistent flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	explicit, _ := flags.GetString("config")
	if path := config.FindConfigFile(explicit); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	} else if explicit != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicit)
	}

	if flags.Changed("workspace") {
		cfg.Workspace, _ = flags.GetString("workspace")
	}
	if flags.Changed("history-dir") {
		cfg.HistoryDir, _ = flags.GetString("history-dir")
	}
	cfg.Verbose, _ = flags.GetBool("verbose")
	return cfg, nil
}

// newLogger returns the console logger. Verbose lowers the level to debug.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
