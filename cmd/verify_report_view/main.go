// Command verify_report_view captures the report view with the default
// fixture and scenario. It takes no arguments and exits non-zero on failure.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"verifyshot/internal/browser"
	"verifyshot/internal/config"
	"verifyshot/internal/runner"
)

func main() {
	cfg := config.NewConfig()
	cfg.HistoryDir = ""
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	engine, err := browser.New(cfg.Engine, logger)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	res, err := runner.Run(ctx, runner.Options{
		Config: cfg,
		Engine: engine,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("verification failed: %v", err)
	}

	for _, c := range res.Manifest.Captures() {
		log.Printf("Captured %s", c.Output)
	}
}
