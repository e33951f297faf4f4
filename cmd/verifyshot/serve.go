package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"verifyshot/internal/config"
	"verifyshot/internal/runner"
	"verifyshot/internal/server"
)

// DefaultPort is the port serve listens on.
const DefaultPort = 8787

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve runs over HTTP and trigger new ones",
		Long: `Serve exposes the workspace over HTTP:

  GET  /health
  GET  /v1/runs              manifests, newest first
  POST /v1/runs              run the scenario (body overrides base_url, path, engine, headless)
  GET  /v1/runs/{id}         manifest
  GET  /v1/runs/{id}/logs    NDJSON run log
  GET  /v1/runs/{id}/report  Markdown report
  GET  /runs/{id}/artifacts/ screenshots and video`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("host", "127.0.0.1", "Address to listen on")
	cmd.Flags().IntP("port", "p", DefaultPort, "Port to listen on")
	cmd.Flags().Bool("read-only", false, "Disable POST /v1/runs")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	readOnly, _ := cmd.Flags().GetBool("read-only")
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	var run server.RunFunc
	if !readOnly {
		run = newRunFunc(cfg, logger)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           server.New(cfg.Workspace, run, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", "http://"+srv.Addr, "workspace", cfg.Workspace)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRunFunc applies request overrides to a copy of cfg and executes a run.
func newRunFunc(cfg *config.Config, logger *slog.Logger) server.RunFunc {
	return func(ctx context.Context, req server.RunRequest) (runner.Result, error) {
		c := *cfg
		c.Steps = append([]config.Step(nil), cfg.Steps...)
		if req.BaseURL != "" {
			c.BaseURL = req.BaseURL
		}
		if req.Path != "" {
			c.Path = req.Path
		}
		if req.Engine != "" {
			c.Engine = req.Engine
		}
		if req.Headless != nil {
			c.Headless = *req.Headless
		}
		if err := c.Validate(); err != nil {
			return runner.Result{}, fmt.Errorf("%w: %w", server.ErrInvalidRequest, err)
		}
		return execute(ctx, &c, logger, os.Stdout)
	}
}
