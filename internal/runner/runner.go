// Package runner executes a verification run: it seeds the fixture, drives
// the browser through the scenario and leaves screenshots, a manifest and an
// NDJSON log behind.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"verifyshot/internal/browser"
	"verifyshot/internal/config"
)

// Run statuses recorded in the manifest.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// Options configure a run.
type Options struct {
	Config *config.Config
	// Engine overrides the engine named by Config.Engine.
	Engine browser.Engine
	// Console receives the page's console messages. Defaults to stdout.
	Console io.Writer
	// Logger receives progress logs. The run log gets them too.
	Logger *slog.Logger
}

// Result contains the run location and manifest.
type Result struct {
	RunID    string
	RunDir   string
	Manifest Manifest
	LogPath  string
}

// ArtifactPath returns the path of an artifact file inside the run.
func (r Result) ArtifactPath(name string) string {
	return filepath.Join(r.RunDir, "artifacts", name)
}

// Manifest is persisted to run.json.
type Manifest struct {
	RunID           string       `json:"run_id"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	TargetURL       string       `json:"target_url"`
	Engine          string       `json:"engine"`
	Status          string       `json:"status"`
	Error           string       `json:"error,omitempty"`
	Fixtures        int          `json:"fixtures"`
	ConsoleMessages int          `json:"console_messages"`
	Steps           []StepRecord `json:"steps"`
	OutputDir       string       `json:"output_dir"`
	VideoWebM       string       `json:"video_webm,omitempty"`
	VideoWebP       string       `json:"video_webp,omitempty"`
	LogPath         string       `json:"log_path"`
}

// StepRecord is the outcome of one scenario step.
type StepRecord struct {
	Index       int    `json:"index"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
	DOMSnapshot string `json:"dom_snapshot,omitempty"`
	Output      string `json:"output,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// Captures returns the steps that produced a screenshot, in order.
func (m Manifest) Captures() []StepRecord {
	var out []StepRecord
	for _, s := range m.Steps {
		if s.Screenshot != "" {
			out = append(out, s)
		}
	}
	return out
}

// Capture finds the screenshot step with the given label.
func (m Manifest) Capture(label string) (StepRecord, bool) {
	for _, s := range m.Steps {
		if s.Screenshot != "" && s.Label == label {
			return s, true
		}
	}
	return StepRecord{}, false
}

// Duration is the wall time of the run.
func (m Manifest) Duration() time.Duration {
	return m.FinishedAt.Sub(m.StartedAt)
}

// Run executes the configured scenario once. The returned Result is usable
// even when err is non-nil: the manifest then records the failure.
func Run(ctx context.Context, opts Options) (Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return Result{}, errors.New("runner: Config is required")
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}

	workspace := cfg.Workspace
	if workspace == "" {
		cwd, _ := os.Getwd()
		workspace = cwd
	}

	runID := newRunID()
	runDir := filepath.Join(workspace, "runs", runID)
	artifactsDir := filepath.Join(runDir, "artifacts")
	logsDir := filepath.Join(runDir, "logs")
	for _, dir := range []string{artifactsDir, logsDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, err
		}
	}

	logPath := filepath.Join(logsDir, "runner.ndjson")
	logFile, err := os.Create(logPath)
	if err != nil {
		return Result{}, err
	}
	defer logFile.Close()
	logger := newRunLogger(logFile, opts.Logger.Handler()).With("run_id", runID)

	engine := opts.Engine
	if engine == nil {
		engine, err = browser.New(cfg.Engine, opts.Logger)
		if err != nil {
			return Result{}, err
		}
	}

	manifest := Manifest{
		RunID:     runID,
		StartedAt: time.Now(),
		TargetURL: cfg.TargetURL(),
		Engine:    engine.Name(),
		Fixtures:  len(cfg.Fixtures),
		OutputDir: cfg.OutputDir,
		LogPath:   logPath,
	}

	d := &driver{
		cfg:          cfg,
		engine:       engine,
		log:          logger,
		console:      opts.Console,
		artifactsDir: artifactsDir,
		manifest:     &manifest,
	}
	runErr := d.run(ctx)

	manifest.FinishedAt = time.Now()
	manifest.ConsoleMessages = d.consoleCount()
	if runErr != nil {
		manifest.Status = StatusFailed
		manifest.Error = runErr.Error()
		logger.Error("run failed", "scope", "runner", "error", runErr)
	} else {
		manifest.Status = StatusPassed
	}

	if err := writeManifest(filepath.Join(runDir, "run.json"), manifest); err != nil {
		logger.Warn("write manifest failed", "scope", "runner", "error", err)
	}
	logger.Info("run finished", "scope", "runner", "status", manifest.Status, "duration", manifest.Duration().String())

	return Result{
		RunID:    runID,
		RunDir:   runDir,
		Manifest: manifest,
		LogPath:  logPath,
	}, runErr
}

// newRunID returns a time-ordered UUID so run directories sort by start time.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func writeManifest(path string, manifest Manifest) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

// ManifestPath returns where the manifest of runID lives in workspace.
func ManifestPath(workspace, runID string) string {
	return filepath.Join(workspace, "runs", runID, "run.json")
}

// LoadManifest reads a manifest from disk.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// FindRuns returns run ids under workspace/runs, oldest first.
func FindRuns(workspace string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(workspace, "runs"))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
