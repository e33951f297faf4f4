package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"verifyshot/internal/browser"
	"verifyshot/internal/config"
	"verifyshot/internal/fixture"
)

// ErrReadinessTimeout is returned when the readiness marker never shows up.
var ErrReadinessTimeout = errors.New("readiness marker did not appear")

// ErrTextStillPresent is returned when a step's absent_text is still on the page.
var ErrTextStillPresent = errors.New("text still present")

// PhaseError wraps the failure of one phase of the run.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return e.Phase + ": " + e.Err.Error() }
func (e *PhaseError) Unwrap() error { return e.Err }

type driver struct {
	cfg          *config.Config
	engine       browser.Engine
	log          *slog.Logger
	console      io.Writer
	artifactsDir string
	manifest     *Manifest

	mu       sync.Mutex
	messages int
}

func (d *driver) run(ctx context.Context) error {
	origin, err := d.cfg.SeedOrigin()
	if err != nil {
		return &PhaseError{Phase: "seed", Err: err}
	}
	storage, err := fixture.Seed(origin, d.cfg.StorageKey, d.cfg.Fixtures)
	if err != nil {
		return &PhaseError{Phase: "seed", Err: err}
	}

	opts := browser.SessionOptions{
		Headless:          d.cfg.Headless,
		Width:             d.cfg.Viewport.Width,
		Height:            d.cfg.Viewport.Height,
		Storage:           storage,
		Install:           d.cfg.InstallBrowsers,
		NavigationTimeout: d.cfg.NavigationTimeout,
	}
	if d.cfg.RecordVideo {
		opts.VideoDir = filepath.Join(d.artifactsDir, "video")
	}

	d.log.Info("opening browser session", "scope", "runner", "engine", d.engine.Name(),
		"origin", origin, "fixtures", len(d.cfg.Fixtures))
	sess, err := d.engine.Open(ctx, opts)
	if err != nil {
		return &PhaseError{Phase: "launch", Err: err}
	}
	defer d.teardown(ctx, sess)

	sess.OnConsole(d.relay)

	target := d.cfg.TargetURL()
	d.log.Info("navigating", "scope", "browser", "url", target)
	if err := sess.Navigate(ctx, target); err != nil {
		return &PhaseError{Phase: "navigate", Err: err}
	}

	d.log.Info("waiting for readiness marker", "scope", "browser",
		"selector", d.cfg.ReadySelector, "timeout", d.cfg.ReadyTimeout.String())
	if err := sess.WaitVisible(ctx, d.cfg.ReadySelector, d.cfg.ReadyTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			err = fmt.Errorf("%w within %s: %w", ErrReadinessTimeout, d.cfg.ReadyTimeout, err)
		}
		return &PhaseError{Phase: "ready", Err: err}
	}

	for i, step := range d.cfg.Steps {
		if err := ctx.Err(); err != nil {
			return &PhaseError{Phase: "cancelled", Err: err}
		}
		rec, err := d.step(ctx, sess, i, step)
		d.manifest.Steps = append(d.manifest.Steps, rec)
		if err != nil {
			return &PhaseError{Phase: fmt.Sprintf("step %d (%s)", i+1, step.Name()), Err: err}
		}
	}
	return nil
}

func (d *driver) step(ctx context.Context, sess browser.Session, i int, step config.Step) (StepRecord, error) {
	start := time.Now()
	rec := StepRecord{Index: i + 1, Kind: string(step.Kind), Name: step.Name(), Label: step.Label}
	err := d.do(ctx, sess, step, &rec)
	if err == nil && step.AbsentText != "" {
		err = d.assertAbsent(ctx, sess, step.AbsentText)
	}
	rec.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		rec.Error = err.Error()
		d.log.Warn("step failed", "scope", "action", "step", rec.Index, "name", rec.Name, "error", err)
		return rec, err
	}
	d.log.Info("step done", "scope", "action", "step", rec.Index, "name", rec.Name, "duration_ms", rec.DurationMS)
	return rec, nil
}

func (d *driver) do(ctx context.Context, sess browser.Session, step config.Step, rec *StepRecord) error {
	switch step.Kind {
	case config.StepScreenshot:
		return d.capture(ctx, sess, step.Label, rec)
	case config.StepClickText:
		return sess.ClickText(ctx, step.Text)
	case config.StepClickWithin:
		return sess.ClickWithin(ctx, step.Item, step.HasText, step.Control)
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// capture saves the screenshot in the run directory and copies it to the
// fixed output path.
func (d *driver) capture(ctx context.Context, sess browser.Session, label string, rec *StepRecord) error {
	name := label + ".png"
	path := filepath.Join(d.artifactsDir, name)
	if err := sess.Screenshot(ctx, path, d.cfg.FullPage); err != nil {
		return err
	}
	out := filepath.Join(d.cfg.OutputDir, name)
	if err := copyFile(path, out); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	rec.Screenshot = name
	rec.Output = out
	d.log.Info("captured", "scope", "artifact", "label", label, "path", out)

	if !d.cfg.DOMSnapshots {
		return nil
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		return fmt.Errorf("dom snapshot: %w", err)
	}
	snap := label + ".html"
	if err := os.WriteFile(filepath.Join(d.artifactsDir, snap), []byte(html), 0o644); err != nil {
		return err
	}
	rec.DOMSnapshot = snap
	return nil
}

func (d *driver) assertAbsent(ctx context.Context, sess browser.Session, text string) error {
	n, err := sess.CountText(ctx, text)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %q appears %d time(s)", ErrTextStillPresent, text, n)
	}
	return nil
}

// relay forwards one console message. It runs on the engine's event goroutine.
func (d *driver) relay(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages++
	fmt.Fprintf(d.console, "Browser console: %s\n", text)
	d.log.Debug(text, "scope", "console")
}

func (d *driver) consoleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messages
}

// teardown closes the session on every exit path and then collects the video.
func (d *driver) teardown(ctx context.Context, sess browser.Session) {
	if err := sess.Close(); err != nil {
		d.log.Warn("close browser session", "scope", "runner", "error", err)
	} else {
		d.log.Info("browser session closed", "scope", "runner")
	}
	if !d.cfg.RecordVideo {
		return
	}
	rec, ok := sess.(browser.VideoRecorder)
	if !ok {
		return
	}
	videoPath, err := rec.VideoPath()
	if err != nil {
		d.log.Warn("video path error", "scope", "artifact", "error", err)
		return
	}
	if videoPath == "" {
		d.log.Warn("no video recorded", "scope", "artifact")
		return
	}
	d.manifest.VideoWebM = filepath.Join("video", filepath.Base(videoPath))

	webpPath := filepath.Join(d.artifactsDir, "run.webp")
	// Conversion outlives a cancelled run.
	if err := convertToWebP(context.WithoutCancel(ctx), videoPath, webpPath, d.log); err != nil {
		d.log.Warn("webp conversion failed", "scope", "artifact", "error", err)
		return
	}
	d.manifest.VideoWebP = filepath.Base(webpPath)
	d.log.Info("webp created", "scope", "artifact", "path", webpPath)
}
