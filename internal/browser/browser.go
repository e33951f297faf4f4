// Package browser drives a headless browser for a verification run. An Engine
// opens one isolated Session with local storage pre-seeded; the Session
// exposes the handful of page actions a scenario needs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"verifyshot/internal/fixture"
)

// ErrTimeout is matched by every error caused by a page wait running out.
var ErrTimeout = errors.New("browser: timeout")

// ErrUnsupported is returned by engines for options they cannot honour.
var ErrUnsupported = errors.New("browser: unsupported by engine")

// SessionOptions configure a new browsing session.
type SessionOptions struct {
	Headless bool
	Width    int
	Height   int
	// Storage is applied before the first navigation.
	Storage fixture.StorageState
	// VideoDir enables video recording when non-empty.
	VideoDir string
	// Install downloads the browser before launching when the engine supports it.
	Install bool
	// NavigationTimeout bounds Navigate. Zero keeps the engine default.
	NavigationTimeout time.Duration
}

// Engine launches browser sessions.
type Engine interface {
	Name() string
	Open(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is one browser process with a single isolated context and page.
// It is used sequentially by one driver. Close releases everything and is
// safe to call more than once.
type Session interface {
	// OnConsole registers fn for every console message the page emits.
	// fn runs on the engine's event goroutine.
	OnConsole(fn func(text string))
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	ClickText(ctx context.Context, text string) error
	ClickWithin(ctx context.Context, item, hasText, control string) error
	Screenshot(ctx context.Context, path string, fullPage bool) error
	HTML(ctx context.Context) (string, error)
	CountText(ctx context.Context, text string) (int, error)
	Close() error
}

// VideoRecorder is implemented by sessions that record video. The path is
// final only after Close.
type VideoRecorder interface {
	VideoPath() (string, error)
}

// New returns the engine registered under name.
func New(name string, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch name {
	case "", "playwright":
		return &Playwright{logger: logger.With("engine", "playwright")}, nil
	case "rod":
		return &Rod{logger: logger.With("engine", "rod")}, nil
	default:
		return nil, fmt.Errorf("browser: unknown engine %q", name)
	}
}

func timeoutErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
}
