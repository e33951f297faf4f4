package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"verifyshot/internal/fixture"
)

// Playwright runs sessions on Chromium through playwright-go.
type Playwright struct {
	logger *slog.Logger
}

func (e *Playwright) Name() string { return "playwright" }

// Open installs Chromium if asked, starts the driver, launches a headless
// browser and creates a context carrying the storage state.
func (e *Playwright) Open(ctx context.Context, opts SessionOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Install {
		e.logger.Info("installing playwright browsers")
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	s := &playwrightSession{pw: pw, logger: e.logger}

	s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     []string{"--disable-dev-shm-usage"},
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport:     &playwright.Size{Width: opts.Width, Height: opts.Height},
		StorageState: storageState(opts.Storage),
	}
	if opts.VideoDir != "" {
		ctxOpts.RecordVideo = &playwright.RecordVideo{
			Dir:  opts.VideoDir,
			Size: &playwright.Size{Width: opts.Width, Height: opts.Height},
		}
	}
	s.context, err = s.browser.NewContext(ctxOpts)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("new context: %w", err)
	}
	if opts.NavigationTimeout > 0 {
		s.context.SetDefaultNavigationTimeout(ms(opts.NavigationTimeout))
	}

	s.page, err = s.context.NewPage()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	s.video = s.page.Video()
	return s, nil
}

func storageState(st fixture.StorageState) *playwright.OptionalStorageState {
	if len(st.Origins) == 0 {
		return nil
	}
	out := &playwright.OptionalStorageState{}
	for _, o := range st.Origins {
		origin := playwright.Origin{Origin: o.Origin}
		for _, e := range o.LocalStorage {
			origin.LocalStorage = append(origin.LocalStorage, playwright.NameValue{Name: e.Name, Value: e.Value})
		}
		out.Origins = append(out.Origins, origin)
	}
	return out
}

type playwrightSession struct {
	logger  *slog.Logger
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	video   playwright.Video

	closeOnce sync.Once
	closeErr  error
}

func (s *playwrightSession) OnConsole(fn func(text string)) {
	s.page.OnConsole(func(msg playwright.ConsoleMessage) {
		fn(msg.Text())
	})
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.page.Goto(url); err != nil {
		return s.wrap("navigate", err)
	}
	return nil
}

func (s *playwrightSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(ms(timeout)),
	}); err != nil {
		return s.wrap("wait for "+selector, err)
	}
	return nil
}

func (s *playwrightSession) ClickText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.page.Locator("text=" + text).Click(); err != nil {
		return s.wrap("click text "+text, err)
	}
	return nil
}

func (s *playwrightSession) ClickWithin(ctx context.Context, item, hasText, control string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := s.page.Locator(item, playwright.PageLocatorOptions{HasText: hasText}).Locator("text=" + control)
	if err := loc.Click(); err != nil {
		return s.wrap(fmt.Sprintf("click %s in %s %q", control, item, hasText), err)
	}
	return nil
}

func (s *playwrightSession) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	}); err != nil {
		return s.wrap("screenshot", err)
	}
	return nil
}

func (s *playwrightSession) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Content()
}

func (s *playwrightSession) CountText(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.page.GetByText(text).Count()
}

func (s *playwrightSession) VideoPath() (string, error) {
	if s.video == nil {
		return "", ErrUnsupported
	}
	return s.video.Path()
}

// Close tears down page, context, browser and driver. The errors of every
// step are joined.
func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.page != nil {
			errs = append(errs, s.page.Close())
		}
		if s.context != nil {
			errs = append(errs, s.context.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		if s.pw != nil {
			errs = append(errs, s.pw.Stop())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *playwrightSession) wrap(op string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return timeoutErr(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func ms(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
