package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"verifyshot/internal/fixture"
)

// rodActionTimeout bounds element lookups, which rod would otherwise retry
// forever. It mirrors Playwright's default action timeout.
const rodActionTimeout = 30 * time.Second

// Rod runs sessions on a local Chrome through go-rod and the DevTools protocol.
type Rod struct {
	logger *slog.Logger
}

func (e *Rod) Name() string { return "rod" }

// Open launches Chrome, connects and opens a blank page with the storage
// seed registered as a new-document script.
func (e *Rod) Open(ctx context.Context, opts SessionOptions) (Session, error) {
	if opts.VideoDir != "" {
		return nil, fmt.Errorf("record video: %w", ErrUnsupported)
	}

	l := launcher.New().Context(ctx).Headless(opts.Headless).Set("disable-dev-shm-usage")
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	s := &rodSession{lnch: l, logger: e.logger, navTimeout: opts.NavigationTimeout}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	s.browser = b

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	s.page = page

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if script := seedScript(opts.Storage); script != "" {
		if _, err := page.EvalOnNewDocument(script); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("seed storage: %w", err)
		}
	}
	return s, nil
}

// seedScript writes the storage state into localStorage on the first document
// loaded for each seeded origin in this tab. Later reloads keep whatever the
// app changed, like a storage-state context would.
func seedScript(st fixture.StorageState) string {
	if len(st.Origins) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("(() => {\n")
	b.WriteString("  if (sessionStorage.getItem('__verifyshot_seeded')) return;\n")
	for _, o := range st.Origins {
		fmt.Fprintf(&b, "  if (location.origin === %s) {\n", jsString(o.Origin))
		for _, e := range o.LocalStorage {
			fmt.Fprintf(&b, "    localStorage.setItem(%s, %s);\n", jsString(e.Name), jsString(e.Value))
		}
		b.WriteString("    sessionStorage.setItem('__verifyshot_seeded', '1');\n")
		b.WriteString("  }\n")
	}
	b.WriteString("})();")
	return b.String()
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// exactText matches an element whose whole visible text is s.
func exactText(s string) string {
	return `^\s*` + regexp.QuoteMeta(s) + `\s*$`
}

type rodSession struct {
	logger     *slog.Logger
	lnch       *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	navTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) OnConsole(fn func(text string)) {
	wait := s.page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		fn(consoleText(e.Args))
	})
	go wait()
}

func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case !a.Value.Nil():
			parts = append(parts, a.Value.Str())
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if s.navTimeout > 0 {
		p = p.Timeout(s.navTimeout)
	}
	if err := p.Navigate(url); err != nil {
		return wrapRod("navigate", err)
	}
	if err := p.WaitLoad(); err != nil {
		return wrapRod("navigate", err)
	}
	return nil
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	p := s.page.Context(ctx).Timeout(timeout)
	el, err := p.Element(selector)
	if err != nil {
		return wrapRod("wait for "+selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return wrapRod("wait for "+selector, err)
	}
	return nil
}

func (s *rodSession) ClickText(ctx context.Context, text string) error {
	p := s.page.Context(ctx).Timeout(rodActionTimeout)
	el, err := p.ElementR("*", exactText(text))
	if err != nil {
		return wrapRod("click text "+text, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return wrapRod("click text "+text, err)
	}
	return nil
}

func (s *rodSession) ClickWithin(ctx context.Context, item, hasText, control string) error {
	op := fmt.Sprintf("click %s in %s %q", control, item, hasText)
	p := s.page.Context(ctx).Timeout(rodActionTimeout)
	row, err := p.ElementR(item, regexp.QuoteMeta(hasText))
	if err != nil {
		return wrapRod(op, err)
	}
	ctl, err := row.ElementR("*", exactText(control))
	if err != nil {
		return wrapRod(op, err)
	}
	if err := ctl.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return wrapRod(op, err)
	}
	return nil
}

func (s *rodSession) Screenshot(ctx context.Context, path string, fullPage bool) error {
	data, err := s.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return wrapRod("screenshot", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) CountText(ctx context.Context, text string) (int, error) {
	res, err := s.page.Context(ctx).Eval(`(t) => {
		const body = document.body ? document.body.innerText : "";
		return t === "" ? 0 : body.split(t).length - 1;
	}`, text)
	if err != nil {
		return 0, wrapRod("count text", err)
	}
	return res.Value.Int(), nil
}

// Close closes the browser and waits for the Chrome process to exit.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.lnch != nil {
			s.lnch.Kill()
			s.lnch.Cleanup()
		}
	})
	return s.closeErr
}

func wrapRod(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutErr(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
