package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"verifyshot/internal/fixture"
)

// Default configuration values. They reproduce the report view scenario:
// a Vite dev server on :5173 with three recently tested servers seeded.
const (
	AppName = "verifyshot"

	DefaultBaseURL    = "http://localhost:5173"
	DefaultPath       = "/report/dummy.server.com"
	DefaultStorageKey = "mcp_tested_servers"

	// DefaultReadySelector marks the recent reports panel as rendered.
	DefaultReadySelector = "[data-testid=recent-reports-panel]"
	DefaultReadyTimeout  = 10 * time.Second

	// DefaultNavigationTimeout matches Playwright's own default.
	DefaultNavigationTimeout = 30 * time.Second

	DefaultOutputDir = "jules-scratch/verification"
	DefaultWorkspace = "."
	DefaultEngine    = EnginePlaywright

	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// Supported browser engines.
const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

// StepKind names what a scenario step does.
type StepKind string

const (
	// StepScreenshot saves the page as <label>.png.
	StepScreenshot StepKind = "screenshot"
	// StepClickText clicks the element whose text matches Text.
	StepClickText StepKind = "click_text"
	// StepClickWithin clicks Control inside the first Item containing HasText.
	StepClickWithin StepKind = "click_within"
)

// Step is one action of the verification scenario.
type Step struct {
	Kind    StepKind `yaml:"kind"`
	Label   string   `yaml:"label,omitempty"`
	Text    string   `yaml:"text,omitempty"`
	Item    string   `yaml:"item,omitempty"`
	HasText string   `yaml:"has_text,omitempty"`
	Control string   `yaml:"control,omitempty"`
	// AbsentText, when set, must not appear anywhere on the page after the step.
	AbsentText string `yaml:"absent_text,omitempty"`
}

// Name returns a short human label for logs and manifests.
func (s Step) Name() string {
	switch s.Kind {
	case StepScreenshot:
		return "screenshot " + s.Label
	case StepClickText:
		return "click " + s.Text
	case StepClickWithin:
		return "click " + s.Control + " in " + s.Item + " with " + s.HasText
	default:
		return string(s.Kind)
	}
}

// DefaultSteps captures the list, selects server2.com, then removes server1.com.
func DefaultSteps() []Step {
	return []Step{
		{Kind: StepScreenshot, Label: "01-server-list"},
		{Kind: StepClickText, Text: "server2.com"},
		{Kind: StepScreenshot, Label: "02-server-selected"},
		{Kind: StepClickWithin, Item: "li", HasText: "server1.com", Control: "×"},
		{Kind: StepScreenshot, Label: "03-server-removed"},
	}
}

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config holds every knob of a verification run. It is populated from
// defaults, then the YAML file, then CLI flags.
type Config struct {
	// BaseURL is scheme://host[:port] of the app under test.
	BaseURL string `yaml:"base_url"`
	// Path is appended to BaseURL for navigation.
	Path string `yaml:"path"`
	// Origin receives the seeded storage. Empty means the origin of BaseURL.
	Origin string `yaml:"origin,omitempty"`

	StorageKey string             `yaml:"storage_key"`
	Fixtures   fixture.Collection `yaml:"fixtures"`

	ReadySelector     string        `yaml:"ready_selector"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`

	Steps []Step `yaml:"steps"`

	// OutputDir receives the captures at fixed paths, overwritten every run.
	OutputDir string `yaml:"output_dir"`
	// Workspace holds runs/<id>/ with logs, manifest and copies of artifacts.
	Workspace string `yaml:"workspace"`
	// HistoryDir holds the run history database. Empty disables history.
	HistoryDir string `yaml:"history_dir"`

	Engine          string   `yaml:"engine"`
	Headless        bool     `yaml:"headless"`
	InstallBrowsers bool     `yaml:"install_browsers"`
	Viewport        Viewport `yaml:"viewport"`
	FullPage        bool     `yaml:"full_page"`
	RecordVideo     bool     `yaml:"record_video"`
	DOMSnapshots    bool     `yaml:"dom_snapshots"`

	Verbose bool `yaml:"-"`
}

// NewConfig returns a Config populated with the defaults.
func NewConfig() *Config {
	return &Config{
		BaseURL:           DefaultBaseURL,
		Path:              DefaultPath,
		StorageKey:        DefaultStorageKey,
		Fixtures:          fixture.Default(),
		ReadySelector:     DefaultReadySelector,
		ReadyTimeout:      DefaultReadyTimeout,
		NavigationTimeout: DefaultNavigationTimeout,
		Steps:             DefaultSteps(),
		OutputDir:         DefaultOutputDir,
		Workspace:         DefaultWorkspace,
		HistoryDir:        XDGDataDir(),
		Engine:            DefaultEngine,
		Headless:          true,
		InstallBrowsers:   true,
		Viewport:          Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
	}
}

// TargetURL is the page the driver navigates to.
func (c *Config) TargetURL() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.Path == "" {
		return base
	}
	if !strings.HasPrefix(c.Path, "/") {
		return base + "/" + c.Path
	}
	return base + c.Path
}

// SeedOrigin returns the origin that receives the fixture.
func (c *Config) SeedOrigin() (string, error) {
	if c.Origin != "" {
		return c.Origin, nil
	}
	return fixture.OriginOf(c.BaseURL)
}

// XDGDataDir is where the run history lives by default.
// On Linux: ~/.local/share/verifyshot
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir is searched for the config file after the working directory.
// On Linux: ~/.config/verifyshot
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate returns the first problem found in c.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrNoBaseURL
	}
	if _, err := c.SeedOrigin(); err != nil {
		return ErrInvalidBaseURL
	}
	if c.StorageKey == "" {
		return ErrNoStorageKey
	}
	if c.ReadySelector == "" {
		return ErrNoReadySelector
	}
	if c.ReadyTimeout <= 0 {
		return ErrInvalidReadyTimeout
	}
	if c.NavigationTimeout < 0 {
		return ErrInvalidNavigationTimeout
	}
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	switch c.Engine {
	case EnginePlaywright, EngineRod:
	default:
		return ErrUnknownEngine
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return ErrInvalidViewport
	}
	if len(c.Steps) == 0 {
		return ErrNoSteps
	}
	for _, s := range c.Steps {
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Kind {
	case StepScreenshot:
		if s.Label == "" || strings.ContainsAny(s.Label, `/\`) {
			return &StepError{Step: s, Reason: "screenshot needs a plain file label"}
		}
	case StepClickText:
		if s.Text == "" {
			return &StepError{Step: s, Reason: "click_text needs text"}
		}
	case StepClickWithin:
		if s.Item == "" || s.HasText == "" || s.Control == "" {
			return &StepError{Step: s, Reason: "click_within needs item, has_text and control"}
		}
	default:
		return &StepError{Step: s, Reason: "unknown step kind"}
	}
	return nil
}
