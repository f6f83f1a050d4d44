package guardian

import (
	"fmt"
	"time"

	"github.com/entrhq/vigil/pkg/detector"
	"github.com/entrhq/vigil/pkg/driver"
	"github.com/entrhq/vigil/pkg/strategy"
)

// Config is the yaml-loadable configuration for one run. The CLI loads
// and validates it; the guardian itself only ever sees the derived
// spec, plan and options.
type Config struct {
	// MaxRetries is the number of restarts allowed after the first
	// attempt; the run makes at most MaxRetries+1 attempts. Zero means
	// a single attempt with no retries.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// PollIntervalMs is the monitor's fixed in-flight polling interval.
	PollIntervalMs int `yaml:"poll_interval_ms" json:"poll_interval_ms"`

	// Backoff selects and parameterizes the restart delay policy.
	Backoff BackoffConfig `yaml:"backoff" json:"backoff"`

	// ScreenshotOnViolation captures a full-page screenshot whenever a
	// violation is detected and attaches it to the evidence.
	ScreenshotOnViolation bool `yaml:"screenshot_on_violation" json:"screenshot_on_violation"`

	// Headless controls whether the browser runs without a window.
	Headless bool `yaml:"headless" json:"headless"`

	// DefaultTimeoutMs is the session default for driver operations.
	DefaultTimeoutMs int `yaml:"default_timeout_ms" json:"default_timeout_ms"`

	// Viewport sets the browser viewport.
	Viewport driver.Viewport `yaml:"viewport" json:"viewport"`

	// BrowserArgs are extra Chromium launch arguments.
	BrowserArgs []string `yaml:"browser_args" json:"browser_args,omitempty"`

	// Rules is the run's allow/deny specification.
	Rules detector.Spec `yaml:"rules" json:"rules"`

	// UseDefaultRules merges the built-in deny list into Rules.
	UseDefaultRules bool `yaml:"use_default_rules" json:"use_default_rules"`

	// Artifacts configures run summary output.
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`
}

// BackoffConfig is the yaml surface for a strategy.Plan. Durations are
// plain millisecond integers so config files stay unit-unambiguous.
type BackoffConfig struct {
	// Kind is "exponential", "linear" or "fixed".
	Kind string `yaml:"kind" json:"kind"`

	BaseMs  int     `yaml:"base_ms" json:"base_ms,omitempty"`
	Factor  float64 `yaml:"factor" json:"factor,omitempty"`
	CapMs   int     `yaml:"cap_ms" json:"cap_ms,omitempty"`
	StepMs  int     `yaml:"step_ms" json:"step_ms,omitempty"`
	FixedMs []int   `yaml:"fixed_ms" json:"fixed_ms,omitempty"`
}

// ArtifactConfig configures run summary artifacts.
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	JSON      bool   `yaml:"json" json:"json"`
	Markdown  bool   `yaml:"markdown" json:"markdown"`
}

// DefaultConfig returns a configuration suitable for most runs:
// exponential backoff, headless browser, screenshots on violation, and
// the built-in deny list enabled.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     3,
		PollIntervalMs: 500,
		Backoff: BackoffConfig{
			Kind:   string(strategy.KindExponential),
			BaseMs: 1000,
			Factor: 2.0,
			CapMs:  60000,
		},
		ScreenshotOnViolation: true,
		Headless:              true,
		DefaultTimeoutMs:      30000,
		Viewport: driver.Viewport{
			Width:  driver.DefaultViewportWidth,
			Height: driver.DefaultViewportHeight,
		},
		UseDefaultRules: true,
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: ".vigil/artifacts",
			JSON:      true,
			Markdown:  true,
		},
	}
}

// Validate checks the whole configuration, including the derived spec
// and plan, so a bad config fails before any attempt starts.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMs)
	}
	if c.DefaultTimeoutMs < 0 {
		return fmt.Errorf("default_timeout_ms cannot be negative")
	}
	if c.Viewport.Width < 100 || c.Viewport.Height < 100 {
		return fmt.Errorf("viewport dimensions must be at least 100px")
	}

	if err := c.Plan().Validate(); err != nil {
		return fmt.Errorf("invalid backoff: %w", err)
	}

	spec := c.Spec()
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	return nil
}

// Plan derives the backoff plan from the configuration. MaxRetries
// counts restarts, so the plan's attempt ceiling is MaxRetries+1.
func (c *Config) Plan() *strategy.Plan {
	plan := &strategy.Plan{
		Kind:        strategy.Kind(c.Backoff.Kind),
		Base:        time.Duration(c.Backoff.BaseMs) * time.Millisecond,
		Factor:      c.Backoff.Factor,
		Cap:         time.Duration(c.Backoff.CapMs) * time.Millisecond,
		Step:        time.Duration(c.Backoff.StepMs) * time.Millisecond,
		MaxAttempts: c.MaxRetries + 1,
	}
	for _, ms := range c.Backoff.FixedMs {
		plan.Delays = append(plan.Delays, time.Duration(ms)*time.Millisecond)
	}
	return plan
}

// Spec derives the violation spec, merging the built-in deny list in
// front of the run's own rules when UseDefaultRules is set.
func (c *Config) Spec() *detector.Spec {
	if !c.UseDefaultRules {
		spec := c.Rules
		return &spec
	}

	base := detector.DefaultSpec()
	return &detector.Spec{
		RequiredPresent:  append([]string{}, c.Rules.RequiredPresent...),
		ForbiddenPresent: append(base.ForbiddenPresent, c.Rules.ForbiddenPresent...),
		ForbiddenText:    append(base.ForbiddenText, c.Rules.ForbiddenText...),
	}
}

// DriverOptions derives the session options for the factory.
func (c *Config) DriverOptions() driver.Options {
	viewport := c.Viewport
	return driver.Options{
		Headless:       c.Headless,
		BrowserArgs:    c.BrowserArgs,
		Viewport:       &viewport,
		DefaultTimeout: float64(c.DefaultTimeoutMs),
		ArtifactsDir:   c.Artifacts.OutputDir,
	}
}

// PollInterval returns the monitor polling interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
