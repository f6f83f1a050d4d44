// Package driver defines the session capability vigil runs against: a
// factory that produces fresh, exclusively-owned browser sessions and
// the narrow set of operations workflows and monitors need. The
// production implementation drives Chromium through Playwright; tests
// substitute fakes.
package driver

import "github.com/entrhq/vigil/pkg/detector"

// Factory creates fresh sessions. Each attempt acquires exactly one
// session and releases it before the next attempt starts; sessions are
// never shared or reused across attempts.
type Factory interface {
	// New creates a session. Failure here is non-retryable for the run:
	// it is an environment problem, not a page problem, and is reported
	// as a CreationError.
	New() (Driver, error)
}

// Driver is one live browser session. It is owned by exactly one
// attempt: one workflow executes actions against it while one monitor
// snapshots it. Close is idempotent and must be called on every exit
// path.
type Driver interface {
	// Navigate loads a URL in the session's page.
	Navigate(url string, opts NavigateOptions) error

	// Click clicks the first element matching the selector.
	Click(opts ClickOptions) error

	// Fill fills an input element with a value.
	Fill(opts FillOptions) error

	// WaitFor waits until a selector reaches the requested state.
	WaitFor(opts WaitOptions) error

	// CurrentURL reports the page's current URL.
	CurrentURL() string

	// Snapshot captures a read-only view of the page: presence of each
	// selector the spec enumerates, the visible text, and any console
	// or page errors recorded since the session started. Capture
	// failures indicate a session-level problem, never a violation.
	Snapshot(spec *detector.Spec) (*detector.Snapshot, error)

	// Screenshot saves a full-page capture and returns its artifact
	// reference (a file path).
	Screenshot() (string, error)

	// Close releases the session's resources. Idempotent.
	Close() error
}

// CreationError wraps a failure to create a session. The guardian
// aborts the run instead of retrying when it sees one.
type CreationError struct {
	Cause error
}

func (e *CreationError) Error() string {
	return "failed to create session: " + e.Cause.Error()
}

func (e *CreationError) Unwrap() error { return e.Cause }

// NavigateOptions configures page navigation.
type NavigateOptions struct {
	// WaitUntil specifies when navigation counts as done: "load",
	// "domcontentloaded" or "networkidle".
	WaitUntil string

	// Timeout in milliseconds, 0 for the session default.
	Timeout float64
}

// ClickOptions configures element clicking.
type ClickOptions struct {
	Selector string

	// Timeout in milliseconds, 0 for the session default.
	Timeout float64
}

// FillOptions configures form input filling.
type FillOptions struct {
	Selector string
	Value    string

	// Timeout in milliseconds, 0 for the session default.
	Timeout float64
}

// WaitOptions configures waiting for an element.
type WaitOptions struct {
	Selector string

	// State to wait for: "attached", "detached", "visible", "hidden".
	State string

	// Timeout in milliseconds, 0 for the session default.
	Timeout float64
}

// Viewport is the browser viewport size in pixels.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Options configures sessions produced by a factory.
type Options struct {
	// Headless controls whether the browser runs without a window.
	Headless bool

	// BrowserArgs are extra Chromium launch arguments.
	BrowserArgs []string

	// Viewport sets the page viewport; nil uses the default.
	Viewport *Viewport

	// DefaultTimeout is the default per-operation timeout in
	// milliseconds.
	DefaultTimeout float64

	// ArtifactsDir is where screenshots are written.
	ArtifactsDir string
}

// Default values for session options.
const (
	DefaultTimeout        = 30000.0
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)
