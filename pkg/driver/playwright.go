package driver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/vigil/pkg/detector"
	"github.com/entrhq/vigil/pkg/logging"
)

// PlaywrightFactory creates Chromium sessions through Playwright. One
// Playwright process serves all sessions of a run; each New call
// launches a fresh browser so attempts never share state.
type PlaywrightFactory struct {
	opts Options
	log  *logging.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	started bool
}

// NewPlaywrightFactory creates a factory with the given session
// options. The Playwright runtime is started lazily on the first New.
func NewPlaywrightFactory(opts Options) *PlaywrightFactory {
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = DefaultTimeout
	}

	log, _ := logging.New("driver")
	return &PlaywrightFactory{opts: opts, log: log}
}

func (f *PlaywrightFactory) ensureStarted() (*playwright.Playwright, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return f.pw, nil
	}

	// Discard driver output; vigil's own logs are the audit trail.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	f.pw = pw
	f.started = true
	return pw, nil
}

// New launches a fresh browser, context and page. Any failure is
// wrapped in a CreationError so the guardian can classify it as
// non-retryable.
func (f *PlaywrightFactory) New() (Driver, error) {
	pw, err := f.ensureStarted()
	if err != nil {
		return nil, &CreationError{Cause: err}
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.opts.Headless),
	}
	if len(f.opts.BrowserArgs) > 0 {
		launchOpts.Args = f.opts.BrowserArgs
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, &CreationError{Cause: fmt.Errorf("failed to launch browser: %w", err)}
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  f.opts.Viewport.Width,
			Height: f.opts.Viewport.Height,
		},
	})
	if err != nil {
		browser.Close()
		return nil, &CreationError{Cause: fmt.Errorf("failed to create context: %w", err)}
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, &CreationError{Cause: fmt.Errorf("failed to create page: %w", err)}
	}

	page.SetDefaultTimeout(f.opts.DefaultTimeout)

	drv := &playwrightDriver{
		browser:      browser,
		context:      context,
		page:         page,
		artifactsDir: f.opts.ArtifactsDir,
		log:          f.log,
	}

	// Console errors/warnings and uncaught page exceptions are recorded
	// as they happen and surfaced through the next snapshot.
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		kind := msg.Type()
		if kind == "error" || kind == "warning" {
			drv.recordConsoleError(fmt.Sprintf("%s: %s", kind, msg.Text()))
		}
	})
	page.OnPageError(func(pageErr error) {
		drv.recordPageError(pageErr.Error())
	})

	f.log.Debugf("session created (headless=%v)", f.opts.Headless)

	return drv, nil
}

// Shutdown stops the shared Playwright runtime. Call once at the end
// of the run, after every session has been closed.
func (f *PlaywrightFactory) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started || f.pw == nil {
		return nil
	}
	f.started = false
	if err := f.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type playwrightDriver struct {
	browser      playwright.Browser
	context      playwright.BrowserContext
	page         playwright.Page
	artifactsDir string
	log          *logging.Logger
	closeOnce    sync.Once

	// eventsMu guards the listener-fed error buffers; listeners run on
	// playwright's dispatch goroutine while snapshots read from the
	// monitor's.
	eventsMu      sync.Mutex
	consoleErrors []string
	pageErrors    []string
}

func (d *playwrightDriver) recordConsoleError(msg string) {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	d.consoleErrors = append(d.consoleErrors, msg)
	d.log.Warnf("console error: %s", msg)
}

func (d *playwrightDriver) recordPageError(msg string) {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	d.pageErrors = append(d.pageErrors, msg)
	d.log.Warnf("page error: %s", msg)
}

func (d *playwrightDriver) drainEvents() (console, page []string) {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	console = append(console, d.consoleErrors...)
	page = append(page, d.pageErrors...)
	return console, page
}

func (d *playwrightDriver) Navigate(url string, opts NavigateOptions) error {
	gotoOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = &opts.Timeout
	}

	if _, err := d.page.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) Click(opts ClickOptions) error {
	clickOpts := playwright.PageClickOptions{}
	if opts.Timeout > 0 {
		clickOpts.Timeout = &opts.Timeout
	}

	if err := d.page.Click(opts.Selector, clickOpts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) Fill(opts FillOptions) error {
	fillOpts := playwright.PageFillOptions{}
	if opts.Timeout > 0 {
		fillOpts.Timeout = &opts.Timeout
	}

	if err := d.page.Fill(opts.Selector, opts.Value, fillOpts); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) WaitFor(opts WaitOptions) error {
	waitOpts := playwright.PageWaitForSelectorOptions{}
	if opts.State != "" {
		state := playwright.WaitForSelectorState(opts.State)
		waitOpts.State = &state
	}
	if opts.Timeout > 0 {
		waitOpts.Timeout = &opts.Timeout
	}

	if _, err := d.page.WaitForSelector(opts.Selector, waitOpts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) CurrentURL() string {
	return d.page.URL()
}

// Snapshot enumerates the presence of every selector the spec cares
// about, extracts the page's visible text, and attaches the console
// and page errors recorded so far. Selector queries that error are
// treated as capture failures, not as absence.
func (d *playwrightDriver) Snapshot(spec *detector.Spec) (*detector.Snapshot, error) {
	present := make(map[string]bool)
	for _, sel := range spec.Selectors() {
		el, err := d.page.QuerySelector(sel)
		if err != nil {
			return nil, fmt.Errorf("selector query %q failed: %w", sel, err)
		}
		present[sel] = el != nil
	}

	content, err := d.page.Content()
	if err != nil {
		return nil, fmt.Errorf("page content capture failed: %w", err)
	}
	text, err := detector.VisibleText(content)
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}

	consoleErrors, pageErrors := d.drainEvents()

	return &detector.Snapshot{
		Present:       present,
		Text:          text,
		ConsoleErrors: consoleErrors,
		PageErrors:    pageErrors,
		TakenAt:       time.Now(),
	}, nil
}

func (d *playwrightDriver) Screenshot() (string, error) {
	dir := d.artifactsDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	path := filepath.Join(dir, uuid.New().String()+".png")
	_, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}

	d.log.Debugf("screenshot saved: %s", path)
	return path, nil
}

// Close tears resources down page-first, mirroring creation order in
// reverse. Errors are ignored so cleanup always completes.
func (d *playwrightDriver) Close() error {
	d.closeOnce.Do(func() {
		_ = d.page.Close()
		_ = d.context.Close()
		_ = d.browser.Close()
		d.log.Debugf("session closed")
	})
	return nil
}
