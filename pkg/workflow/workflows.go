package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/entrhq/vigil/pkg/driver"
)

// ActionType identifies a declarative step action.
type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionClick      ActionType = "click"
	ActionFill       ActionType = "fill"
	ActionWaitFor    ActionType = "wait_for"
	ActionScreenshot ActionType = "screenshot"
)

// Action is one declarative step of a Steps workflow.
type Action struct {
	Type     ActionType `yaml:"type" json:"type"`
	Selector string     `yaml:"selector,omitempty" json:"selector,omitempty"`
	Value    string     `yaml:"value,omitempty" json:"value,omitempty"`
	URL      string     `yaml:"url,omitempty" json:"url,omitempty"`

	// State is the wait_for target state: "attached", "detached",
	// "visible", "hidden".
	State string `yaml:"state,omitempty" json:"state,omitempty"`

	// TimeoutMs overrides the session default for this action.
	TimeoutMs float64 `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// Steps is a workflow built from a start URL and a declarative action
// list. It is the bread-and-butter workflow for scripted interactions
// and the one the CLI builds from configuration.
type Steps struct {
	WorkflowName string   `yaml:"name" json:"name"`
	StartURL     string   `yaml:"start_url" json:"start_url"`
	WaitUntil    string   `yaml:"wait_until,omitempty" json:"wait_until,omitempty"`
	Actions      []Action `yaml:"actions" json:"actions"`
}

// Name implements Workflow.
func (s *Steps) Name() string {
	if s.WorkflowName != "" {
		return s.WorkflowName
	}
	return "steps"
}

// Validate rejects malformed step definitions before any attempt runs.
func (s *Steps) Validate() error {
	if s.StartURL == "" {
		return fmt.Errorf("steps workflow requires a start_url")
	}
	for i, a := range s.Actions {
		switch a.Type {
		case ActionNavigate:
			if a.URL == "" {
				return fmt.Errorf("action %d: navigate requires a url", i)
			}
		case ActionClick, ActionWaitFor:
			if a.Selector == "" {
				return fmt.Errorf("action %d: %s requires a selector", i, a.Type)
			}
		case ActionFill:
			if a.Selector == "" {
				return fmt.Errorf("action %d: fill requires a selector", i)
			}
		case ActionScreenshot:
		default:
			return fmt.Errorf("action %d: unknown action type %q", i, a.Type)
		}
	}
	return nil
}

// Execute implements Workflow. The context is checked before every
// action so cancellation takes effect within one action's duration.
func (s *Steps) Execute(ctx context.Context, drv driver.Driver) (*Result, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if err := drv.Navigate(s.StartURL, driver.NavigateOptions{WaitUntil: s.WaitUntil}); err != nil {
		return nil, &ActionError{Action: "navigate " + s.StartURL, Err: err}
	}

	res := &Result{Name: s.Name(), ActionsRun: 1}
	for _, a := range s.Actions {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		if err := s.apply(drv, a, res); err != nil {
			return nil, err
		}
		res.ActionsRun++
	}

	res.FinalURL = drv.CurrentURL()
	return res, nil
}

func (s *Steps) apply(drv driver.Driver, a Action, res *Result) error {
	switch a.Type {
	case ActionNavigate:
		if err := drv.Navigate(a.URL, driver.NavigateOptions{WaitUntil: s.WaitUntil, Timeout: a.TimeoutMs}); err != nil {
			return &ActionError{Action: "navigate " + a.URL, Err: err}
		}
	case ActionClick:
		if err := drv.Click(driver.ClickOptions{Selector: a.Selector, Timeout: a.TimeoutMs}); err != nil {
			return &ActionError{Action: "click " + a.Selector, Err: err}
		}
	case ActionFill:
		if err := drv.Fill(driver.FillOptions{Selector: a.Selector, Value: a.Value, Timeout: a.TimeoutMs}); err != nil {
			return &ActionError{Action: "fill " + a.Selector, Err: err}
		}
	case ActionWaitFor:
		if err := drv.WaitFor(driver.WaitOptions{Selector: a.Selector, State: a.State, Timeout: a.TimeoutMs}); err != nil {
			return &ActionError{Action: "wait_for " + a.Selector, Err: err}
		}
	case ActionScreenshot:
		ref, err := drv.Screenshot()
		if err != nil {
			return &ActionError{Action: "screenshot", Err: err}
		}
		res.Screenshots = append(res.Screenshots, ref)
	}
	return nil
}

// Form navigates to a URL, fills a set of fields and submits. Fields
// are filled in sorted selector order so runs are reproducible.
type Form struct {
	WorkflowName   string            `yaml:"name" json:"name"`
	URL            string            `yaml:"url" json:"url"`
	Fields         map[string]string `yaml:"fields" json:"fields"`
	SubmitSelector string            `yaml:"submit_selector" json:"submit_selector"`
}

// Name implements Workflow.
func (f *Form) Name() string {
	if f.WorkflowName != "" {
		return f.WorkflowName
	}
	return "form"
}

// Validate rejects malformed form definitions before any attempt runs.
func (f *Form) Validate() error {
	if f.URL == "" {
		return fmt.Errorf("form workflow requires a url")
	}
	for sel := range f.Fields {
		if sel == "" {
			return fmt.Errorf("form field selectors must not be empty")
		}
	}
	return nil
}

// Execute implements Workflow.
func (f *Form) Execute(ctx context.Context, drv driver.Driver) (*Result, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if err := drv.Navigate(f.URL, driver.NavigateOptions{}); err != nil {
		return nil, &ActionError{Action: "navigate " + f.URL, Err: err}
	}

	selectors := make([]string, 0, len(f.Fields))
	for sel := range f.Fields {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	run := 1
	for _, sel := range selectors {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		if err := drv.Fill(driver.FillOptions{Selector: sel, Value: f.Fields[sel]}); err != nil {
			return nil, &ActionError{Action: "fill " + sel, Err: err}
		}
		run++
	}

	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	submit := f.SubmitSelector
	if submit == "" {
		submit = "button[type='submit']"
	}
	if err := drv.Click(driver.ClickOptions{Selector: submit}); err != nil {
		return nil, &ActionError{Action: "click " + submit, Err: err}
	}
	run++

	return &Result{Name: f.Name(), ActionsRun: run, FinalURL: drv.CurrentURL()}, nil
}

// Navigation visits a sequence of URLs in order.
type Navigation struct {
	WorkflowName string   `yaml:"name" json:"name"`
	URLs         []string `yaml:"urls" json:"urls"`
	WaitUntil    string   `yaml:"wait_until,omitempty" json:"wait_until,omitempty"`
}

// Name implements Workflow.
func (n *Navigation) Name() string {
	if n.WorkflowName != "" {
		return n.WorkflowName
	}
	return "navigation"
}

// Validate rejects empty url sequences before any attempt runs.
func (n *Navigation) Validate() error {
	if len(n.URLs) == 0 {
		return fmt.Errorf("navigation workflow requires at least one url")
	}
	for i, url := range n.URLs {
		if url == "" {
			return fmt.Errorf("url %d must not be empty", i)
		}
	}
	return nil
}

// Execute implements Workflow.
func (n *Navigation) Execute(ctx context.Context, drv driver.Driver) (*Result, error) {
	run := 0
	for _, url := range n.URLs {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		if err := drv.Navigate(url, driver.NavigateOptions{WaitUntil: n.WaitUntil}); err != nil {
			return nil, &ActionError{Action: "navigate " + url, Err: err}
		}
		run++
	}

	return &Result{Name: n.Name(), ActionsRun: run, FinalURL: drv.CurrentURL()}, nil
}
