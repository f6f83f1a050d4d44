package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/vigil/pkg/detector"
	"github.com/entrhq/vigil/pkg/driver"
)

// recordingDriver records every action a workflow performs against it
// and optionally fails a chosen action.
type recordingDriver struct {
	actions []string

	failAction string
	failErr    error

	url string
}

func (d *recordingDriver) record(action string) error {
	d.actions = append(d.actions, action)
	if d.failAction == action {
		return d.failErr
	}
	return nil
}

func (d *recordingDriver) Navigate(url string, _ driver.NavigateOptions) error {
	d.url = url
	return d.record("navigate " + url)
}

func (d *recordingDriver) Click(opts driver.ClickOptions) error {
	return d.record("click " + opts.Selector)
}

func (d *recordingDriver) Fill(opts driver.FillOptions) error {
	return d.record("fill " + opts.Selector)
}

func (d *recordingDriver) WaitFor(opts driver.WaitOptions) error {
	return d.record("wait_for " + opts.Selector)
}

func (d *recordingDriver) CurrentURL() string { return d.url }

func (d *recordingDriver) Snapshot(*detector.Spec) (*detector.Snapshot, error) {
	return &detector.Snapshot{Present: map[string]bool{}}, nil
}

func (d *recordingDriver) Screenshot() (string, error) {
	if err := d.record("screenshot"); err != nil {
		return "", err
	}
	return "shots/capture.png", nil
}
func (d *recordingDriver) Close() error { return nil }

func TestSteps_Validate(t *testing.T) {
	tests := []struct {
		name    string
		steps   Steps
		wantErr string
	}{
		{
			name:    "missing start url",
			steps:   Steps{},
			wantErr: "start_url",
		},
		{
			name: "navigate without url",
			steps: Steps{
				StartURL: "https://example.com",
				Actions:  []Action{{Type: ActionNavigate}},
			},
			wantErr: "requires a url",
		},
		{
			name: "click without selector",
			steps: Steps{
				StartURL: "https://example.com",
				Actions:  []Action{{Type: ActionClick}},
			},
			wantErr: "requires a selector",
		},
		{
			name: "fill without selector",
			steps: Steps{
				StartURL: "https://example.com",
				Actions:  []Action{{Type: ActionFill, Value: "x"}},
			},
			wantErr: "requires a selector",
		},
		{
			name: "unknown action type",
			steps: Steps{
				StartURL: "https://example.com",
				Actions:  []Action{{Type: "hover", Selector: "#x"}},
			},
			wantErr: "unknown action type",
		},
		{
			name: "valid",
			steps: Steps{
				StartURL: "https://example.com",
				Actions: []Action{
					{Type: ActionFill, Selector: "#name", Value: "ada"},
					{Type: ActionClick, Selector: "#submit"},
					{Type: ActionWaitFor, Selector: ".done", State: "visible"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.steps.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSteps_Execute(t *testing.T) {
	drv := &recordingDriver{}
	steps := &Steps{
		WorkflowName: "checkout",
		StartURL:     "https://shop.example.com",
		Actions: []Action{
			{Type: ActionFill, Selector: "#qty", Value: "2"},
			{Type: ActionClick, Selector: "#buy"},
			{Type: ActionWaitFor, Selector: ".receipt", State: "visible"},
		},
	}
	require.NoError(t, steps.Validate())

	res, err := steps.Execute(context.Background(), drv)
	require.NoError(t, err)

	assert.Equal(t, "checkout", res.Name)
	assert.Equal(t, 4, res.ActionsRun)
	assert.Equal(t, "https://shop.example.com", res.FinalURL)
	assert.Equal(t, []string{
		"navigate https://shop.example.com",
		"fill #qty",
		"click #buy",
		"wait_for .receipt",
	}, drv.actions)
}

func TestSteps_ScreenshotAction(t *testing.T) {
	drv := &recordingDriver{}
	steps := &Steps{
		StartURL: "https://example.com",
		Actions: []Action{
			{Type: ActionScreenshot},
		},
	}
	require.NoError(t, steps.Validate())

	res, err := steps.Execute(context.Background(), drv)
	require.NoError(t, err)

	assert.Equal(t, 2, res.ActionsRun)
	assert.Equal(t, []string{"shots/capture.png"}, res.Screenshots)
}

func TestSteps_ExecuteActionFailure(t *testing.T) {
	drv := &recordingDriver{
		failAction: "click #buy",
		failErr:    fmt.Errorf("element not found"),
	}
	steps := &Steps{
		StartURL: "https://shop.example.com",
		Actions: []Action{
			{Type: ActionClick, Selector: "#buy"},
			{Type: ActionWaitFor, Selector: ".receipt"},
		},
	}

	res, err := steps.Execute(context.Background(), drv)
	assert.Nil(t, res)
	require.Error(t, err)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, "click #buy", actionErr.Action)
	assert.ErrorContains(t, actionErr.Err, "element not found")

	// Execution stops at the failed action.
	assert.Equal(t, []string{
		"navigate https://shop.example.com",
		"click #buy",
	}, drv.actions)
}

func TestSteps_ExecuteHonorsCancellation(t *testing.T) {
	drv := &recordingDriver{}
	steps := &Steps{StartURL: "https://example.com"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := steps.Execute(ctx, drv)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, drv.actions)
}

func TestSteps_DefaultName(t *testing.T) {
	steps := &Steps{StartURL: "https://example.com"}
	assert.Equal(t, "steps", steps.Name())
}

func TestForm_Execute(t *testing.T) {
	drv := &recordingDriver{}
	form := &Form{
		URL: "https://example.com/signup",
		Fields: map[string]string{
			"#email": "ada@example.com",
			"#age":   "36",
			"#name":  "ada",
		},
	}

	res, err := form.Execute(context.Background(), drv)
	require.NoError(t, err)

	// navigate + 3 fills + submit click
	assert.Equal(t, 5, res.ActionsRun)
	assert.Equal(t, "form", res.Name)

	// Fields are filled in sorted selector order, then the default
	// submit selector is clicked.
	assert.Equal(t, []string{
		"navigate https://example.com/signup",
		"fill #age",
		"fill #email",
		"fill #name",
		"click button[type='submit']",
	}, drv.actions)
}

func TestForm_Validate(t *testing.T) {
	form := &Form{}
	require.Error(t, form.Validate())
	assert.Contains(t, form.Validate().Error(), "requires a url")

	form.URL = "https://example.com/signup"
	assert.NoError(t, form.Validate())

	form.Fields = map[string]string{"": "oops"}
	require.Error(t, form.Validate())
	assert.Contains(t, form.Validate().Error(), "must not be empty")
}

func TestNavigation_Validate(t *testing.T) {
	nav := &Navigation{}
	require.Error(t, nav.Validate())
	assert.Contains(t, nav.Validate().Error(), "at least one url")

	nav.URLs = []string{"https://a.example.com", ""}
	require.Error(t, nav.Validate())

	nav.URLs = []string{"https://a.example.com"}
	assert.NoError(t, nav.Validate())
}

func TestForm_CustomSubmitSelector(t *testing.T) {
	drv := &recordingDriver{}
	form := &Form{
		URL:            "https://example.com/signup",
		SubmitSelector: "#go",
	}

	_, err := form.Execute(context.Background(), drv)
	require.NoError(t, err)
	assert.Contains(t, drv.actions, "click #go")
}

func TestNavigation_Execute(t *testing.T) {
	drv := &recordingDriver{}
	nav := &Navigation{
		WorkflowName: "smoke",
		URLs:         []string{"https://a.example.com", "https://b.example.com"},
	}

	res, err := nav.Execute(context.Background(), drv)
	require.NoError(t, err)

	assert.Equal(t, "smoke", res.Name)
	assert.Equal(t, 2, res.ActionsRun)
	assert.Equal(t, "https://b.example.com", res.FinalURL)
}

func TestNavigation_FailureWrapsAction(t *testing.T) {
	drv := &recordingDriver{
		failAction: "navigate https://b.example.com",
		failErr:    fmt.Errorf("dns failure"),
	}
	nav := &Navigation{URLs: []string{"https://a.example.com", "https://b.example.com"}}

	_, err := nav.Execute(context.Background(), drv)
	require.Error(t, err)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, "navigate https://b.example.com", actionErr.Action)
}
