// Package workflow defines the capability the guardian executes: a
// named sequence of domain actions against a session. Workflows are
// supplied by callers and hold no guardian state; the guardian invokes
// them through this narrow contract and cancels them cooperatively via
// context.
package workflow

import (
	"context"
	"fmt"

	"github.com/entrhq/vigil/pkg/driver"
)

// Workflow is a caller-supplied action sequence. Execute must check
// ctx between actions and stop promptly when it is cancelled; this is
// the cooperative-cancellation contract the guardian relies on to
// bound restart latency. There is no forced interruption of an
// in-progress action; a hanging driver call is bounded by the
// session's own timeout.
type Workflow interface {
	// Name identifies the workflow in logs and summaries.
	Name() string

	// Execute runs the action sequence against the session. Returning
	// ctx.Err() signals cooperative cancellation; any other error is an
	// internal action failure and is treated like a violation for
	// restart purposes.
	Execute(ctx context.Context, drv driver.Driver) (*Result, error)
}

// Result is what a completed workflow reports back.
type Result struct {
	Name       string `json:"name"`
	ActionsRun int    `json:"actions_run"`
	FinalURL   string `json:"final_url,omitempty"`

	// Screenshots holds artifact refs captured by screenshot actions.
	Screenshots []string `json:"screenshots,omitempty"`
}

// ActionError marks a failure inside a workflow action. The guardian
// records it with its own evidence kind, distinct from content
// violations.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// checkCtx returns the context's error if it has been cancelled,
// untouched so callers can classify it with errors.Is.
func checkCtx(ctx context.Context) error {
	return ctx.Err()
}
