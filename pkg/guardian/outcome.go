package guardian

import (
	"time"

	"github.com/entrhq/vigil/pkg/detector"
	"github.com/entrhq/vigil/pkg/workflow"
)

// Status is the terminal classification of a whole run.
type Status string

const (
	// StatusSuccess means some attempt completed with a clean terminal
	// verdict.
	StatusSuccess Status = "success"

	// StatusExhausted means every permitted attempt was violated; the
	// evidence trail holds one entry per attempt.
	StatusExhausted Status = "exhausted"

	// StatusAborted means the run hit a non-retryable failure (a
	// session could not be created) or was cancelled from outside.
	StatusAborted Status = "aborted"
)

// Evidence is the recorded proof of one failed attempt: which rule
// fired first, everything else that fired, and the artifact captured
// at the moment of detection.
type Evidence struct {
	// Attempt is the 1-based index of the attempt this evidence
	// belongs to.
	Attempt int `json:"attempt"`

	// MatchedRule is the first violation in detection priority order.
	MatchedRule detector.Violation `json:"matched_rule"`

	// Violations holds every rule that fired, MatchedRule included.
	Violations []detector.Violation `json:"violations,omitempty"`

	// SnapshotRef is the opaque artifact handle (screenshot path)
	// captured with the violation, empty when none was taken.
	SnapshotRef string `json:"snapshot_ref,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Stats summarizes a run for reporting.
type Stats struct {
	Attempts           int           `json:"attempts"`
	ViolationsDetected int           `json:"violations_detected"`
	Restarts           int           `json:"restarts"`
	TotalBackoff       time.Duration `json:"total_backoff"`
}

// Outcome is the single terminal result of a run. It is created
// exactly once, after the last attempt ends, and never mutated.
type Outcome struct {
	Status   Status `json:"status"`
	Workflow string `json:"workflow"`

	// Attempt is the index of the successful attempt; zero unless
	// Status is StatusSuccess.
	Attempt int `json:"attempt,omitempty"`

	// Result is the successful workflow's report; nil otherwise.
	Result *workflow.Result `json:"result,omitempty"`

	// Evidence is the full trail of failed attempts in attempt order.
	Evidence []Evidence `json:"evidence,omitempty"`

	// AttemptLog bounds every attempt in time, in attempt order.
	AttemptLog []AttemptRecord `json:"attempt_log"`

	// Cause explains an aborted run.
	Cause string `json:"cause,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Stats     Stats         `json:"stats"`
}

// Succeeded reports whether the run ended in success.
func (o *Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// AttemptRecord bounds one attempt in time. While an attempt is live
// its record is owned exclusively by the guardian; once EndedAt is set
// it is immutable and appended to the outcome's attempt log.
type AttemptRecord struct {
	Index     int       `json:"index"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// Verdict is "succeeded", a violation kind, or "aborted".
	Verdict string `json:"verdict"`
}
