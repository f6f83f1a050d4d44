// Package guardian implements the attempt lifecycle controller: it
// executes a workflow against fresh sessions under strict monitoring,
// discards any attempt that deviates from the declared allow/deny
// rules, and restarts from a clean session per the backoff plan until
// the run succeeds, the attempt ceiling is reached, or a non-retryable
// failure occurs.
package guardian

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/vigil/pkg/detector"
	"github.com/entrhq/vigil/pkg/driver"
	"github.com/entrhq/vigil/pkg/logging"
	"github.com/entrhq/vigil/pkg/monitor"
	"github.com/entrhq/vigil/pkg/strategy"
	"github.com/entrhq/vigil/pkg/workflow"
)

const defaultPollInterval = 500 * time.Millisecond

// Guardian orchestrates attempts. It owns the attempt loop and the
// per-attempt session; the spec and plan are read-only inputs it never
// mutates.
type Guardian struct {
	factory driver.Factory
	spec    *detector.Spec
	plan    *strategy.Plan
	log     *logging.Logger

	pollInterval          time.Duration
	screenshotOnViolation bool
	artifacts             *ArtifactWriter

	// sleep waits out backoff delays; injectable so tests never
	// elapse real time.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Guardian.
type Option func(*Guardian)

// WithPollInterval sets the monitor's fixed polling interval. The
// interval is configuration, never adaptive.
func WithPollInterval(d time.Duration) Option {
	return func(g *Guardian) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// WithScreenshotOnViolation makes every violated observation capture a
// screenshot whose reference lands in the evidence trail.
func WithScreenshotOnViolation(enabled bool) Option {
	return func(g *Guardian) { g.screenshotOnViolation = enabled }
}

// WithArtifactWriter makes the guardian write the run summary through
// the given writer when the run ends.
func WithArtifactWriter(w *ArtifactWriter) Option {
	return func(g *Guardian) { g.artifacts = w }
}

// withSleep overrides the backoff wait, for tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Guardian) { g.sleep = fn }
}

// New creates a guardian. Configuration errors (invalid spec, invalid
// plan) fail here, before any attempt can start; they never surface as
// runtime violations.
func New(factory driver.Factory, spec *detector.Spec, plan *strategy.Plan, opts ...Option) (*Guardian, error) {
	if factory == nil {
		return nil, fmt.Errorf("a session factory is required")
	}
	if spec == nil {
		return nil, fmt.Errorf("a violation spec is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid violation spec: %w", err)
	}
	if plan == nil {
		return nil, fmt.Errorf("a backoff plan is required")
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backoff plan: %w", err)
	}

	log, _ := logging.New("guardian")
	g := &Guardian{
		factory:      factory,
		spec:         spec,
		plan:         plan,
		log:          log,
		pollInterval: defaultPollInterval,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Run executes the workflow until it succeeds cleanly, the plan
// abandons it, or a non-retryable failure occurs. The returned Outcome
// is the only thing that crosses the guardian's boundary: recoverable
// failures are captured as evidence, never returned as errors mid-run.
func (g *Guardian) Run(ctx context.Context, wf workflow.Workflow) (*Outcome, error) {
	start := time.Now()
	stats := Stats{}
	var trail []Evidence
	var attemptLog []AttemptRecord

	g.log.Infof("run started: workflow=%s max_attempts=%d", wf.Name(), g.plan.MaxAttempts)

	for attempt := 1; ; attempt++ {
		stats.Attempts = attempt
		record := AttemptRecord{Index: attempt, StartedAt: time.Now()}
		g.log.Infof("attempt %d/%d starting", attempt, g.plan.MaxAttempts)

		res := g.runAttempt(ctx, attempt, wf)
		record.EndedAt = time.Now()
		record.Verdict = res.verdictLabel()
		attemptLog = append(attemptLog, record)

		if res.abort != nil {
			g.log.Errorf("run aborted on attempt %d: %v", attempt, res.abort)
			return g.finish(&Outcome{
				Status:     StatusAborted,
				Workflow:   wf.Name(),
				Evidence:   trail,
				AttemptLog: attemptLog,
				Cause:      res.abort.Error(),
				StartTime:  start,
				Stats:      stats,
			})
		}

		if res.success {
			g.log.Infof("attempt %d succeeded", attempt)
			return g.finish(&Outcome{
				Status:     StatusSuccess,
				Workflow:   wf.Name(),
				Attempt:    attempt,
				Result:     res.result,
				Evidence:   trail,
				AttemptLog: attemptLog,
				StartTime:  start,
				Stats:      stats,
			})
		}

		trail = append(trail, *res.evidence)
		stats.ViolationsDetected++
		g.log.Warnf("attempt %d failed: %s", attempt, res.evidence.MatchedRule.Error())

		decision := g.plan.Decide(attempt)
		if decision.Abandon {
			g.log.Errorf("attempt ceiling reached after %d attempts", attempt)
			return g.finish(&Outcome{
				Status:     StatusExhausted,
				Workflow:   wf.Name(),
				Evidence:   trail,
				AttemptLog: attemptLog,
				StartTime:  start,
				Stats:      stats,
			})
		}

		stats.Restarts++
		stats.TotalBackoff += decision.RetryAfter
		g.log.Infof("restarting in %s", decision.RetryAfter)
		if err := g.sleep(ctx, decision.RetryAfter); err != nil {
			return g.finish(&Outcome{
				Status:     StatusAborted,
				Workflow:   wf.Name(),
				Evidence:   trail,
				AttemptLog: attemptLog,
				Cause:      fmt.Sprintf("cancelled during backoff: %v", err),
				StartTime:  start,
				Stats:      stats,
			})
		}
	}
}

// attemptResult is the internal verdict of one attempt.
type attemptResult struct {
	success  bool
	result   *workflow.Result
	evidence *Evidence
	abort    error
}

func (r attemptResult) verdictLabel() string {
	switch {
	case r.success:
		return "succeeded"
	case r.abort != nil:
		return "aborted"
	case r.evidence != nil:
		return string(r.evidence.MatchedRule.Kind)
	default:
		return "unknown"
	}
}

// runAttempt acquires a fresh session, races the workflow against the
// monitor's polling loop, and classifies whatever finishes first. The
// session is released on every exit path, after both racing tasks have
// terminated, so no background polling can outlive it.
func (g *Guardian) runAttempt(ctx context.Context, attempt int, wf workflow.Workflow) attemptResult {
	drv, err := g.factory.New()
	if err != nil {
		// Session creation failure is an environment problem; retrying
		// would not change the outcome.
		return attemptResult{abort: err}
	}
	defer drv.Close()

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon := monitor.New(drv, g.spec, monitor.WithScreenshotOnViolation(g.screenshotOnViolation))
	verdicts := mon.Watch(attemptCtx, g.pollInterval)

	type wfDone struct {
		result *workflow.Result
		err    error
	}
	done := make(chan wfDone, 1)
	go func() {
		res, execErr := wf.Execute(attemptCtx, drv)
		done <- wfDone{result: res, err: execErr}
	}()

	for {
		select {
		case v, ok := <-verdicts:
			if !ok {
				// Watch ended without a finding (cancellation); keep
				// waiting on the workflow.
				verdicts = nil
				continue
			}
			if v.Clean() {
				continue
			}
			// Mid-flight violation or driver error: cancel the
			// workflow cooperatively and await it before releasing
			// the session.
			cancel()
			<-done
			drainVerdicts(verdicts)
			return g.failedAttempt(attempt, v)

		case out := <-done:
			// Workflow finished first: stop the polling loop and
			// consume anything it produced in the same instant.
			cancel()
			if verdicts != nil {
				for v := range verdicts {
					if !v.Clean() {
						return g.failedAttempt(attempt, v)
					}
				}
			}

			if out.err != nil {
				if ctx.Err() != nil {
					return attemptResult{abort: ctx.Err()}
				}
				return g.failedAction(attempt, wf, out.err)
			}

			// The polling loop has fully terminated, so the terminal
			// observation never runs concurrently with it.
			term := mon.ObserveOnce(detector.PhaseTerminal)
			if term.Clean() {
				return attemptResult{success: true, result: out.result}
			}
			return g.failedAttempt(attempt, term)

		case <-ctx.Done():
			cancel()
			<-done
			drainVerdicts(verdicts)
			return attemptResult{abort: ctx.Err()}
		}
	}
}

func (g *Guardian) failedAttempt(attempt int, v monitor.Verdict) attemptResult {
	ev := Evidence{
		Attempt:     attempt,
		SnapshotRef: v.SnapshotRef,
		OccurredAt:  time.Now(),
	}
	if v.Status == monitor.StatusDriverError {
		ev.MatchedRule = detector.Violation{
			Kind:    detector.KindDriverError,
			Subject: "session",
			Detail:  v.Err.Error(),
		}
		ev.Violations = []detector.Violation{ev.MatchedRule}
	} else {
		ev.MatchedRule = v.Violations[0]
		ev.Violations = v.Violations
	}
	return attemptResult{evidence: &ev}
}

func (g *Guardian) failedAction(attempt int, wf workflow.Workflow, err error) attemptResult {
	subject := wf.Name()
	var actionErr *workflow.ActionError
	if errors.As(err, &actionErr) {
		subject = actionErr.Action
	}
	ev := Evidence{
		Attempt: attempt,
		MatchedRule: detector.Violation{
			Kind:    detector.KindActionFailure,
			Subject: subject,
			Detail:  err.Error(),
		},
		OccurredAt: time.Now(),
	}
	ev.Violations = []detector.Violation{ev.MatchedRule}
	return attemptResult{evidence: &ev}
}

// finish stamps the outcome and writes artifacts when configured.
func (g *Guardian) finish(o *Outcome) (*Outcome, error) {
	o.EndTime = time.Now()
	o.Duration = o.EndTime.Sub(o.StartTime)

	if g.artifacts != nil {
		if err := g.artifacts.Write(o); err != nil {
			g.log.Warnf("failed to write run artifacts: %v", err)
		}
	}

	g.log.Infof("run finished: status=%s attempts=%d duration=%s", o.Status, o.Stats.Attempts, o.Duration)
	return o, nil
}

func drainVerdicts(verdicts <-chan monitor.Verdict) {
	if verdicts == nil {
		return
	}
	for range verdicts {
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
