// Package monitor watches a live session for violations while a
// workflow executes against it. The monitor observes, it never acts:
// it captures snapshots, asks the detector for a verdict, and hands
// the result to whoever is driving the attempt.
package monitor

import (
	"context"
	"time"

	"github.com/entrhq/vigil/pkg/detector"
	"github.com/entrhq/vigil/pkg/driver"
	"github.com/entrhq/vigil/pkg/logging"
)

// Status classifies a single observation.
type Status string

const (
	// StatusClean means no rule fired.
	StatusClean Status = "clean"

	// StatusViolated means at least one content rule fired.
	StatusViolated Status = "violated"

	// StatusDriverError means the capture itself failed: the session is
	// in trouble, not the page content. The guardian handles this
	// separately from a content violation.
	StatusDriverError Status = "driver_error"
)

// Verdict is the result of one observation.
type Verdict struct {
	Status Status
	Phase  detector.Phase

	// Violations holds every rule that fired, in detection priority
	// order; the first entry is the matched rule. Empty when clean.
	Violations []detector.Violation

	// SnapshotRef is the artifact reference captured for a violated
	// observation, empty when screenshots are disabled or capture
	// failed.
	SnapshotRef string

	// Err carries the cause for StatusDriverError verdicts.
	Err error

	ObservedAt time.Time
}

// Clean reports whether the verdict found nothing wrong.
func (v Verdict) Clean() bool { return v.Status == StatusClean }

// StrictMonitor pairs one session with one spec for the duration of an
// attempt. It is not reusable across attempts; the guardian builds a
// fresh monitor per session.
type StrictMonitor struct {
	drv                   driver.Driver
	spec                  *detector.Spec
	screenshotOnViolation bool
	log                   *logging.Logger
}

// Option configures a StrictMonitor.
type Option func(*StrictMonitor)

// WithScreenshotOnViolation makes the monitor capture a screenshot
// whenever an observation is violated, attaching its reference to the
// verdict.
func WithScreenshotOnViolation(enabled bool) Option {
	return func(m *StrictMonitor) { m.screenshotOnViolation = enabled }
}

// New creates a monitor for one session.
func New(drv driver.Driver, spec *detector.Spec, opts ...Option) *StrictMonitor {
	log, _ := logging.New("monitor")
	m := &StrictMonitor{drv: drv, spec: spec, log: log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ObserveOnce captures one snapshot and evaluates it. The required-
// element rules are only enabled at PhaseTerminal; mid-flight absence
// of a required element is not a violation.
func (m *StrictMonitor) ObserveOnce(phase detector.Phase) Verdict {
	snap, err := m.drv.Snapshot(m.spec)
	if err != nil {
		m.log.Warnf("snapshot capture failed: %v", err)
		return Verdict{
			Status:     StatusDriverError,
			Phase:      phase,
			Err:        err,
			ObservedAt: time.Now(),
		}
	}

	violations := detector.Evaluate(snap, m.spec, phase)
	if len(violations) == 0 {
		return Verdict{Status: StatusClean, Phase: phase, ObservedAt: snap.TakenAt}
	}

	m.log.Warnf("violation detected (%s): %s", phase, violations[0].Error())

	verdict := Verdict{
		Status:     StatusViolated,
		Phase:      phase,
		Violations: violations,
		ObservedAt: snap.TakenAt,
	}
	if m.screenshotOnViolation {
		ref, shotErr := m.drv.Screenshot()
		if shotErr != nil {
			m.log.Warnf("screenshot on violation failed: %v", shotErr)
		} else {
			verdict.SnapshotRef = ref
		}
	}
	return verdict
}

// Watch polls the session at a fixed interval until a non-clean
// verdict is produced or ctx is cancelled. Every verdict is sent on
// the returned channel; the channel closes when the watch ends, and a
// closed channel with no non-clean verdict means the watch was
// cancelled while the page was still clean.
//
// The sequence is consumed exactly once and is not restartable: once a
// non-clean verdict is delivered the monitor stops observing.
func (m *StrictMonitor) Watch(ctx context.Context, interval time.Duration) <-chan Verdict {
	verdicts := make(chan Verdict)

	go func() {
		defer close(verdicts)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			v := m.ObserveOnce(detector.PhaseInFlight)

			select {
			case verdicts <- v:
			case <-ctx.Done():
				return
			}

			if !v.Clean() {
				return
			}
		}
	}()

	return verdicts
}
