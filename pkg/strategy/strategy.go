// Package strategy decides what happens after a failed attempt: wait
// and retry, or abandon the run. Decisions are a pure function of the
// attempt index and the plan, so the whole policy is table-testable
// without elapsing any time.
package strategy

import (
	"fmt"
	"math"
	"time"
)

// Kind selects how retry delays grow across attempts.
type Kind string

const (
	// KindExponential grows the delay by a constant factor per attempt,
	// capped at Cap.
	KindExponential Kind = "exponential"

	// KindLinear grows the delay by a constant step per attempt.
	KindLinear Kind = "linear"

	// KindFixed reads the delay from an explicit sequence, clamping to
	// the last entry once the sequence is exhausted.
	KindFixed Kind = "fixed"
)

// State describes where the strategy stands for a given attempt index.
type State string

const (
	// StateIdle means further attempts remain available.
	StateIdle State = "idle"

	// StateAwaitingBackoff means a retry was granted and the guardian
	// is sitting out the returned delay.
	StateAwaitingBackoff State = "awaiting_backoff"

	// StateExhausted is terminal: the attempt ceiling was reached and
	// every subsequent decision is Abandon.
	StateExhausted State = "exhausted"
)

// Plan is an immutable backoff policy. The guardian reads it, never
// mutates it; it is safe for any number of concurrent readers.
type Plan struct {
	Kind Kind `yaml:"kind" json:"kind"`

	// Base is the first delay for exponential and linear plans.
	Base time.Duration `yaml:"base" json:"base"`

	// Factor is the exponential growth multiplier.
	Factor float64 `yaml:"factor" json:"factor,omitempty"`

	// Cap bounds exponential delays. Zero means uncapped.
	Cap time.Duration `yaml:"cap" json:"cap,omitempty"`

	// Step is the linear increment per attempt.
	Step time.Duration `yaml:"step" json:"step,omitempty"`

	// Delays is the explicit sequence for fixed plans.
	Delays []time.Duration `yaml:"delays" json:"delays,omitempty"`

	// MaxAttempts is the hard ceiling on attempts for the whole run.
	// Once attemptIndex reaches it, Decide always returns Abandon.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
}

// Decision is the strategy's answer for one failed attempt.
type Decision struct {
	// Abandon is true when no further attempt may be made.
	Abandon bool

	// RetryAfter is the wait before the next attempt; meaningful only
	// when Abandon is false.
	RetryAfter time.Duration
}

// Validate rejects plans that cannot produce sane delays.
func (p *Plan) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}

	switch p.Kind {
	case KindExponential:
		if p.Base < 0 {
			return fmt.Errorf("base delay cannot be negative")
		}
		if p.Factor < 1 {
			return fmt.Errorf("exponential factor must be >= 1, got %g", p.Factor)
		}
		if p.Cap < 0 {
			return fmt.Errorf("cap cannot be negative")
		}
	case KindLinear:
		if p.Base < 0 || p.Step < 0 {
			return fmt.Errorf("linear base and step cannot be negative")
		}
	case KindFixed:
		if len(p.Delays) == 0 {
			return fmt.Errorf("fixed plan requires at least one delay")
		}
		for i, d := range p.Delays {
			if d < 0 {
				return fmt.Errorf("fixed delay %d cannot be negative", i)
			}
		}
	default:
		return fmt.Errorf("unknown backoff kind: %q", p.Kind)
	}

	return nil
}

// Decide returns the retry decision after the attempt with the given
// 1-based index failed. It is consulted only on non-success verdicts;
// driver errors and content violations are treated identically and
// count against the same ceiling.
func (p *Plan) Decide(attemptIndex int) Decision {
	if attemptIndex >= p.MaxAttempts {
		return Decision{Abandon: true}
	}
	return Decision{RetryAfter: p.delay(attemptIndex)}
}

// StateAfter reports the state machine position once the attempt with
// the given index has failed.
func (p *Plan) StateAfter(attemptIndex int) State {
	if attemptIndex >= p.MaxAttempts {
		return StateExhausted
	}
	return StateAwaitingBackoff
}

func (p *Plan) delay(attemptIndex int) time.Duration {
	switch p.Kind {
	case KindExponential:
		d := time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(attemptIndex-1)))
		if p.Cap > 0 && d > p.Cap {
			d = p.Cap
		}
		return d
	case KindLinear:
		return p.Base + p.Step*time.Duration(attemptIndex-1)
	case KindFixed:
		i := attemptIndex - 1
		if i >= len(p.Delays) {
			i = len(p.Delays) - 1
		}
		return p.Delays[i]
	default:
		return p.Base
	}
}

// ExponentialPlan builds the most common plan: base delay doubling (or
// growing by factor) per attempt, capped.
func ExponentialPlan(base time.Duration, factor float64, cap time.Duration, maxAttempts int) *Plan {
	return &Plan{
		Kind:        KindExponential,
		Base:        base,
		Factor:      factor,
		Cap:         cap,
		MaxAttempts: maxAttempts,
	}
}

// LinearPlan builds a plan whose delay grows by step per attempt.
func LinearPlan(base, step time.Duration, maxAttempts int) *Plan {
	return &Plan{
		Kind:        KindLinear,
		Base:        base,
		Step:        step,
		MaxAttempts: maxAttempts,
	}
}

// FixedPlan builds a plan with an explicit delay sequence; lookups past
// the end clamp to the last entry.
func FixedPlan(delays []time.Duration, maxAttempts int) *Plan {
	return &Plan{
		Kind:        KindFixed,
		Delays:      delays,
		MaxAttempts: maxAttempts,
	}
}
