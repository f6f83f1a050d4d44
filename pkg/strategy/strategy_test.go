package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialPlan_DelaySequence(t *testing.T) {
	plan := ExponentialPlan(1*time.Second, 2.0, 10*time.Second, 10)
	require.NoError(t, plan.Validate())

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, // capped
		10 * time.Second,
	}
	for i, want := range expected {
		d := plan.Decide(i + 1)
		assert.False(t, d.Abandon, "attempt %d", i+1)
		assert.Equal(t, want, d.RetryAfter, "attempt %d", i+1)
	}
}

func TestExponentialPlan_Uncapped(t *testing.T) {
	plan := ExponentialPlan(100*time.Millisecond, 3.0, 0, 10)
	require.NoError(t, plan.Validate())

	assert.Equal(t, 100*time.Millisecond, plan.Decide(1).RetryAfter)
	assert.Equal(t, 300*time.Millisecond, plan.Decide(2).RetryAfter)
	assert.Equal(t, 900*time.Millisecond, plan.Decide(3).RetryAfter)
}

func TestLinearPlan_DelaySequence(t *testing.T) {
	plan := LinearPlan(500*time.Millisecond, 250*time.Millisecond, 10)
	require.NoError(t, plan.Validate())

	assert.Equal(t, 500*time.Millisecond, plan.Decide(1).RetryAfter)
	assert.Equal(t, 750*time.Millisecond, plan.Decide(2).RetryAfter)
	assert.Equal(t, 1000*time.Millisecond, plan.Decide(3).RetryAfter)
}

func TestFixedPlan_ClampsToLastDelay(t *testing.T) {
	plan := FixedPlan([]time.Duration{time.Second, 3 * time.Second}, 10)
	require.NoError(t, plan.Validate())

	assert.Equal(t, time.Second, plan.Decide(1).RetryAfter)
	assert.Equal(t, 3*time.Second, plan.Decide(2).RetryAfter)
	assert.Equal(t, 3*time.Second, plan.Decide(3).RetryAfter)
	assert.Equal(t, 3*time.Second, plan.Decide(7).RetryAfter)
}

func TestPlan_AbandonAtCeiling(t *testing.T) {
	plan := ExponentialPlan(time.Second, 2.0, 0, 3)

	assert.False(t, plan.Decide(1).Abandon)
	assert.False(t, plan.Decide(2).Abandon)
	assert.True(t, plan.Decide(3).Abandon)
	assert.True(t, plan.Decide(4).Abandon)
}

func TestPlan_SingleAttemptAlwaysAbandons(t *testing.T) {
	plan := ExponentialPlan(time.Second, 2.0, 0, 1)
	require.NoError(t, plan.Validate())

	assert.True(t, plan.Decide(1).Abandon)
}

func TestPlan_StateAfter(t *testing.T) {
	plan := ExponentialPlan(time.Second, 2.0, 0, 3)

	assert.Equal(t, StateAwaitingBackoff, plan.StateAfter(1))
	assert.Equal(t, StateAwaitingBackoff, plan.StateAfter(2))
	assert.Equal(t, StateExhausted, plan.StateAfter(3))
	assert.Equal(t, StateExhausted, plan.StateAfter(4))
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name    string
		plan    *Plan
		wantErr string
	}{
		{
			name:    "zero max attempts",
			plan:    &Plan{Kind: KindExponential, Base: time.Second, Factor: 2.0},
			wantErr: "max_attempts",
		},
		{
			name:    "unknown kind",
			plan:    &Plan{Kind: "quadratic", MaxAttempts: 3},
			wantErr: "unknown backoff kind",
		},
		{
			name:    "exponential factor below one",
			plan:    &Plan{Kind: KindExponential, Base: time.Second, Factor: 0.5, MaxAttempts: 3},
			wantErr: "factor must be >= 1",
		},
		{
			name:    "negative base",
			plan:    &Plan{Kind: KindExponential, Base: -time.Second, Factor: 2.0, MaxAttempts: 3},
			wantErr: "cannot be negative",
		},
		{
			name:    "fixed without delays",
			plan:    &Plan{Kind: KindFixed, MaxAttempts: 3},
			wantErr: "at least one delay",
		},
		{
			name:    "negative fixed delay",
			plan:    &Plan{Kind: KindFixed, Delays: []time.Duration{-time.Second}, MaxAttempts: 3},
			wantErr: "cannot be negative",
		},
		{
			name:    "negative linear step",
			plan:    &Plan{Kind: KindLinear, Base: time.Second, Step: -time.Second, MaxAttempts: 3},
			wantErr: "cannot be negative",
		},
		{
			name: "valid exponential",
			plan: ExponentialPlan(time.Second, 2.0, time.Minute, 3),
		},
		{
			name: "valid linear",
			plan: LinearPlan(time.Second, time.Second, 3),
		},
		{
			name: "valid fixed",
			plan: FixedPlan([]time.Duration{time.Second}, 3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlan_DecideIsPure(t *testing.T) {
	plan := ExponentialPlan(time.Second, 2.0, 10*time.Second, 5)

	first := plan.Decide(2)
	second := plan.Decide(2)
	assert.Equal(t, first, second)
}
