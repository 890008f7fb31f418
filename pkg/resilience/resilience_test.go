package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0.1}

	for attempt := 1; attempt <= 10; attempt++ {
		d := b.Delay(attempt)
		assert.LessOrEqual(t, d, time.Second, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond, "attempt %d", attempt)
	}

	d3 := b.Delay(3)
	assert.InDelta(t, float64(400*time.Millisecond), float64(d3), float64(40*time.Millisecond))
	assert.InDelta(t, float64(time.Second), float64(b.Delay(50)), float64(100*time.Millisecond))
}

func TestBackoffDefaults(t *testing.T) {
	d := Backoff{}.Delay(1)
	assert.InDelta(t, float64(100*time.Millisecond), float64(d), float64(10*time.Millisecond))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", RetryConfig{
		MaxAttempts: 5,
		Backoff:     Backoff{Initial: time.Millisecond, Max: time.Millisecond},
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), "op", RetryConfig{
		MaxAttempts: 3,
		Backoff:     Backoff{Initial: time.Millisecond, Max: time.Millisecond},
	}, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "op", RetryConfig{MaxAttempts: 3}, func(context.Context) error {
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("es", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})
	fail := func() error { return errors.New("down") }

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	permanent := errors.New("mapping conflict")
	cb := NewCircuitBreaker("es", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, permanent) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return permanent }), permanent)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("es", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.now = func() time.Time { return now }
	fail := func() error { return errors.New("down") }

	_ = cb.Execute(fail)
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Minute)
	assert.EqualError(t, cb.Execute(fail), "down", "the probe runs")
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen, "cool-down restarts after a failed probe")
}
