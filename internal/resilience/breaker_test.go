package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickBreaker(threshold int) *Breaker {
	return NewBreaker(BreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     time.Minute,
	})
}

func transientErr() error {
	return NewTransientError(errors.New("overloaded"), 529)
}

func TestBreaker_OpensAfterConsecutiveTransientFailures(t *testing.T) {
	b := quickBreaker(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Do(ctx, func(context.Context) error { return transientErr() })
		require.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, b.State())

	var calls int
	err := b.Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, ErrBreakerOpen)
	assert.Zero(t, calls, "open breaker must not invoke the call")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := quickBreaker(2)
	ctx := context.Background()

	require.Error(t, b.Do(ctx, func(context.Context) error { return transientErr() }))
	require.NoError(t, b.Do(ctx, func(context.Context) error { return nil }))
	require.Error(t, b.Do(ctx, func(context.Context) error { return transientErr() }))

	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := quickBreaker(1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Do(ctx, func(context.Context) error {
			return NewPermanentError(errors.New("invalid api key"), 401)
		})
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrBreakerOpen)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, b.Do(ctx, func(context.Context) error { return transientErr() }))
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())

	require.NoError(t, b.Do(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, b.Do(ctx, func(context.Context) error { return transientErr() }))

	now = now.Add(time.Minute)
	require.Error(t, b.Do(ctx, func(context.Context) error { return transientErr() }))
	assert.Equal(t, BreakerOpen, b.State())

	// The failed probe restarts the reset clock.
	err := b.Do(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	b := quickBreaker(1)
	require.Error(t, b.Do(context.Background(), func(context.Context) error { return transientErr() }))
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestBreakVal_PassesValueThrough(t *testing.T) {
	b := quickBreaker(3)
	val, err := BreakVal(context.Background(), b, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	require.Error(t, b.Do(context.Background(), func(context.Context) error { return transientErr() }))
	b.Reset()

	assert.Equal(t, []string{"closed>open", "open>closed"}, transitions)
}

func TestErrBreakerOpen_IsNotTransient(t *testing.T) {
	assert.False(t, IsTransient(ErrBreakerOpen), "retry loops must fail fast on an open breaker")
}
