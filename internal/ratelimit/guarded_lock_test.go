package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushgate/internal/circuitbreaker"
)

func newTestBreaker() *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:             "admission-lock",
		MaxFailures:      2,
		FailureThreshold: 0.5,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
	}, zerolog.Nop())
}

func TestGuardedLockerHeldKeyDoesNotTrip(t *testing.T) {
	inner, _ := newTestRedisLocker(t)
	breaker := newTestBreaker()
	locker := NewGuardedLocker(inner, breaker)
	ctx := context.Background()
	key := AdmissionKey("acct-1")

	token, ok, err := locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		_, ok, err = locker.TryAcquire(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())

	released, err := locker.Release(ctx, key, token)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestGuardedLockerFailsFastWhenStoreIsDown(t *testing.T) {
	inner, mr := newTestRedisLocker(t)
	breaker := newTestBreaker()
	locker := NewGuardedLocker(inner, breaker)
	ctx := context.Background()

	mr.SetError("LOADING")
	for i := 0; i < 2; i++ {
		_, _, err := locker.TryAcquire(ctx, AdmissionKey("acct-1"), time.Minute)
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	mr.SetError("")
	_, ok, err := locker.TryAcquire(ctx, AdmissionKey("acct-1"), time.Minute)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.False(t, ok)
	assert.False(t, mr.Exists(AdmissionKey("acct-1")))
}
