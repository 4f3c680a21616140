package ratelimit

import (
	"context"
	"time"

	"github.com/pushgate/internal/circuitbreaker"
)

// GuardedLocker puts a circuit breaker in front of a Locker. Only store
// errors trip the breaker; a key that is already held is a normal outcome.
// While open, calls fail with circuitbreaker.ErrCircuitOpen without touching
// the store.
type GuardedLocker struct {
	inner   Locker
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedLocker wraps inner with breaker
func NewGuardedLocker(inner Locker, breaker *circuitbreaker.CircuitBreaker) *GuardedLocker {
	return &GuardedLocker{inner: inner, breaker: breaker}
}

func (l *GuardedLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	err = l.breaker.Execute(func() error {
		var innerErr error
		token, ok, innerErr = l.inner.TryAcquire(ctx, key, ttl)
		return innerErr
	})
	return token, ok, err
}

func (l *GuardedLocker) Release(ctx context.Context, key, token string) (released bool, err error) {
	err = l.breaker.Execute(func() error {
		var innerErr error
		released, innerErr = l.inner.Release(ctx, key, token)
		return innerErr
	})
	return released, err
}
