// Package ratelimit provides the per-account admission lock and the daily
// quota window used by the eligibility evaluator.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key prefix for admission locks.
const KeyPrefixAdmission = "push:lock:"

// DefaultLockTTL bounds how long a crashed holder can block an account.
const DefaultLockTTL = 30 * time.Second

// AdmissionKey returns the lock key serializing pushes for one account.
func AdmissionKey(accountID string) string {
	return KeyPrefixAdmission + accountID
}

// Locker is a lease-based mutual exclusion keyed by string.
//
// TryAcquire never blocks. It returns a token that must be presented to
// Release; a lease that expired and was taken by someone else cannot be
// released with a stale token.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) (bool, error)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker coordinates admissions across processes through Redis.
type RedisLocker struct {
	redis redis.Cmdable
}

// NewRedisLocker creates a locker over the given client.
func NewRedisLocker(client redis.Cmdable) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisLocker{redis: client}, nil
}

// TryAcquire sets key to a fresh token if it is not already held.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lease if token still owns it. It reports false when the
// lease had already expired or passed to another holder.
func (l *RedisLocker) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.redis, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return n == 1, nil
}

type localLease struct {
	token   string
	expires time.Time
}

// LocalLocker serializes admissions within a single process. It is used when
// no Redis endpoint is configured.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localLease
	now    func() time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		leases: make(map[string]localLease),
		now:    time.Now,
	}
}

// TryAcquire takes key unless an unexpired lease holds it.
func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, held := l.leases[key]; held && now.Before(lease.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = localLease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release drops the lease if token still owns it and it has not expired.
func (l *LocalLocker) Release(_ context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, held := l.leases[key]
	if !held || lease.token != token {
		return false, nil
	}
	delete(l.leases, key)
	return l.now().Before(lease.expires), nil
}
