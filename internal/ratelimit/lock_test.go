package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker, err := NewRedisLocker(client)
	require.NoError(t, err)
	return locker, mr
}

func TestNewRedisLockerRequiresClient(t *testing.T) {
	_, err := NewRedisLocker(nil)
	assert.EqualError(t, err, "redis client is required")
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()
	key := AdmissionKey("acct-1")

	token, ok, err := locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(key))

	_, ok, err = locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	released, err := locker.Release(ctx, key, token)
	require.NoError(t, err)
	assert.True(t, released)

	_, ok, err = locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerStaleTokenCannotRelease(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()
	key := AdmissionKey("acct-2")

	stale, ok, err := locker.TryAcquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	fresh, ok, err := locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lease must be reclaimable")

	released, err := locker.Release(ctx, key, stale)
	require.NoError(t, err)
	assert.False(t, released)

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestRedisLockerReportsStoreErrors(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	mr.Close()

	_, _, err := locker.TryAcquire(context.Background(), AdmissionKey("acct-3"), time.Second)
	assert.Error(t, err)
}

func TestLocalLockerExpiry(t *testing.T) {
	locker := NewLocalLocker()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	token, ok, _ := locker.TryAcquire(ctx, "k", time.Second)
	require.True(t, ok)

	_, ok, _ = locker.TryAcquire(ctx, "k", time.Second)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = locker.TryAcquire(ctx, "k", time.Second)
	assert.True(t, ok)

	released, _ := locker.Release(ctx, "k", token)
	assert.False(t, released, "stale token")
}

func TestLockersSerializeConcurrentHolders(t *testing.T) {
	redisLocker, _ := newTestRedisLocker(t)

	for name, locker := range map[string]Locker{"redis": redisLocker, "local": NewLocalLocker()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var holders, maxHolders int32
			var wg sync.WaitGroup

			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						token, ok, err := locker.TryAcquire(ctx, "shared", time.Minute)
						if err != nil {
							t.Error(err)
							return
						}
						if !ok {
							time.Sleep(time.Millisecond)
							continue
						}
						n := atomic.AddInt32(&holders, 1)
						for {
							m := atomic.LoadInt32(&maxHolders)
							if n <= m || atomic.CompareAndSwapInt32(&maxHolders, m, n) {
								break
							}
						}
						atomic.AddInt32(&holders, -1)
						_, _ = locker.Release(ctx, "shared", token)
						return
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), maxHolders)
		})
	}
}
