package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, rueidis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := NewRedisClient(mr.Addr())
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisBucketAccounting(t *testing.T) {
	_, client := setupRedis(t)
	clock := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewRedisBucket(client, "test:bucket", 1, 2, WithClock(clock))
	ctx := t.Context()

	for range 2 {
		wait, err := b.TryAcquire(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, wait)
	}

	wait, err := b.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Second, wait)

	clock.Advance(500 * time.Millisecond)
	wait, err = b.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, wait)

	clock.Advance(500 * time.Millisecond)
	wait, err = b.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestRedisBucketIsShared(t *testing.T) {
	_, client := setupRedis(t)
	clock := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	hostA := NewRedisBucket(client, "test:shared", 5, 3, WithClock(clock))
	hostB := NewRedisBucket(client, "test:shared", 5, 3, WithClock(clock))
	ctx := t.Context()

	passed := 0
	for _, b := range []*RedisBucket{hostA, hostB, hostA, hostB} {
		wait, err := b.TryAcquire(ctx, 1)
		require.NoError(t, err)
		if wait == 0 {
			passed++
		}
	}
	assert.Equal(t, 3, passed, "both hosts draw from one bucket")
}

func TestRedisBucketAcquire(t *testing.T) {
	t.Run("cancelled while waiting", func(t *testing.T) {
		_, client := setupRedis(t)
		clock := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		b := NewRedisBucket(client, "test:cancel", 1, 1, WithClock(clock))

		require.NoError(t, b.Acquire(t.Context(), 1))

		ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
		defer cancel()
		err := b.Acquire(ctx, 1)
		require.ErrorIs(t, err, shared.ErrCancelled)
	})

	t.Run("backend failure is transient", func(t *testing.T) {
		mr, client := setupRedis(t)
		b := NewRedisBucket(client, "test:down", 1, 1)
		mr.Close()

		ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
		defer cancel()
		err := b.Acquire(ctx, 1)
		require.Error(t, err)
		assert.Contains(t, []shared.ErrorKind{shared.KindTransient, shared.KindCancelled}, shared.KindOf(err))
	})

	t.Run("ping", func(t *testing.T) {
		_, client := setupRedis(t)
		b := NewRedisBucket(client, "test:ping", 1, 1)
		assert.NoError(t, b.Ping(t.Context()))
	})
}

func TestNewFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)

	lim, closeFn, err := New(shared.RateLimitConfig{Backend: "redis", Rate: 5, Burst: 2, RedisAddr: mr.Addr(), RedisKey: "sync:bucket"})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &RedisBucket{}, lim)
	require.NoError(t, lim.Acquire(context.Background(), 1))
	assert.True(t, mr.Exists("sync:bucket"))

	lim, closeFn, err = New(shared.RateLimitConfig{Backend: "local", Rate: 5, Burst: 2})
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &TokenBucket{}, lim)

	_, _, err = New(shared.RateLimitConfig{Backend: "memcached", Rate: 5, Burst: 2})
	assert.ErrorIs(t, err, shared.ErrInvalidConfig)
}
