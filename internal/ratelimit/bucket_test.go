package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

func TestTokenBucket(t *testing.T) {
	t.Run("burst then refill", func(t *testing.T) {
		b := NewTokenBucket(5, 5)
		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		for i := range 5 {
			if !b.AllowAt(start, 1) {
				t.Fatalf("token %d of the burst should be available", i+1)
			}
		}
		if b.AllowAt(start, 1) {
			t.Fatal("bucket should be empty after the burst")
		}
		if !b.AllowAt(start.Add(200*time.Millisecond), 1) {
			t.Error("one token should refill after 200ms at 5/s")
		}
	})

	t.Run("never exceeds rate plus burst in any second", func(t *testing.T) {
		const perSecond, burst = 5.0, 5
		b := NewTokenBucket(perSecond, burst)
		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		var allowed []time.Time
		for step := time.Duration(0); step < 5*time.Second; step += 5 * time.Millisecond {
			at := start.Add(step)
			if b.AllowAt(at, 1) {
				allowed = append(allowed, at)
			}
		}

		for i, from := range allowed {
			count := 0
			for _, at := range allowed[i:] {
				if at.Sub(from) < time.Second {
					count++
				}
			}
			if count > int(perSecond)+burst {
				t.Fatalf("window starting at %v passed %d calls", from.Sub(start), count)
			}
		}
		if len(allowed) < int(perSecond)*4 {
			t.Errorf("expected sustained throughput near the rate, got %d calls in 5s", len(allowed))
		}
	})

	t.Run("Acquire is cancellable", func(t *testing.T) {
		b := NewTokenBucket(0.001, 1)
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("first acquire should pass: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		err := b.Acquire(ctx, 1)
		if !errors.Is(err, shared.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
		if shared.KindOf(err) != shared.KindCancelled {
			t.Errorf("expected cancelled kind, got %s", shared.KindOf(err))
		}
	})

	t.Run("Acquire past the deadline fails fast", func(t *testing.T) {
		b := NewTokenBucket(0.001, 1)
		_ = b.Acquire(context.Background(), 1)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		if err := b.Acquire(ctx, 1); !errors.Is(err, shared.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
		if time.Since(start) > 40*time.Millisecond {
			t.Error("a wait that cannot finish before the deadline should not block")
		}
	})

	t.Run("rejects n outside the bucket", func(t *testing.T) {
		b := NewTokenBucket(5, 2)
		for _, n := range []int{0, 3} {
			if err := b.Acquire(context.Background(), n); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("Acquire(%d) expected ErrInvalidArgument, got %v", n, err)
			}
		}
	})

	t.Run("observer sees waits", func(t *testing.T) {
		var observed int
		b := NewTokenBucket(1000, 1, WithObserver(func(time.Duration) { observed++ }))
		for range 3 {
			if err := b.Acquire(context.Background(), 1); err != nil {
				t.Fatalf("acquire failed: %v", err)
			}
		}
		if observed != 3 {
			t.Errorf("expected 3 observations, got %d", observed)
		}
	})
}
