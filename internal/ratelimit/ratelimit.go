// Package ratelimit gates every provider call behind a token bucket.
//
// [TokenBucket] serves a single process. [RedisBucket] keeps the bucket in Redis so executors on
// several hosts draw from one budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// Limiter blocks until n tokens are available or ctx is done.
//
// A cancelled wait returns an error wrapping [shared.ErrCancelled].
type Limiter interface {
	Acquire(ctx context.Context, n int) error
}

// Pinger is implemented by limiters backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitObserver receives how long each successful Acquire waited.
type WaitObserver func(time.Duration)

// Option configures a limiter.
type Option func(*options)

type options struct {
	observe WaitObserver
	clock   shared.Clock
}

// WithObserver reports wait durations, typically to a histogram.
func WithObserver(fn WaitObserver) Option {
	return func(o *options) { o.observe = fn }
}

// WithClock replaces the wall clock used for bucket accounting.
func WithClock(c shared.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{observe: func(time.Duration) {}, clock: shared.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: rate limiter wait: %w", shared.ErrCancelled, context.Cause(ctx))
}

func checkN(n, burst int) error {
	if n < 1 || n > burst {
		return fmt.Errorf("%w: cannot acquire %d tokens from a bucket of %d", shared.ErrInvalidArgument, n, burst)
	}
	return nil
}
