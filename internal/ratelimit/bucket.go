package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// TokenBucket is an in-process token bucket shared by every caller holding it.
type TokenBucket struct {
	limiter *rate.Limiter
	burst   int
	opts    options
}

// NewTokenBucket refills perSecond tokens per second up to burst.
func NewTokenBucket(perSecond float64, burst int, opts ...Option) *TokenBucket {
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		burst:   burst,
		opts:    buildOptions(opts),
	}
}

// Acquire waits for n tokens.
func (b *TokenBucket) Acquire(ctx context.Context, n int) error {
	if err := checkN(n, b.burst); err != nil {
		return err
	}

	start := time.Now()
	if err := b.limiter.WaitN(ctx, n); err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		// WaitN fails early when the wait would outlive the deadline.
		return fmt.Errorf("%w: rate limiter wait: %w", shared.ErrCancelled, err)
	}
	b.opts.observe(time.Since(start))
	return nil
}

// AllowAt reports whether n tokens are available at t and takes them if so.
func (b *TokenBucket) AllowAt(t time.Time, n int) bool {
	return b.limiter.AllowN(t, n)
}

// Rate returns the refill rate in tokens per second.
func (b *TokenBucket) Rate() float64 { return float64(b.limiter.Limit()) }

// Burst returns the bucket capacity.
func (b *TokenBucket) Burst() int { return b.burst }
