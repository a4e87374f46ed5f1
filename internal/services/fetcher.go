package services

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/ratelimit"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

const (
	OpProfile = "profile"
	OpPosts   = "posts"
)

// CallObserver is told the outcome of every provider call. kind is empty on success.
type CallObserver func(platform models.Platform, op string, kind shared.ErrorKind)

// FetcherOption configures a [Fetcher].
type FetcherOption func(*Fetcher)

// WithCallTimeout bounds each individual provider call.
func WithCallTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.callTimeout = d }
}

// WithCallObserver registers fn for call outcomes.
func WithCallObserver(fn CallObserver) FetcherOption {
	return func(f *Fetcher) { f.observe = fn }
}

// WithFetcherClock sets the clock used to stamp fetched profiles.
func WithFetcherClock(c shared.Clock) FetcherOption {
	return func(f *Fetcher) { f.clock = c }
}

// Fetcher issues rate-limited provider calls and classifies their failures.
type Fetcher struct {
	provider    Provider
	limiter     ratelimit.Limiter
	clock       shared.Clock
	callTimeout time.Duration
	observe     CallObserver
}

// NewFetcher creates a [Fetcher]; limiter should be shared by every fetcher in the process.
func NewFetcher(provider Provider, limiter ratelimit.Limiter, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		provider: provider,
		limiter:  limiter,
		clock:    shared.SystemClock{},
		observe:  func(models.Platform, string, shared.ErrorKind) {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchProfile acquires a token and fetches the profile payload for accountRef.
func (f *Fetcher) FetchProfile(ctx context.Context, platform models.Platform, accountRef string) (*models.ProviderProfile, error) {
	if err := f.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	callCtx, cancel := f.callContext(ctx)
	defer cancel()

	raw, err := f.provider.Profile(callCtx, platform, accountRef)
	if err = f.finish(ctx, platform, OpProfile, err); err != nil {
		return nil, err
	}

	return &models.ProviderProfile{
		Platform:   platform,
		AccountRef: accountRef,
		Raw:        raw,
		FetchedAt:  f.clock.Now(),
	}, nil
}

// FetchPosts returns a lazy sequence over the account's posts.
//
// Each range over the sequence starts a new fetch. Every provider call, the run start and each
// dataset page, first acquires a token. The first error is yielded and ends the sequence.
func (f *Fetcher) FetchPosts(ctx context.Context, platform models.Platform, accountRef string, since *time.Time) iter.Seq2[models.ProviderPost, error] {
	return func(yield func(models.ProviderPost, error) bool) {
		fail := func(err error) { yield(models.ProviderPost{}, err) }

		if err := f.limiter.Acquire(ctx, 1); err != nil {
			fail(err)
			return
		}

		callCtx, cancel := f.callContext(ctx)
		cursor, err := f.provider.Posts(callCtx, platform, accountRef, since)
		cancel()
		if err = f.finish(ctx, platform, OpPosts, err); err != nil {
			fail(err)
			return
		}

		for {
			if err := f.limiter.Acquire(ctx, 1); err != nil {
				fail(err)
				return
			}

			callCtx, cancel := f.callContext(ctx)
			items, done, err := cursor.Next(callCtx)
			cancel()
			if err = f.finish(ctx, platform, OpPosts, err); err != nil {
				fail(err)
				return
			}
			if done {
				return
			}

			for _, raw := range items {
				if !yield(models.ProviderPost{Platform: platform, Raw: raw}, nil) {
					return
				}
			}
		}
	}
}

func (f *Fetcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.callTimeout)
}

// finish classifies err and reports the outcome. Cancellation of the caller's context wins
// over whatever the provider call returned.
func (f *Fetcher) finish(ctx context.Context, platform models.Platform, op string, err error) error {
	if err == nil {
		f.observe(platform, op, shared.KindNone)
		return nil
	}

	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %s %s: %w", shared.ErrCancelled, platform, op, context.Cause(ctx))
	} else {
		err = fmt.Errorf("%s %s: %w", platform, op, Classify(err))
	}
	f.observe(platform, op, shared.KindOf(err))
	return err
}
