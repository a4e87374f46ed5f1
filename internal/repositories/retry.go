package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

var (
	retryInitialInterval = 25 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
	retryMaxElapsed      = 5 * time.Second
	retryMaxRetries      = uint64(4)
)

// withRetry runs op, retrying while SQLite reports lock contention.
//
// Other errors stop immediately. Contention that outlives the retry budget becomes
// [shared.ErrPersistenceConflict].
func withRetry[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	var result T
	var lastErr error

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(retryInitialInterval),
		backoff.WithMaxInterval(retryMaxInterval),
		backoff.WithMaxElapsedTime(retryMaxElapsed),
	), retryMaxRetries)

	err := backoff.Retry(func() error {
		var err error
		result, err = op(ctx)
		if err == nil {
			return nil
		}
		if !shared.IsBusy(err) {
			return backoff.Permanent(err)
		}
		lastErr = err
		return err
	}, backoff.WithContext(b, ctx))

	if err == nil {
		return result, nil
	}
	if lastErr != nil && errors.Is(err, lastErr) {
		return result, fmt.Errorf("%w: %w", shared.ErrPersistenceConflict, lastErr)
	}
	return result, err
}
