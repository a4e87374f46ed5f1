package tasks

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// RetryPolicy decides whether a failed attempt runs again and when.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	QuotaBase   time.Duration // first delay after a quota failure
}

// RetryPolicyFromConfig reads the executor section.
func RetryPolicyFromConfig(cfg shared.ExecutorConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.BackoffBase,
		Cap:         cfg.BackoffCap,
		QuotaBase:   cfg.QuotaBackoffBase,
	}
}

// Decision is the outcome of [RetryPolicy.Decide].
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide classifies err for task, whose Attempts already counts the failed attempt and whose
// Conflicts counts earlier conflict retries.
//
// Transient and quota failures retry while attempts remain. A persistence conflict retries
// once per task, however many other failures come between.
func (p RetryPolicy) Decide(task *models.SyncTask, err error) Decision {
	if task.Attempts >= p.MaxAttempts {
		return Decision{}
	}

	kind := shared.KindOf(err)
	switch kind {
	case shared.KindTransient, shared.KindQuotaExceeded:
	case shared.KindPersistenceConflict:
		if task.Conflicts > 0 {
			return Decision{}
		}
	default:
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.Delay(task.Attempts, kind)}
}

// Delay returns the wait before the attempt following attempt, doubling from the base and
// never exceeding the cap. Quota failures start from QuotaBase.
func (p RetryPolicy) Delay(attempt int, kind shared.ErrorKind) time.Duration {
	base, ceiling := p.Base, p.Cap
	if kind == shared.KindQuotaExceeded && p.QuotaBase > 0 {
		base = p.QuotaBase
		ceiling = max(ceiling, base)
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(base),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(ceiling),
		backoff.WithMaxElapsedTime(0),
	)

	d := base
	for range max(attempt, 1) {
		d = b.NextBackOff()
	}
	return min(d, ceiling)
}
