package tasks

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/notify"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/repositories"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/services"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/transform"
)

const claimBatch = 8

// ExecutorTaskStore is the task record as seen by workers.
type ExecutorTaskStore interface {
	ListClaimable(ctx context.Context, now time.Time, limit int) ([]*models.SyncTask, error)
	Claim(ctx context.Context, id, workerID string, now time.Time) (*models.SyncTask, error)
	Reschedule(ctx context.Context, lease models.Lease, kind shared.ErrorKind, message string, eligibleAt, now time.Time) error
	Fail(ctx context.Context, lease models.Lease, kind shared.ErrorKind, message string, now time.Time) error
	Revoke(ctx context.Context, lease models.Lease, now time.Time) error
	IsRevokeRequested(ctx context.Context, id string) (bool, error)
	RequeueStale(ctx context.Context, startedBefore, now time.Time) (int64, error)
	CountByState(ctx context.Context) (map[models.TaskState]int, error)
}

// PageStore writes sync results and reads earlier snapshots.
type PageStore interface {
	Persist(ctx context.Context, lease models.Lease, result *repositories.SyncResult, now time.Time) (string, error)
	PreviousSnapshot(ctx context.Context, userID string, platform models.Platform, cutoff time.Time) (*models.MetricSnapshot, error)
}

// Fetcher reads raw profile and post payloads from the provider.
type Fetcher interface {
	FetchProfile(ctx context.Context, platform models.Platform, accountRef string) (*models.ProviderProfile, error)
	FetchPosts(ctx context.Context, platform models.Platform, accountRef string, since *time.Time) iter.Seq2[models.ProviderPost, error]
}

// Observer receives execution metrics. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveTransition(platform models.Platform, state models.TaskState, kind shared.ErrorKind)
	ObserveAttempt(platform models.Platform, outcome string, d time.Duration)
	ObserveNotification(kind shared.ErrorKind)
	SetTaskCounts(counts map[models.TaskState]int)
	TrackExecution() func()
}

type noopObserver struct{}

func (noopObserver) ObserveTransition(models.Platform, models.TaskState, shared.ErrorKind) {}
func (noopObserver) ObserveAttempt(models.Platform, string, time.Duration)                 {}
func (noopObserver) ObserveNotification(shared.ErrorKind)                                  {}
func (noopObserver) SetTaskCounts(map[models.TaskState]int)                                {}
func (noopObserver) TrackExecution() func()                                                { return func() {} }

// ExecutorDeps are the collaborators an [Executor] drives.
type ExecutorDeps struct {
	Tasks       ExecutorTaskStore
	Pages       PageStore
	Credentials CredentialStore
	Fetcher     Fetcher
	Notifier    notify.Notifier // defaults to logging
}

// ExecutorOption configures an [Executor].
type ExecutorOption func(*Executor)

// WithEvents publishes lifecycle events to ch without blocking.
func WithEvents(ch chan<- Event) ExecutorOption {
	return func(e *Executor) { e.events = ch }
}

// WithObserver records metrics to o.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

// WithClock replaces the wall clock used for claims, backoff and timestamps.
func WithClock(c shared.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithWorkerID sets the prefix recorded as claimed_by. Defaults to the host name.
func WithWorkerID(id string) ExecutorOption {
	return func(e *Executor) { e.workerID = id }
}

// Executor runs claimed tasks through fetch, transform and persist.
//
// Every attempt ends in exactly one durable transition: SUCCESS (written with the results),
// PENDING with a backoff, FAILURE, or REVOKED.
type Executor struct {
	deps     ExecutorDeps
	cfg      shared.ExecutorConfig
	policy   RetryPolicy
	params   transform.Params
	logger   *log.Logger
	clock    shared.Clock
	events   chan<- Event
	observer Observer
	workerID string
	wake     chan struct{}
}

// NewExecutor creates an [Executor].
func NewExecutor(deps ExecutorDeps, cfg shared.ExecutorConfig, params transform.Params, logger *log.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		deps:     deps,
		cfg:      cfg,
		policy:   RetryPolicyFromConfig(cfg),
		params:   params,
		logger:   logger,
		clock:    shared.SystemClock{},
		observer: noopObserver{},
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.deps.Notifier == nil {
		e.deps.Notifier = notify.NewLogNotifier(logger)
	}
	if e.workerID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		e.workerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return e
}

// Wake nudges an idle worker to look for work before its next poll.
func (e *Executor) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run starts the worker pool and blocks until ctx is done.
//
// Tasks left STARTED for longer than the configured stale threshold are requeued first.
func (e *Executor) Run(ctx context.Context) error {
	if e.cfg.StaleAfter > 0 {
		now := e.clock.Now()
		n, err := e.deps.Tasks.RequeueStale(ctx, now.Add(-e.cfg.StaleAfter), now)
		if err != nil {
			return fmt.Errorf("failed to requeue stale tasks: %w", err)
		}
		if n > 0 {
			e.logger.Warn("requeued stale tasks", "count", n)
		}
	}

	workers := max(e.cfg.Workers, 1)
	e.logger.Info("executor started", "workers", workers, "worker_id", e.workerID)

	var wg conc.WaitGroup
	for i := range workers {
		id := fmt.Sprintf("%s/%d", e.workerID, i)
		wg.Go(func() { e.work(ctx, id) })
	}
	wg.Go(func() { e.refreshCounts(ctx) })

	if r := wg.WaitAndRecover(); r != nil {
		return fmt.Errorf("executor worker panicked: %v\n%s", r.Value, r.Stack)
	}
	e.logger.Info("executor stopped", "worker_id", e.workerID)
	return ctx.Err()
}

func (e *Executor) pollInterval() time.Duration {
	if e.cfg.PollInterval > 0 {
		return e.cfg.PollInterval
	}
	return time.Second
}

func (e *Executor) work(ctx context.Context, workerID string) {
	ticker := time.NewTicker(e.pollInterval())
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			ran, err := e.processNext(ctx, workerID)
			if err != nil && ctx.Err() == nil {
				e.logger.Error("failed to claim work", "worker", workerID, "error", err)
			}
			if !ran {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

func (e *Executor) refreshCounts(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval() * 5)
	defer ticker.Stop()

	for {
		if counts, err := e.deps.Tasks.CountByState(ctx); err == nil {
			e.observer.SetTaskCounts(counts)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext claims and runs at most one eligible task. It reports whether a task ran.
func (e *Executor) ProcessNext(ctx context.Context) (bool, error) {
	return e.processNext(ctx, e.workerID)
}

// Drain runs eligible tasks one at a time until none is left and returns how many ran.
// Tasks rescheduled into the future are not waited for.
func (e *Executor) Drain(ctx context.Context) (int, error) {
	var n int
	for {
		ran, err := e.ProcessNext(ctx)
		if err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
		n++
	}
}

func (e *Executor) processNext(ctx context.Context, workerID string) (bool, error) {
	now := e.clock.Now()
	candidates, err := e.deps.Tasks.ListClaimable(ctx, now, claimBatch)
	if err != nil {
		return false, err
	}

	for _, c := range candidates {
		task, err := e.deps.Tasks.Claim(ctx, c.ID, workerID, now)
		if errors.Is(err, repositories.ErrNotClaimable) {
			continue
		}
		if err != nil {
			return false, err
		}
		e.execute(ctx, task, workerID)
		return true, nil
	}
	return false, nil
}

// execute runs one claimed attempt and records its outcome.
func (e *Executor) execute(ctx context.Context, task *models.SyncTask, workerID string) {
	defer e.observer.TrackExecution()()

	start := e.clock.Now()
	logger := e.logger.With("task_id", task.ID, "user_id", task.UserID, "platform", task.Platform, "attempt", task.Attempts)
	e.observer.ObserveTransition(task.Platform, models.StateStarted, shared.KindNone)
	sendEvent(e.events, claimedEvent(task, start, workerID))
	logger.Debug("attempt started", "worker", workerID)

	if task.RevokeRequested {
		e.settle(ctx, task, revokedError(task.ID), start, logger)
		return
	}

	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopWatch := e.watchRevoke(attemptCtx, task.ID, cancel, logger)

	snapshotID, err := e.attempt(attemptCtx, task, logger)
	stopWatch()

	if err != nil && errors.Is(context.Cause(attemptCtx), shared.ErrRevoked) {
		err = revokedError(task.ID)
	}
	if err != nil {
		e.settle(ctx, task, err, start, logger)
		return
	}

	now := e.clock.Now()
	e.observer.ObserveTransition(task.Platform, models.StateSuccess, shared.KindNone)
	e.observer.ObserveAttempt(task.Platform, "success", now.Sub(start))
	sendEvent(e.events, succeededEvent(task, now, snapshotID))
	logger.Info("sync completed", "snapshot_id", snapshotID, "duration", now.Sub(start))
}

func revokedError(taskID string) error {
	return shared.NewTaskError(shared.KindRevoked, "task revoked", fmt.Errorf("%w: %s", shared.ErrRevoked, taskID))
}

// watchRevoke polls the revoke flag and cancels the attempt with [shared.ErrRevoked] once set.
// The returned func stops the watcher and waits for it.
func (e *Executor) watchRevoke(ctx context.Context, taskID string, cancel context.CancelCauseFunc, logger *log.Logger) func() {
	interval := e.cfg.RevokePollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	done := make(chan struct{})
	var wg conc.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			requested, err := e.deps.Tasks.IsRevokeRequested(ctx, taskID)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("failed to poll revoke flag", "error", err)
				}
				continue
			}
			if requested {
				logger.Info("revoke observed, cancelling attempt")
				cancel(shared.ErrRevoked)
				return
			}
		}
	})

	return func() {
		close(done)
		wg.Wait()
	}
}

// attempt performs the provider reads, the transform and the persist. It returns the snapshot id.
func (e *Executor) attempt(ctx context.Context, task *models.SyncTask, logger *log.Logger) (string, error) {
	cred, err := e.deps.Credentials.GetToken(ctx, task.UserID, task.Platform)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return "", shared.NewTaskError(shared.KindPermanent, "linked account was removed",
			fmt.Errorf("%w: %s", shared.ErrNoCredentials, task.Platform))
	case err != nil:
		return "", fmt.Errorf("failed to read credentials: %w", err)
	case !cred.Usable(e.clock.Now()):
		return "", shared.NewTaskError(shared.KindPermanent, "linked account token missing or expired",
			fmt.Errorf("%w: %s", shared.ErrNoCredentials, task.Platform))
	}

	sendEvent(e.events, fetchingProfileEvent(task, e.clock.Now(), cred.Handle))
	profile, err := e.deps.Fetcher.FetchProfile(ctx, task.Platform, cred.Handle)
	if err != nil {
		return "", err
	}

	asOf := task.CreatedAt
	since := asOf.Add(-e.params.Window)
	sendEvent(e.events, fetchingPostsEvent(task, e.clock.Now(), since))

	var posts []models.ProviderPost
	for post, err := range e.deps.Fetcher.FetchPosts(ctx, task.Platform, cred.Handle, &since) {
		if err != nil {
			return "", err
		}
		posts = append(posts, post)
	}

	previous, err := e.deps.Pages.PreviousSnapshot(ctx, task.UserID, task.Platform, asOf.Add(-e.params.Lookback))
	if err != nil {
		return "", fmt.Errorf("failed to read previous snapshot: %w", err)
	}

	sendEvent(e.events, transformingEvent(task, e.clock.Now(), len(posts)))
	result, err := transform.Transform(transform.Input{
		UserID:   task.UserID,
		Profile:  *profile,
		Posts:    posts,
		Previous: previous,
		AsOf:     asOf,
	}, e.params)
	if err != nil {
		var ie *transform.InvariantError
		if errors.As(err, &ie) {
			logger.Error("payload rejected", append(ie.Ref.LogValues(), "reason", ie.Reason)...)
		}
		return "", err
	}

	sendEvent(e.events, persistingEvent(task, e.clock.Now()))
	persistCtx := ctx
	if e.cfg.PersistTimeout > 0 {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(ctx, e.cfg.PersistTimeout)
		defer cancel()
	}

	return e.deps.Pages.Persist(persistCtx, task.Lease(), &repositories.SyncResult{
		Page:     result.Page,
		Snapshot: result.Snapshot,
		Posts:    result.Posts,
	}, e.clock.Now())
}

// settle records the outcome of a failed attempt.
//
// Writes use a context detached from cancellation so a shutdown cannot strand the task in STARTED.
func (e *Executor) settle(ctx context.Context, task *models.SyncTask, err error, start time.Time, logger *log.Logger) {
	wctx := context.WithoutCancel(ctx)
	now := e.clock.Now()
	kind := shared.KindOf(err)
	message := shared.MessageOf(err)
	if kind == shared.KindInternal {
		message = "internal error"
	}

	if kind == shared.KindRevoked {
		if rerr := e.deps.Tasks.Revoke(wctx, task.Lease(), now); rerr != nil {
			e.logWriteFailure(logger, "failed to record revoke", rerr)
			return
		}
		e.observer.ObserveTransition(task.Platform, models.StateRevoked, kind)
		e.observer.ObserveAttempt(task.Platform, "revoked", now.Sub(start))
		sendEvent(e.events, revokedEvent(task, now))
		logger.Info("task revoked")
		return
	}

	if ctx.Err() != nil {
		// shutting down: hand the task back untouched so the next pool resumes it
		if rerr := e.deps.Tasks.Reschedule(wctx, task.Lease(), shared.KindCancelled, "interrupted by shutdown", now, now); rerr != nil {
			e.logWriteFailure(logger, "failed to release task on shutdown", rerr)
			return
		}
		e.observer.ObserveTransition(task.Platform, models.StatePending, shared.KindCancelled)
		e.observer.ObserveAttempt(task.Platform, "cancelled", now.Sub(start))
		logger.Info("attempt interrupted by shutdown")
		return
	}

	logger.Warn("attempt failed", "kind", kind, "error", err)
	e.maybeNotify(wctx, task, kind, message, err, now, logger)

	decision := e.policy.Decide(task, err)
	if decision.Retry {
		if rerr := e.deps.Tasks.Reschedule(wctx, task.Lease(), kind, message, now.Add(decision.Delay), now); rerr != nil {
			e.logWriteFailure(logger, "failed to reschedule task", rerr)
			return
		}
		e.observer.ObserveTransition(task.Platform, models.StatePending, kind)
		e.observer.ObserveAttempt(task.Platform, "retry", now.Sub(start))
		sendEvent(e.events, retryEvent(task, now, kind, decision.Delay))
		logger.Info("retry scheduled", "kind", kind, "delay", decision.Delay)
		return
	}

	if rerr := e.deps.Tasks.Fail(wctx, task.Lease(), kind, message, now); rerr != nil {
		e.logWriteFailure(logger, "failed to record failure", rerr)
		return
	}
	e.observer.ObserveTransition(task.Platform, models.StateFailure, kind)
	e.observer.ObserveAttempt(task.Platform, "failure", now.Sub(start))
	sendEvent(e.events, failedEvent(task, now, kind, message))
	logger.Error("task failed", "kind", kind, "message", message)
}

// logWriteFailure reports a transition that did not apply. A lost claim is only a warning.
func (e *Executor) logWriteFailure(logger *log.Logger, msg string, err error) {
	if errors.Is(err, shared.ErrPersistenceConflict) {
		logger.Warn("claim lost, leaving task to its new owner", "error", err)
		return
	}
	logger.Error(msg, "error", err)
}

// maybeNotify alerts an admin once per attempt that hit the provider quota or had its
// credentials rejected by the provider or the store.
func (e *Executor) maybeNotify(ctx context.Context, task *models.SyncTask, kind shared.ErrorKind, message string, err error, now time.Time, logger *log.Logger) {
	switch {
	case kind == shared.KindQuotaExceeded:
	case credentialRejected(err):
	default:
		return
	}

	alert := notify.Alert{
		Kind:      kind,
		TaskID:    task.ID,
		UserID:    task.UserID,
		Platform:  task.Platform,
		Attempt:   task.Attempts,
		Message:   message,
		Timestamp: now,
	}
	if nerr := e.deps.Notifier.NotifyAdmin(ctx, alert); nerr != nil {
		logger.Warn("failed to notify admin", "error", nerr)
		return
	}
	e.observer.ObserveNotification(kind)
}

func credentialRejected(err error) bool {
	if errors.Is(err, shared.ErrNoCredentials) {
		return true
	}
	var pe *services.ProviderError
	return errors.As(err, &pe) && (pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden)
}
