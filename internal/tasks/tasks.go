package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// UserStore reads users.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, activeOnly bool) ([]*models.User, error)
}

// CredentialStore reads linked accounts. GetToken returns [shared.ErrNotFound] when none exists.
type CredentialStore interface {
	GetToken(ctx context.Context, userID string, platform models.Platform) (*models.Credential, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Credential, error)
}

// TaskStore is the durable task record used by the dispatcher.
type TaskStore interface {
	CreateOrGetActive(ctx context.Context, userID string, platform models.Platform, now time.Time) (*models.SyncTask, bool, error)
	Get(ctx context.Context, id string) (*models.SyncTask, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.SyncTask, error)
	RequestRevoke(ctx context.Context, id string, now time.Time) (*models.SyncTask, error)
}

// PlatformResult is the dispatcher's answer for one requested platform.
type PlatformResult struct {
	Platform models.Platform
	TaskID   string
	Created  bool  // false when an in-flight task was returned
	Err      error // set instead of TaskID, e.g. for missing credentials
}

// Status is the client-facing projection of a task.
type Status struct {
	TaskID          string           `json:"task_id"`
	UserID          string           `json:"user_id"`
	Platform        models.Platform  `json:"platform"`
	State           models.TaskState `json:"state"`
	Attempts        int              `json:"attempts"`
	LastError       *StatusError     `json:"last_error,omitempty"`
	ResultRef       string           `json:"result_ref,omitempty"`
	EligibleAt      time.Time        `json:"eligible_at"`
	RevokeRequested bool             `json:"revoke_requested"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

// StatusError is the coarse error a client may see.
type StatusError struct {
	Kind    shared.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// StatusOf projects task.
func StatusOf(t *models.SyncTask) Status {
	s := Status{
		TaskID:          t.ID,
		UserID:          t.UserID,
		Platform:        t.Platform,
		State:           t.State,
		Attempts:        t.Attempts,
		ResultRef:       t.ResultRef,
		EligibleAt:      t.EligibleAt,
		RevokeRequested: t.RevokeRequested,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		FinishedAt:      t.FinishedAt,
	}
	if t.ErrorKind != shared.KindNone {
		s.LastError = &StatusError{Kind: t.ErrorKind, Message: t.ErrorMessage}
	}
	return s
}

// Waker is told when new work is queued.
type Waker interface {
	Wake()
}

// Dispatcher admits sync requests. It is safe for concurrent use.
type Dispatcher struct {
	users  UserStore
	creds  CredentialStore
	tasks  TaskStore
	clock  shared.Clock
	logger *log.Logger
	waker  Waker
	events chan<- Event
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithWaker notifies w whenever a task is created or revoked.
func WithWaker(w Waker) DispatcherOption {
	return func(d *Dispatcher) { d.waker = w }
}

// WithDispatcherEvents publishes Queued events to ch.
func WithDispatcherEvents(ch chan<- Event) DispatcherOption {
	return func(d *Dispatcher) { d.events = ch }
}

// WithDispatcherClock replaces the wall clock.
func WithDispatcherClock(c shared.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

// NewDispatcher creates a [Dispatcher].
func NewDispatcher(users UserStore, creds CredentialStore, tasks TaskStore, logger *log.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		users:  users,
		creds:  creds,
		tasks:  tasks,
		clock:  shared.SystemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RequestSync creates or returns one task per platform for userID.
//
// With no platforms, every platform with a usable credential is requested. A platform without
// a usable credential gets a result whose Err is [shared.ErrNoCredentials] and no task; the
// other platforms are unaffected. An unknown or inactive user fails with [shared.ErrInvalidUser].
func (d *Dispatcher) RequestSync(ctx context.Context, userID string, platforms []models.Platform) ([]PlatformResult, error) {
	if err := d.checkUser(ctx, userID); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	if len(platforms) == 0 {
		var err error
		platforms, err = d.usablePlatforms(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		if len(platforms) == 0 {
			return nil, shared.NewTaskError(shared.KindNoCredentials, "no linked account has a usable token",
				fmt.Errorf("%w: user %s", shared.ErrNoCredentials, userID))
		}
	}

	results := make([]PlatformResult, 0, len(platforms))
	for _, p := range platforms {
		results = append(results, d.requestOne(ctx, userID, p, now))
	}
	return results, nil
}

func (d *Dispatcher) requestOne(ctx context.Context, userID string, platform models.Platform, now time.Time) PlatformResult {
	res := PlatformResult{Platform: platform}
	if !platform.Valid() {
		res.Err = fmt.Errorf("%w: %q", shared.ErrUnknownPlatform, platform)
		return res
	}

	cred, err := d.creds.GetToken(ctx, userID, platform)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		res.Err = noCredentials(platform, "no linked account")
		return res
	case err != nil:
		res.Err = fmt.Errorf("failed to read credentials: %w", err)
		return res
	case !cred.Usable(now):
		res.Err = noCredentials(platform, "token missing or expired")
		return res
	}

	task, created, err := d.tasks.CreateOrGetActive(ctx, userID, platform, now)
	if err != nil {
		res.Err = err
		return res
	}
	res.TaskID, res.Created = task.ID, created

	if created {
		d.logger.Info("sync task queued", "task_id", task.ID, "user_id", userID, "platform", platform)
		sendEvent(d.events, queuedEvent(task, now))
		d.wake()
	} else {
		d.logger.Debug("sync already in flight", "task_id", task.ID, "user_id", userID, "platform", platform, "state", task.State)
	}
	return res
}

func noCredentials(platform models.Platform, why string) error {
	return shared.NewTaskError(shared.KindNoCredentials, fmt.Sprintf("%s: %s", platform, why),
		fmt.Errorf("%w: %s", shared.ErrNoCredentials, platform))
}

func (d *Dispatcher) checkUser(ctx context.Context, userID string) error {
	user, err := d.users.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewTaskError(shared.KindInvalidUser, "unknown user", fmt.Errorf("%w: %s", shared.ErrInvalidUser, userID))
	}
	if err != nil {
		return fmt.Errorf("failed to read user: %w", err)
	}
	if !user.Active || user.DeletedAt != nil {
		return shared.NewTaskError(shared.KindInvalidUser, "user is inactive", fmt.Errorf("%w: %s", shared.ErrInvalidUser, userID))
	}
	return nil
}

func (d *Dispatcher) usablePlatforms(ctx context.Context, userID string, now time.Time) ([]models.Platform, error) {
	creds, err := d.creds.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	usable := make(map[models.Platform]bool, len(creds))
	for _, c := range creds {
		if c.Usable(now) {
			usable[c.Platform] = true
		}
	}

	var platforms []models.Platform
	for _, p := range models.Platforms {
		if usable[p] {
			platforms = append(platforms, p)
		}
	}
	return platforms, nil
}

func (d *Dispatcher) wake() {
	if d.waker != nil {
		d.waker.Wake()
	}
}

// GetStatus returns the current projection of a task. It never waits on in-flight work.
func (d *Dispatcher) GetStatus(ctx context.Context, taskID string) (*Status, error) {
	task, err := d.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s := StatusOf(task)
	return &s, nil
}

// ListTasks returns a user's tasks, newest first.
func (d *Dispatcher) ListTasks(ctx context.Context, userID string, limit int) ([]Status, error) {
	tasks, err := d.tasks.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Status, len(tasks))
	for i, t := range tasks {
		out[i] = StatusOf(t)
	}
	return out, nil
}

// Revoke asks for a task to be cancelled. A running attempt stops within one revoke poll
// interval; a PENDING task is revoked by the next worker to claim it. Terminal tasks are
// returned unchanged.
func (d *Dispatcher) Revoke(ctx context.Context, taskID string) (*Status, error) {
	task, err := d.tasks.RequestRevoke(ctx, taskID, d.clock.Now())
	if err != nil {
		return nil, err
	}
	if !task.State.Terminal() {
		d.logger.Info("revoke requested", "task_id", task.ID, "state", task.State)
		d.wake()
	}
	s := StatusOf(task)
	return &s, nil
}
