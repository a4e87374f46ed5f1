package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// ErrNotClaimable is returned by [TaskRepository.Claim] when another worker got there first
// or the task is not yet eligible.
var ErrNotClaimable = fmt.Errorf("task not claimable")

const taskColumns = `id, sequence, user_id, platform, state, attempts, eligible_at, revoke_requested, claimed_by, conflicts,
	error_kind, error_message, result_ref, created_at, updated_at, started_at, finished_at`

// TaskRepository is the durable task store.
//
// Every transition is a conditional UPDATE on the current state so concurrent writers
// cannot move a task twice.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new [TaskRepository] with the given database connection
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// CreateOrGetActive returns the non-terminal task for (userID, platform), creating a PENDING one
// if none exists. created reports whether a new row was inserted.
func (r *TaskRepository) CreateOrGetActive(ctx context.Context, userID string, platform models.Platform, now time.Time) (task *models.SyncTask, created bool, err error) {
	type outcome struct {
		task    *models.SyncTask
		created bool
	}

	out, err := withRetry(ctx, func(ctx context.Context) (outcome, error) {
		var o outcome
		err := withTx(ctx, r.db, func(tx *sql.Tx) error {
			existing, err := r.active(ctx, tx, userID, platform)
			if err != nil {
				return err
			}
			if existing != nil {
				o.task = existing
				return nil
			}

			sequence, err := NextSequence(ctx, tx, "sync_tasks")
			if err != nil {
				return err
			}

			now := now.UTC()
			t := &models.SyncTask{
				ID:         shared.GenerateID(),
				Sequence:   sequence,
				UserID:     userID,
				Platform:   platform,
				State:      models.StatePending,
				EligibleAt: now,
				CreatedAt:  now,
				UpdatedAt:  now,
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO sync_tasks (id, sequence, user_id, platform, state, attempts, eligible_at, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
				t.ID, t.Sequence, t.UserID, t.Platform, t.State, t.EligibleAt, t.CreatedAt, t.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert task: %w", err)
			}

			o.task, o.created = t, true
			return nil
		})
		return o, err
	})

	if shared.IsUniqueViolation(err) {
		// A concurrent request created the row between our read and write.
		existing, aerr := r.active(ctx, r.db, userID, platform)
		if aerr != nil {
			return nil, false, aerr
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return out.task, out.created, nil
}

func (r *TaskRepository) active(ctx context.Context, q querier, userID string, platform models.Platform) (*models.SyncTask, error) {
	query := `SELECT ` + taskColumns + ` FROM sync_tasks
		WHERE user_id = ? AND platform = ? AND state IN ('PENDING', 'STARTED')`

	task, err := scanTask(q.QueryRowContext(ctx, query, userID, platform))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active task: %w", err)
	}
	return task, nil
}

// Get retrieves a task by ID.
func (r *TaskRepository) Get(ctx context.Context, id string) (*models.SyncTask, error) {
	return r.get(ctx, r.db, id)
}

func (r *TaskRepository) get(ctx context.Context, q querier, id string) (*models.SyncTask, error) {
	query := `SELECT ` + taskColumns + ` FROM sync_tasks WHERE id = ?`

	task, err := scanTask(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

// ListByUser returns a user's tasks, newest first. A non-positive limit returns all of them.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.SyncTask, error) {
	query := `SELECT ` + taskColumns + ` FROM sync_tasks WHERE user_id = ? ORDER BY sequence DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// ListClaimable returns up to limit PENDING tasks eligible at now, oldest eligibility first.
func (r *TaskRepository) ListClaimable(ctx context.Context, now time.Time, limit int) ([]*models.SyncTask, error) {
	query := `SELECT ` + taskColumns + ` FROM sync_tasks
		WHERE state = 'PENDING' AND eligible_at <= ?
		ORDER BY eligible_at ASC, sequence ASC
		LIMIT ?`
	return r.list(ctx, query, now.UTC(), limit)
}

// CountByState returns the number of tasks in each state.
func (r *TaskRepository) CountByState(ctx context.Context) (map[models.TaskState]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM sync_tasks GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskState]int)
	for rows.Next() {
		var state models.TaskState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]*models.SyncTask, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.SyncTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tasks, nil
}

// Claim moves an eligible PENDING task to STARTED on behalf of workerID and counts the attempt.
//
// Returns [ErrNotClaimable] when the compare-and-set loses.
func (r *TaskRepository) Claim(ctx context.Context, id, workerID string, now time.Time) (*models.SyncTask, error) {
	now = now.UTC()
	return withRetry(ctx, func(ctx context.Context) (*models.SyncTask, error) {
		res, err := r.db.ExecContext(ctx, `
			UPDATE sync_tasks
			SET state = 'STARTED', attempts = attempts + 1, claimed_by = ?, started_at = ?, updated_at = ?
			WHERE id = ? AND state = 'PENDING' AND eligible_at <= ?`,
			workerID, now, now, id, now)
		if err != nil {
			return nil, fmt.Errorf("failed to claim task: %w", err)
		}

		n, err := affected(res)
		if err != nil {
			return nil, err
		}
		if n != 1 {
			return nil, fmt.Errorf("%w: %s", ErrNotClaimable, id)
		}
		return r.Get(ctx, id)
	})
}

// Reschedule returns a STARTED task to PENDING, recording the error and the earliest time
// it may be claimed again. A persistence conflict is counted against the task.
//
// Like every transition below, it applies only while lease still holds the claim and returns
// [shared.ErrPersistenceConflict] otherwise.
func (r *TaskRepository) Reschedule(ctx context.Context, lease models.Lease, kind shared.ErrorKind, message string, eligibleAt, now time.Time) error {
	return r.transition(ctx, lease, `
		UPDATE sync_tasks
		SET state = 'PENDING', eligible_at = ?, error_kind = ?, error_message = ?, claimed_by = '', updated_at = ?,
			conflicts = conflicts + CASE WHEN ? THEN 1 ELSE 0 END
		WHERE id = ? AND state = 'STARTED' AND claimed_by = ? AND attempts = ?`,
		eligibleAt.UTC(), kind, message, now.UTC(), kind == shared.KindPersistenceConflict, lease.TaskID, lease.Worker, lease.Attempt)
}

// Fail moves a STARTED task to FAILURE.
func (r *TaskRepository) Fail(ctx context.Context, lease models.Lease, kind shared.ErrorKind, message string, now time.Time) error {
	return r.finish(ctx, lease, models.StateFailure, kind, message, now)
}

// Revoke moves a STARTED task to REVOKED.
func (r *TaskRepository) Revoke(ctx context.Context, lease models.Lease, now time.Time) error {
	return r.finish(ctx, lease, models.StateRevoked, shared.KindRevoked, "task revoked", now)
}

func (r *TaskRepository) finish(ctx context.Context, lease models.Lease, state models.TaskState, kind shared.ErrorKind, message string, now time.Time) error {
	now = now.UTC()
	return r.transition(ctx, lease, `
		UPDATE sync_tasks
		SET state = ?, error_kind = ?, error_message = ?, updated_at = ?, finished_at = ?
		WHERE id = ? AND state = 'STARTED' AND claimed_by = ? AND attempts = ?`,
		state, kind, message, now, now, lease.TaskID, lease.Worker, lease.Attempt)
}

func (r *TaskRepository) transition(ctx context.Context, lease models.Lease, query string, args ...any) error {
	_, err := withRetry(ctx, func(ctx context.Context) (struct{}, error) {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to update task %s: %w", lease.TaskID, err)
		}
		n, err := affected(res)
		if err != nil {
			return struct{}{}, err
		}
		if n != 1 {
			return struct{}{}, fmt.Errorf("%w: task %s is no longer held by %s on attempt %d",
				shared.ErrPersistenceConflict, lease.TaskID, lease.Worker, lease.Attempt)
		}
		return struct{}{}, nil
	})
	return err
}

// RequestRevoke flags a non-terminal task for revocation. Terminal tasks are returned unchanged.
//
// A PENDING task waiting out a backoff becomes eligible immediately so a worker can revoke it.
func (r *TaskRepository) RequestRevoke(ctx context.Context, id string, now time.Time) (*models.SyncTask, error) {
	now = now.UTC()
	_, err := withRetry(ctx, func(ctx context.Context) (struct{}, error) {
		_, err := r.db.ExecContext(ctx, `
			UPDATE sync_tasks
			SET revoke_requested = 1,
				eligible_at = CASE WHEN state = 'PENDING' AND eligible_at > ? THEN ? ELSE eligible_at END,
				updated_at = ?
			WHERE id = ? AND state IN ('PENDING', 'STARTED')`,
			now, now, now, id)
		return struct{}{}, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request revoke: %w", err)
	}
	return r.Get(ctx, id)
}

// RequeueStale returns STARTED tasks claimed before startedBefore to PENDING.
//
// A task is only left STARTED that long when its worker died mid-attempt.
func (r *TaskRepository) RequeueStale(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	now = now.UTC()
	return withRetry(ctx, func(ctx context.Context) (int64, error) {
		res, err := r.db.ExecContext(ctx, `
			UPDATE sync_tasks
			SET state = 'PENDING', eligible_at = ?, claimed_by = '', error_kind = ?, error_message = 'worker lost', updated_at = ?
			WHERE state = 'STARTED' AND started_at < ?`,
			now, shared.KindTransient, now, startedBefore.UTC())
		if err != nil {
			return 0, fmt.Errorf("failed to requeue stale tasks: %w", err)
		}
		return affected(res)
	})
}

// IsRevokeRequested reports whether a revoke was requested for the task.
func (r *TaskRepository) IsRevokeRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.db.QueryRowContext(ctx, "SELECT revoke_requested FROM sync_tasks WHERE id = ?", id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to query revoke flag: %w", err)
	}
	return requested, nil
}

func scanTask(s scanner) (*models.SyncTask, error) {
	var (
		t          models.SyncTask
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := s.Scan(&t.ID, &t.Sequence, &t.UserID, &t.Platform, &t.State, &t.Attempts, &t.EligibleAt,
		&t.RevokeRequested, &t.ClaimedBy, &t.Conflicts, &t.ErrorKind, &t.ErrorMessage, &t.ResultRef,
		&t.CreatedAt, &t.UpdatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	t.EligibleAt = t.EligibleAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.StartedAt = timePtr(startedAt)
	t.FinishedAt = timePtr(finishedAt)
	return &t, nil
}
