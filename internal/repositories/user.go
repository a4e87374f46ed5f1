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

const userColumns = "id, sequence, email, name, active, created_at, updated_at, deleted_at"

// UserRepository persists [models.User] rows.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database with generated ID and sequence
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		sequence, err := NextSequence(ctx, tx, "users")
		if err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}

		id := shared.GenerateID()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, sequence, email, name, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, sequence, user.Email, user.Name, user.Active, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		user.ID, user.Sequence = id, sequence
		return nil
	})
}

// Get retrieves a user by ID, excluding soft-deleted users.
//
// Unknown ids yield [shared.ErrNotFound].
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ? AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, excluding soft-deleted users.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ? AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// SetActive toggles whether the scheduler syncs this user.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET active = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		active, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireOne(res, "user", id)
}

// Delete soft-deletes a user by ID
func (r *UserRepository) Delete(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET deleted_at = ?, active = 0 WHERE id = ? AND deleted_at IS NULL`, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireOne(res, "user", id)
}

// List retrieves users ordered by sequence, excluding soft-deleted users.
func (r *UserRepository) List(ctx context.Context, activeOnly bool) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL`
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY sequence ASC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

func scanUser(s scanner) (*models.User, error) {
	var (
		u         models.User
		deletedAt sql.NullTime
	)
	if err := s.Scan(&u.ID, &u.Sequence, &u.Email, &u.Name, &u.Active, &u.CreatedAt, &u.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	u.DeletedAt = timePtr(deletedAt)
	return &u, nil
}

func requireOne(res sql.Result, entity, id string) error {
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, entity, id)
	}
	return nil
}
