package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

const credentialColumns = "id, user_id, platform, handle, access_token, refresh_token, expires_at, created_at, updated_at"

// CredentialRepository stores the platform accounts linked to each user.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert links or relinks a platform account; one credential exists per (user, platform).
func (r *CredentialRepository) Upsert(ctx context.Context, c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.ID == "" {
		c.ID = shared.GenerateID()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO credentials (id, user_id, platform, handle, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			handle = excluded.handle,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
		RETURNING id`,
		c.ID, c.UserID, c.Platform, c.Handle, c.AccessToken, c.RefreshToken, nullTime(c.ExpiresAt),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// GetToken returns the credential for (userID, platform) or [shared.ErrNotFound].
func (r *CredentialRepository) GetToken(ctx context.Context, userID string, platform models.Platform) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = ? AND platform = ?`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, userID, platform))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s credential for user %s", shared.ErrNotFound, platform, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return c, nil
}

// ListByUser returns every credential linked to userID in platform order.
func (r *CredentialRepository) ListByUser(ctx context.Context, userID string) ([]*models.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE user_id = ? ORDER BY platform`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// Delete unlinks a platform account.
func (r *CredentialRepository) Delete(ctx context.Context, userID string, platform models.Platform) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM credentials WHERE user_id = ? AND platform = ?", userID, platform)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return requireOne(res, "credential", userID+"/"+platform.String())
}

func scanCredential(s scanner) (*models.Credential, error) {
	var (
		c         models.Credential
		expiresAt sql.NullTime
	)
	err := s.Scan(&c.ID, &c.UserID, &c.Platform, &c.Handle, &c.AccessToken, &c.RefreshToken, &expiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ExpiresAt = timePtr(expiresAt)
	return &c, nil
}
