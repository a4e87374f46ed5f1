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

const (
	pageColumns = `id, user_id, platform, external_id, username, display_name, profile_url, avatar_url, bio,
		followers_count, following_count, posts_count, engagement_rate, social_score, last_synced_at, created_at, updated_at`
	snapshotColumns = `s.id, s.page_id, s.task_id, s.taken_at, s.followers, s.following, s.posts, s.window_posts,
		s.total_likes, s.total_comments, s.total_shares, s.total_views, s.engagement_rate, s.growth_rate,
		s.projected_followers, s.reach, s.social_score`
	postColumns = `id, page_id, platform, external_id, kind, caption, url, media_url, published_at,
		likes, comments, shares, views, engagement_rate, created_at, updated_at`
)

// SyncResult is everything one successful attempt writes.
type SyncResult struct {
	Page     models.SocialPage
	Snapshot models.MetricSnapshot
	Posts    []models.PostUpdate
}

// PageRepository persists synced social data.
type PageRepository struct {
	db *sql.DB
}

// NewPageRepository creates a new [PageRepository] with the given database connection
func NewPageRepository(db *sql.DB) *PageRepository {
	return &PageRepository{db: db}
}

// Persist writes the result of the attempt held by lease in a single transaction and marks the
// task SUCCESS.
//
// The page is upserted, the snapshot appended, posts and comments upserted. The revoke flag is
// re-read inside the transaction; if set, nothing is written and [shared.ErrRevoked] is returned.
// A lease that no longer holds the claim writes nothing and returns [shared.ErrPersistenceConflict].
// Returns the id of the new snapshot.
func (r *PageRepository) Persist(ctx context.Context, lease models.Lease, result *SyncResult, now time.Time) (string, error) {
	now = now.UTC()
	taskID := lease.TaskID
	return withRetry(ctx, func(ctx context.Context) (string, error) {
		var snapshotID string
		err := withTx(ctx, r.db, func(tx *sql.Tx) error {
			if err := checkWritable(ctx, tx, lease); err != nil {
				return err
			}

			pageID, err := upsertPage(ctx, tx, &result.Page, &result.Snapshot, now)
			if err != nil {
				return err
			}

			snap := result.Snapshot
			snap.ID, snap.PageID, snap.TaskID = shared.GenerateID(), pageID, taskID
			if err := insertSnapshot(ctx, tx, &snap); err != nil {
				return err
			}

			for i := range result.Posts {
				if err := upsertPost(ctx, tx, pageID, &result.Posts[i], now); err != nil {
					return err
				}
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE sync_tasks
				SET state = 'SUCCESS', result_ref = ?, error_kind = '', error_message = '', updated_at = ?, finished_at = ?
				WHERE id = ? AND state = 'STARTED' AND revoke_requested = 0 AND claimed_by = ? AND attempts = ?`,
				snap.ID, now, now, taskID, lease.Worker, lease.Attempt)
			if err != nil {
				return fmt.Errorf("failed to complete task: %w", err)
			}
			if n, err := affected(res); err != nil {
				return err
			} else if n != 1 {
				return fmt.Errorf("%w: task %s changed during persist", shared.ErrPersistenceConflict, taskID)
			}

			result.Page.ID = pageID
			result.Snapshot = snap
			snapshotID = snap.ID
			return nil
		})
		return snapshotID, err
	})
}

func checkWritable(ctx context.Context, tx *sql.Tx, lease models.Lease) error {
	var (
		state    models.TaskState
		revoked  bool
		worker   string
		attempts int
	)
	err := tx.QueryRowContext(ctx, "SELECT state, revoke_requested, claimed_by, attempts FROM sync_tasks WHERE id = ?",
		lease.TaskID).Scan(&state, &revoked, &worker, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, lease.TaskID)
	}
	if err != nil {
		return fmt.Errorf("failed to read task: %w", err)
	}

	switch {
	case state != models.StateStarted:
		return fmt.Errorf("%w: task %s is %s", shared.ErrPersistenceConflict, lease.TaskID, state)
	case worker != lease.Worker || attempts != lease.Attempt:
		return fmt.Errorf("%w: task %s was reclaimed by %s on attempt %d", shared.ErrPersistenceConflict, lease.TaskID, worker, attempts)
	case revoked:
		return fmt.Errorf("%w: %s", shared.ErrRevoked, lease.TaskID)
	}
	return nil
}

func upsertPage(ctx context.Context, tx *sql.Tx, p *models.SocialPage, snap *models.MetricSnapshot, now time.Time) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO social_pages (id, user_id, platform, external_id, username, display_name, profile_url, avatar_url, bio,
			followers_count, following_count, posts_count, engagement_rate, social_score, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, external_id) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			display_name = excluded.display_name,
			profile_url = excluded.profile_url,
			avatar_url = excluded.avatar_url,
			bio = excluded.bio,
			followers_count = excluded.followers_count,
			following_count = excluded.following_count,
			posts_count = excluded.posts_count,
			engagement_rate = excluded.engagement_rate,
			social_score = excluded.social_score,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
		RETURNING id`,
		shared.GenerateID(), p.UserID, p.Platform, p.ExternalID, p.Username, p.DisplayName, p.ProfileURL, p.AvatarURL, p.Bio,
		p.FollowersCount, p.FollowingCount, p.PostsCount, snap.EngagementRate, snap.SocialScore, now, now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert page: %w", err)
	}
	return id, nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, s *models.MetricSnapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO metric_snapshots (id, page_id, task_id, taken_at, followers, following, posts, window_posts,
			total_likes, total_comments, total_shares, total_views, engagement_rate, growth_rate, projected_followers, reach, social_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PageID, s.TaskID, s.TakenAt.UTC(), s.Followers, s.Following, s.Posts, s.WindowPosts,
		s.TotalLikes, s.TotalComments, s.TotalShares, s.TotalViews, s.EngagementRate, s.GrowthRate,
		s.ProjectedFollowers, s.Reach, s.SocialScore)
	if shared.IsUniqueViolation(err) {
		return fmt.Errorf("%w: snapshot for task %s already exists", shared.ErrPersistenceConflict, s.TaskID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func upsertPost(ctx context.Context, tx *sql.Tx, pageID string, u *models.PostUpdate, now time.Time) error {
	p := &u.Post
	err := tx.QueryRowContext(ctx, `
		INSERT INTO posts (id, page_id, platform, external_id, kind, caption, url, media_url, published_at,
			likes, comments, shares, views, engagement_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, external_id) DO UPDATE SET
			page_id = excluded.page_id,
			kind = excluded.kind,
			caption = excluded.caption,
			url = excluded.url,
			media_url = excluded.media_url,
			published_at = excluded.published_at,
			likes = excluded.likes,
			comments = excluded.comments,
			shares = excluded.shares,
			views = excluded.views,
			engagement_rate = excluded.engagement_rate,
			updated_at = excluded.updated_at
		RETURNING id`,
		shared.GenerateID(), pageID, p.Platform, p.ExternalID, p.Kind, p.Caption, p.URL, p.MediaURL, nullTime(p.PublishedAt),
		p.Likes, p.Comments, p.Shares, p.Views, p.EngagementRate, now, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", p.ExternalID, err)
	}
	p.PageID = pageID

	for i := range u.Comments {
		c := &u.Comments[i]
		err := tx.QueryRowContext(ctx, `
			INSERT INTO comments (id, post_id, external_id, author, text, likes, posted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (post_id, external_id) DO UPDATE SET
				author = excluded.author,
				text = excluded.text,
				likes = excluded.likes,
				posted_at = excluded.posted_at
			RETURNING id`,
			shared.GenerateID(), p.ID, c.ExternalID, c.Author, c.Text, c.Likes, nullTime(c.PostedAt),
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert comment %s: %w", c.ExternalID, err)
		}
		c.PostID = p.ID
	}
	return nil
}

// PreviousSnapshot returns the newest snapshot for the user's page on platform taken at or before
// cutoff, or nil when there is none.
func (r *PageRepository) PreviousSnapshot(ctx context.Context, userID string, platform models.Platform, cutoff time.Time) (*models.MetricSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM metric_snapshots s JOIN social_pages p ON p.id = s.page_id
		WHERE p.user_id = ? AND p.platform = ? AND s.taken_at <= ?
		ORDER BY s.taken_at DESC
		LIMIT 1`

	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, query, userID, platform, cutoff.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query previous snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns a user's snapshot history, newest first, optionally narrowed to one platform.
func (r *PageRepository) ListSnapshots(ctx context.Context, userID string, platform models.Platform, limit int) ([]*models.MetricSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM metric_snapshots s JOIN social_pages p ON p.id = s.page_id
		WHERE p.user_id = ?`
	args := []any{userID}
	if platform != "" {
		query += " AND p.platform = ?"
		args = append(args, platform)
	}
	query += " ORDER BY s.taken_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.MetricSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// GetSnapshot retrieves a snapshot by ID.
func (r *PageRepository) GetSnapshot(ctx context.Context, id string) (*models.MetricSnapshot, error) {
	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM metric_snapshots s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: snapshot %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return snap, nil
}

// ListPages returns the pages owned by userID in platform order.
func (r *PageRepository) ListPages(ctx context.Context, userID string) ([]*models.SocialPage, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+pageColumns+` FROM social_pages WHERE user_id = ? ORDER BY platform`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []*models.SocialPage
	for rows.Next() {
		var (
			p        models.SocialPage
			lastSync sql.NullTime
		)
		err := rows.Scan(&p.ID, &p.UserID, &p.Platform, &p.ExternalID, &p.Username, &p.DisplayName, &p.ProfileURL,
			&p.AvatarURL, &p.Bio, &p.FollowersCount, &p.FollowingCount, &p.PostsCount, &p.EngagementRate,
			&p.SocialScore, &lastSync, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.LastSyncedAt = timePtr(lastSync)
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// ListPosts returns a page's posts, most recently published first.
func (r *PageRepository) ListPosts(ctx context.Context, pageID string, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE page_id = ? ORDER BY published_at DESC, external_id`
	args := []any{pageID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var (
			p         models.Post
			published sql.NullTime
		)
		err := rows.Scan(&p.ID, &p.PageID, &p.Platform, &p.ExternalID, &p.Kind, &p.Caption, &p.URL, &p.MediaURL,
			&published, &p.Likes, &p.Comments, &p.Shares, &p.Views, &p.EngagementRate, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.PublishedAt = timePtr(published)
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

// CountComments returns how many comments are stored for postID.
func (r *PageRepository) CountComments(ctx context.Context, postID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments WHERE post_id = ?", postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}

func scanSnapshot(s scanner) (*models.MetricSnapshot, error) {
	var m models.MetricSnapshot
	err := s.Scan(&m.ID, &m.PageID, &m.TaskID, &m.TakenAt, &m.Followers, &m.Following, &m.Posts, &m.WindowPosts,
		&m.TotalLikes, &m.TotalComments, &m.TotalShares, &m.TotalViews, &m.EngagementRate, &m.GrowthRate,
		&m.ProjectedFollowers, &m.Reach, &m.SocialScore)
	if err != nil {
		return nil, err
	}
	m.TakenAt = m.TakenAt.UTC()
	return &m, nil
}
