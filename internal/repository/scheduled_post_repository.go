package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"channelpress/internal/models"
)

type ScheduledPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sp *models.ScheduledPost) (string, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledPost, error)
	CountActiveByChannel(ctx context.Context, channelID string) (int64, error)
	MarkStarted(ctx context.Context, id string) error
	MarkPublished(ctx context.Context, id, externalPostID string) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListPublishedSince(ctx context.Context, since time.Time) ([]*models.ScheduledPost, error)
	Remove(ctx context.Context, id string) error
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const scheduledPostColumns = `id, post_id, channel_id, organization_id, scheduled_at, status,
	started_at, published_at, failed_at, failure_reason, external_post_id, created_at, updated_at`

func scanScheduledPost(row interface{ Scan(...interface{}) error }) (*models.ScheduledPost, error) {
	var sp models.ScheduledPost
	var startedAt, publishedAt, failedAt sql.NullTime
	var reason, externalID sql.NullString
	err := row.Scan(&sp.ID, &sp.PostID, &sp.ChannelID, &sp.OrganizationID, &sp.ScheduledAt,
		&sp.Status, &startedAt, &publishedAt, &failedAt, &reason, &externalID,
		&sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sp.StartedAt = startedAt.Time
	sp.PublishedAt = publishedAt.Time
	sp.FailedAt = failedAt.Time
	sp.FailureReason = reason.String
	sp.ExternalPostID = externalID.String
	return &sp, nil
}

func (r *scheduledPostRepository) Create(ctx context.Context, tx *sql.Tx, sp *models.ScheduledPost) (string, error) {
	var insertQuery = `
			INSERT INTO scheduled_posts(
				id,
				post_id,
				channel_id,
				organization_id,
				scheduled_at,
				status
			)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`

	args := []interface{}{sp.ID, sp.PostID, sp.ChannelID, sp.OrganizationID, sp.ScheduledAt, sp.Status}

	var id string
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, insertQuery, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, insertQuery, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return id, nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE id = $1`
	sp, err := scanScheduledPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sp, nil
}

// CountActiveByChannel counts scheduled posts whose parent post has not been
// archived. Channel deletion is blocked while this is non-zero.
func (r *scheduledPostRepository) CountActiveByChannel(ctx context.Context, channelID string) (int64, error) {
	query := `SELECT COUNT(*) FROM scheduled_posts sp
		JOIN posts p ON p.id = sp.post_id
		WHERE sp.channel_id = $1 AND p.status != $2`

	var count int64
	err := r.db.QueryRowContext(ctx, query, channelID, models.PostStatusArchived).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return count, nil
}

func (r *scheduledPostRepository) MarkStarted(ctx context.Context, id string) error {
	query := `UPDATE scheduled_posts
		SET started_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) MarkPublished(ctx context.Context, id, externalPostID string) error {
	query := `UPDATE scheduled_posts
		SET status = $2,
			external_post_id = $3,
			published_at = CURRENT_TIMESTAMP,
			failure_reason = '',
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, models.ScheduledPostStatusPublished, externalPostID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE scheduled_posts
		SET status = $2,
			failure_reason = $3,
			failed_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, models.ScheduledPostStatusFailed, reason)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListPublishedSince feeds the metrics sync; rows older than the retention
// window are never touched again.
func (r *scheduledPostRepository) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts
		WHERE status = $1 AND published_at >= $2 AND external_post_id != ''`
	rows, err := r.db.QueryContext(ctx, query, models.ScheduledPostStatusPublished, since)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var scheduled []*models.ScheduledPost
	for rows.Next() {
		sp, err := scanScheduledPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		scheduled = append(scheduled, sp)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return scheduled, nil
}

func (r *scheduledPostRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM scheduled_posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
