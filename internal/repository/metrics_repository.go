package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"channelpress/internal/models"
)

type MetricsRepository interface {
	Append(ctx context.Context, snapshot *models.MetricsSnapshot) (int64, error)
	GetLatest(ctx context.Context, scheduledPostID string) (*models.MetricsSnapshot, error)
}

type metricsRepository struct {
	db *sql.DB
}

func NewMetricsRepository(db *sql.DB) MetricsRepository {
	return &metricsRepository{db: db}
}

// Append is insert-only. History rows are never updated so the metrics table
// doubles as an audit trail of what each sync observed.
func (r *metricsRepository) Append(ctx context.Context, snapshot *models.MetricsSnapshot) (int64, error) {
	var insertQuery = `
			INSERT INTO post_metrics(
				scheduled_post_id,
				likes,
				comments,
				shares,
				impressions,
				clicks
			)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`

	var id int64
	err := r.db.QueryRowContext(ctx, insertQuery,
		snapshot.ScheduledPostID,
		snapshot.Metrics.Likes,
		snapshot.Metrics.Comments,
		snapshot.Metrics.Shares,
		snapshot.Metrics.Impressions,
		snapshot.Metrics.Clicks,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *metricsRepository) GetLatest(ctx context.Context, scheduledPostID string) (*models.MetricsSnapshot, error) {
	query := `SELECT id, scheduled_post_id, likes, comments, shares, impressions, clicks, fetched_at
		FROM post_metrics
		WHERE scheduled_post_id = $1
		ORDER BY fetched_at DESC
		LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, scheduledPostID)

	var snap models.MetricsSnapshot
	err := row.Scan(&snap.ID, &snap.ScheduledPostID, &snap.Metrics.Likes, &snap.Metrics.Comments,
		&snap.Metrics.Shares, &snap.Metrics.Impressions, &snap.Metrics.Clicks, &snap.FetchedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &snap, nil
}
