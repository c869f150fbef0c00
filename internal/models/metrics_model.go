package models

import "time"

// PostMetrics are normalized engagement counters for a published post.
type PostMetrics struct {
	Likes       int64 `db:"likes" json:"likes"`
	Comments    int64 `db:"comments" json:"comments"`
	Shares      int64 `db:"shares" json:"shares"`
	Impressions int64 `db:"impressions" json:"impressions"`
	Clicks      int64 `db:"clicks" json:"clicks"`
}

// MetricsSnapshot is one appended metrics-history row for a scheduled post.
type MetricsSnapshot struct {
	ID              int64       `db:"id"`
	ScheduledPostID string      `db:"scheduled_post_id"`
	Metrics         PostMetrics `db:"-"`
	FetchedAt       time.Time   `db:"fetched_at"`
}
