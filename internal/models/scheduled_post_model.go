package models

import "time"

type ScheduledPostStatus string

const (
	ScheduledPostStatusPending   ScheduledPostStatus = "pending"
	ScheduledPostStatusPublished ScheduledPostStatus = "published"
	ScheduledPostStatusFailed    ScheduledPostStatus = "failed"
)

// ScheduledPost is one intended publication of a Post to one Channel at one
// time. It is mutated only by the publish pipeline and never deleted while
// referenced by history.
type ScheduledPost struct {
	ID             string              `db:"id" json:"id"`
	PostID         string              `db:"post_id" json:"post_id"`
	ChannelID      string              `db:"channel_id" json:"channel_id"`
	OrganizationID string              `db:"organization_id" json:"organization_id"`
	ScheduledAt    time.Time           `db:"scheduled_at" json:"scheduled_at"`
	Status         ScheduledPostStatus `db:"status" json:"status"`
	StartedAt      time.Time           `db:"started_at" json:"started_at"`
	PublishedAt    time.Time           `db:"published_at" json:"published_at"`
	FailedAt       time.Time           `db:"failed_at" json:"failed_at"`
	FailureReason  string              `db:"failure_reason" json:"failure_reason"`
	ExternalPostID string              `db:"external_post_id" json:"external_post_id"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}
