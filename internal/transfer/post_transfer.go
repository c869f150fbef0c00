package transfer

import (
	"time"

	"channelpress/internal/models"
)

// PostCreation is the schedule-post request body.
type PostCreation struct {
	Variant     string              `json:"variant"`
	Text        string              `json:"text"`
	Media       []models.MediaRef   `json:"media"`
	Thread      []models.ThreadItem `json:"thread"`
	ChannelIDs  []string            `json:"channel_ids"`
	ScheduledAt time.Time           `json:"scheduled_at"`
}

// ScheduleResult reports what was created for one schedule-post request.
type ScheduleResult struct {
	Post      *models.Post            `json:"post"`
	Scheduled []*models.ScheduledPost `json:"scheduled"`
}

// ScheduledPostInfo is a scheduled post with its latest metrics snapshot.
type ScheduledPostInfo struct {
	ScheduledPost *models.ScheduledPost `json:"scheduled_post"`
	Metrics       *models.PostMetrics   `json:"metrics,omitempty"`
	MetricsAt     *time.Time            `json:"metrics_at,omitempty"`
}

// PlatformCapabilities describes what one platform accepts, for clients to
// validate before submitting.
type PlatformCapabilities struct {
	Platform      string   `json:"platform"`
	Variants      []string `json:"variants"`
	MaxMedia      int      `json:"max_media"`
	MinMedia      int      `json:"min_media"`
	MIMETypes     []string `json:"mime_types"`
	MaxMediaBytes int64    `json:"max_media_bytes"`
	MaxTextLen    int      `json:"max_text_len"`
}
