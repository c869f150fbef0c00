package models

import (
	"errors"
	"time"

	"channelpress/internal/platform"
)

type PostStatus string

const (
	PostStatusNew       PostStatus = "new"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
	PostStatusArchived  PostStatus = "archived"
)

// MediaRef points at a stored resource; the post does not own the bytes.
type MediaRef struct {
	ResourceID   string `db:"resource_id" json:"resource_id"`
	Key          string `db:"storage_key" json:"storage_key"`
	MIMEType     string `db:"mime_type" json:"mime_type"`
	Size         int64  `db:"size_bytes" json:"size_bytes"`
	DisplayOrder int    `db:"display_order" json:"display_order"`
}

// ThreadItem is one entry of a thread post. Order is explicit and decides
// publication order, not the item's position in the slice.
type ThreadItem struct {
	Order int        `db:"item_order" json:"order"`
	Text  string     `db:"text" json:"text"`
	Media []MediaRef `json:"media"`
}

// Post is a tagged union over regular/reel/story/thread content. The set of
// populated fields must match Variant; Validate enforces that.
type Post struct {
	ID             string           `db:"id" json:"id"`
	OrganizationID string           `db:"organization_id" json:"organization_id"`
	Variant        platform.Variant `db:"variant" json:"variant"`
	Text           string           `db:"text" json:"text"`
	Media          []MediaRef       `json:"media"`
	Thread         []ThreadItem     `json:"thread,omitempty"`
	Status         PostStatus       `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

var (
	ErrVariantMismatch = errors.New("post fields do not match declared variant")
	ErrEmptyPost       = errors.New("post has no text and no media")
)

// Validate checks the variant/field invariant.
func (p *Post) Validate() error {
	switch p.Variant {
	case platform.VariantThread:
		if len(p.Thread) == 0 {
			return ErrVariantMismatch
		}
		if p.Text != "" || len(p.Media) > 0 {
			return ErrVariantMismatch
		}
	case platform.VariantRegular, platform.VariantReel, platform.VariantStory:
		if len(p.Thread) > 0 {
			return ErrVariantMismatch
		}
		if p.Text == "" && len(p.Media) == 0 {
			return ErrEmptyPost
		}
	default:
		return ErrVariantMismatch
	}
	return nil
}
