package models

import (
	"time"

	"channelpress/internal/platform"
)

type ChannelStatus string

const (
	ChannelStatusActive   ChannelStatus = "active"
	ChannelStatusInactive ChannelStatus = "inactive"
	ChannelStatusPending  ChannelStatus = "pending"
)

// Channel is a connected social-media account for an organization.
type Channel struct {
	ID             string            `db:"id" json:"id"`
	OrganizationID string            `db:"organization_id" json:"organization_id"`
	Platform       platform.Platform `db:"platform" json:"platform"`
	AccountID      string            `db:"account_id" json:"account_id"`
	Name           string            `db:"name" json:"name"`
	Username       string            `db:"username" json:"username"`
	ProfilePicture string            `db:"profile_picture_url" json:"profile_picture"`
	ProfileURL     string            `db:"profile_url" json:"profile_url"`
	Status         ChannelStatus     `db:"status" json:"status"`
	IntegrationID  string            `db:"integration_id" json:"-"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// SocialIntegration is the credential record backing a Channel. Access and
// refresh tokens are stored as cipher envelopes, never plaintext.
type SocialIntegration struct {
	ID             string            `db:"id"`
	Platform       platform.Platform `db:"platform"`
	AccountID      string            `db:"account_id"`
	AccessToken    string            `db:"access_token"`
	RefreshToken   string            `db:"refresh_token"`
	TokenSecret    string            `db:"token_secret"`
	TokenExpiresAt time.Time         `db:"token_expires_at"`
	Scope          string            `db:"scope"`
	Metadata       []byte            `db:"metadata"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}
