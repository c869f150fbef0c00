package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/repository"
	"channelpress/internal/transfer"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrNoChannels      = errors.New("no channels selected")
	ErrChannelInactive = errors.New("channel is not active")
)

// Service owns post creation and scheduling. Enqueueing the publish tasks is
// left to the caller so the broker client stays out of this package.
type Service interface {
	Create(ctx context.Context, orgID string, input *transfer.PostCreation) (*transfer.ScheduleResult, error)
	List(ctx context.Context, orgID string) ([]*models.Post, error)
	Get(ctx context.Context, orgID, postID string) (*models.Post, error)
	Archive(ctx context.Context, orgID, postID string) error
	ScheduledInfo(ctx context.Context, orgID, scheduledPostID string) (*transfer.ScheduledPostInfo, error)
}

type service struct {
	db        *sql.DB
	posts     repository.PostRepository
	scheduled repository.ScheduledPostRepository
	channels  repository.ChannelRepository
	metrics   repository.MetricsRepository
}

func NewService(
	db *sql.DB,
	posts repository.PostRepository,
	scheduled repository.ScheduledPostRepository,
	channels repository.ChannelRepository,
	metrics repository.MetricsRepository,
) Service {
	return &service{
		db:        db,
		posts:     posts,
		scheduled: scheduled,
		channels:  channels,
		metrics:   metrics,
	}
}

// Create validates the post, checks every target channel and writes the post
// plus one scheduled row per channel in a single transaction. Capability
// validation beyond the variant shape happens at publish time, where the
// platform profile applies.
func (s *service) Create(ctx context.Context, orgID string, input *transfer.PostCreation) (*transfer.ScheduleResult, error) {
	if len(input.ChannelIDs) == 0 {
		return nil, ErrNoChannels
	}

	postID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:             postID,
		OrganizationID: orgID,
		Variant:        platform.Variant(input.Variant),
		Text:           input.Text,
		Media:          input.Media,
		Thread:         input.Thread,
		Status:         models.PostStatusNew,
	}
	if err := post.Validate(); err != nil {
		return nil, err
	}

	scheduledAt := input.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	targets := make([]*models.Channel, 0, len(input.ChannelIDs))
	for _, channelID := range input.ChannelIDs {
		ch, err := s.channels.GetByID(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if ch == nil || ch.OrganizationID != orgID {
			return nil, fmt.Errorf("channel %s: %w", channelID, ErrPostNotFound)
		}
		if ch.Status != models.ChannelStatusActive {
			return nil, fmt.Errorf("channel %s: %w", channelID, ErrChannelInactive)
		}
		if prof, ok := platform.ProfileFor(ch.Platform); !ok || !prof.SupportsVariant(post.Variant) {
			return nil, fmt.Errorf("channel %s: %s does not support %s posts", channelID, ch.Platform, post.Variant)
		}
		targets = append(targets, ch)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer tx.Rollback()

	if _, err := s.posts.Create(ctx, tx, post); err != nil {
		return nil, err
	}

	scheduled := make([]*models.ScheduledPost, 0, len(targets))
	for _, ch := range targets {
		spID, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		sp := &models.ScheduledPost{
			ID:             spID,
			PostID:         post.ID,
			ChannelID:      ch.ID,
			OrganizationID: orgID,
			ScheduledAt:    scheduledAt,
			Status:         models.ScheduledPostStatusPending,
		}
		if _, err := s.scheduled.Create(ctx, tx, sp); err != nil {
			return nil, err
		}
		scheduled = append(scheduled, sp)
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &transfer.ScheduleResult{Post: post, Scheduled: scheduled}, nil
}

func (s *service) List(ctx context.Context, orgID string) ([]*models.Post, error) {
	return s.posts.ListByOrganization(ctx, orgID)
}

func (s *service) Get(ctx context.Context, orgID, postID string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil || post.OrganizationID != orgID {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// Archive hides the post from listings. Scheduled rows stay; the publish
// pipeline treats an archived post as a terminal failure.
func (s *service) Archive(ctx context.Context, orgID, postID string) error {
	if _, err := s.Get(ctx, orgID, postID); err != nil {
		return err
	}
	return s.posts.SetStatus(ctx, postID, models.PostStatusArchived)
}

func (s *service) ScheduledInfo(ctx context.Context, orgID, scheduledPostID string) (*transfer.ScheduledPostInfo, error) {
	sp, err := s.scheduled.GetByID(ctx, scheduledPostID)
	if err != nil {
		return nil, err
	}
	if sp == nil || sp.OrganizationID != orgID {
		return nil, ErrPostNotFound
	}

	info := &transfer.ScheduledPostInfo{ScheduledPost: sp}
	latest, err := s.metrics.GetLatest(ctx, sp.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		info.Metrics = &latest.Metrics
		info.MetricsAt = &latest.FetchedAt
	}
	return info, nil
}
