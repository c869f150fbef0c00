package posts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/transfer"
)

type memChannelRepo struct {
	byID map[string]*models.Channel
}

func (m *memChannelRepo) Create(_ context.Context, _ *sql.Tx, ch *models.Channel) (string, error) {
	return ch.ID, nil
}
func (m *memChannelRepo) GetByID(_ context.Context, id string) (*models.Channel, error) {
	return m.byID[id], nil
}
func (m *memChannelRepo) GetByPlatformAccount(_ context.Context, _ string, _ platform.Platform, _ string) (*models.Channel, error) {
	return nil, nil
}
func (m *memChannelRepo) ListByOrganization(_ context.Context, _ string) ([]*models.Channel, error) {
	return nil, nil
}
func (m *memChannelRepo) UpdateProfile(_ context.Context, _ *sql.Tx, _ *models.Channel) error {
	return nil
}
func (m *memChannelRepo) SetStatus(_ context.Context, _ string, _ models.ChannelStatus) error {
	return nil
}
func (m *memChannelRepo) Remove(_ context.Context, _ string) error { return nil }

type memPostRepo struct {
	byID     map[string]*models.Post
	statuses map[string]models.PostStatus
}

func (m *memPostRepo) Create(_ context.Context, _ *sql.Tx, p *models.Post) (string, error) {
	m.byID[p.ID] = p
	return p.ID, nil
}
func (m *memPostRepo) GetByID(_ context.Context, id string) (*models.Post, error) {
	return m.byID[id], nil
}
func (m *memPostRepo) ListByOrganization(_ context.Context, _ string) ([]*models.Post, error) {
	return nil, nil
}
func (m *memPostRepo) SetStatus(_ context.Context, id string, status models.PostStatus) error {
	m.statuses[id] = status
	return nil
}
func (m *memPostRepo) Remove(_ context.Context, _ string) error { return nil }

type memScheduledRepo struct {
	byID map[string]*models.ScheduledPost
}

func (m *memScheduledRepo) Create(_ context.Context, _ *sql.Tx, sp *models.ScheduledPost) (string, error) {
	m.byID[sp.ID] = sp
	return sp.ID, nil
}
func (m *memScheduledRepo) GetByID(_ context.Context, id string) (*models.ScheduledPost, error) {
	return m.byID[id], nil
}
func (m *memScheduledRepo) CountActiveByChannel(_ context.Context, _ string) (int64, error) {
	return 0, nil
}
func (m *memScheduledRepo) MarkStarted(_ context.Context, _ string) error      { return nil }
func (m *memScheduledRepo) MarkPublished(_ context.Context, _, _ string) error { return nil }
func (m *memScheduledRepo) MarkFailed(_ context.Context, _, _ string) error    { return nil }
func (m *memScheduledRepo) Remove(_ context.Context, _ string) error           { return nil }
func (m *memScheduledRepo) ListPublishedSince(_ context.Context, _ time.Time) ([]*models.ScheduledPost, error) {
	return nil, nil
}

type memMetricsRepo struct {
	latest map[string]*models.MetricsSnapshot
}

func (m *memMetricsRepo) Append(_ context.Context, snap *models.MetricsSnapshot) (int64, error) {
	return 1, nil
}
func (m *memMetricsRepo) GetLatest(_ context.Context, id string) (*models.MetricsSnapshot, error) {
	return m.latest[id], nil
}

func newTestService() (Service, *memChannelRepo, *memPostRepo, *memScheduledRepo, *memMetricsRepo) {
	channels := &memChannelRepo{byID: make(map[string]*models.Channel)}
	postsRepo := &memPostRepo{byID: make(map[string]*models.Post), statuses: make(map[string]models.PostStatus)}
	scheduled := &memScheduledRepo{byID: make(map[string]*models.ScheduledPost)}
	metrics := &memMetricsRepo{latest: make(map[string]*models.MetricsSnapshot)}
	svc := NewService(nil, postsRepo, scheduled, channels, metrics)
	return svc, channels, postsRepo, scheduled, metrics
}

func TestCreateRequiresChannels(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), "org-1", &transfer.PostCreation{
		Variant: string(platform.VariantRegular),
		Text:    "hello",
	})
	if !errors.Is(err, ErrNoChannels) {
		t.Fatalf("expected ErrNoChannels, got %v", err)
	}
}

func TestCreateRejectsInvalidVariantShape(t *testing.T) {
	svc, channels, _, _, _ := newTestService()
	channels.byID["ch-1"] = &models.Channel{
		ID: "ch-1", OrganizationID: "org-1", Platform: platform.X, Status: models.ChannelStatusActive,
	}

	_, err := svc.Create(context.Background(), "org-1", &transfer.PostCreation{
		Variant:    string(platform.VariantThread),
		Text:       "text does not belong on a thread",
		Thread:     []models.ThreadItem{{Order: 1, Text: "x"}},
		ChannelIDs: []string{"ch-1"},
	})
	if !errors.Is(err, models.ErrVariantMismatch) {
		t.Fatalf("expected ErrVariantMismatch, got %v", err)
	}
}

func TestCreateRejectsInactiveChannel(t *testing.T) {
	svc, channels, _, _, _ := newTestService()
	channels.byID["ch-1"] = &models.Channel{
		ID: "ch-1", OrganizationID: "org-1", Platform: platform.X, Status: models.ChannelStatusInactive,
	}

	_, err := svc.Create(context.Background(), "org-1", &transfer.PostCreation{
		Variant:    string(platform.VariantRegular),
		Text:       "hello",
		ChannelIDs: []string{"ch-1"},
	})
	if !errors.Is(err, ErrChannelInactive) {
		t.Fatalf("expected ErrChannelInactive, got %v", err)
	}
}

func TestCreateRejectsUnsupportedVariantForChannel(t *testing.T) {
	svc, channels, _, _, _ := newTestService()
	channels.byID["ch-1"] = &models.Channel{
		ID: "ch-1", OrganizationID: "org-1", Platform: platform.X, Status: models.ChannelStatusActive,
	}

	_, err := svc.Create(context.Background(), "org-1", &transfer.PostCreation{
		Variant: string(platform.VariantStory),
		Media: []models.MediaRef{
			{Key: "a.jpg", MIMEType: "image/jpeg", Size: 10},
		},
		ChannelIDs: []string{"ch-1"},
	})
	if err == nil {
		t.Fatal("expected an error for a story targeted at a platform without stories")
	}
}

func TestCreateRejectsForeignChannel(t *testing.T) {
	svc, channels, _, _, _ := newTestService()
	channels.byID["ch-1"] = &models.Channel{
		ID: "ch-1", OrganizationID: "org-2", Platform: platform.X, Status: models.ChannelStatusActive,
	}

	_, err := svc.Create(context.Background(), "org-1", &transfer.PostCreation{
		Variant:    string(platform.VariantRegular),
		Text:       "hello",
		ChannelIDs: []string{"ch-1"},
	})
	if !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound for a foreign channel, got %v", err)
	}
}

func TestGetScopesToOrganization(t *testing.T) {
	svc, _, postsRepo, _, _ := newTestService()
	postsRepo.byID["p-1"] = &models.Post{ID: "p-1", OrganizationID: "org-1"}

	if _, err := svc.Get(context.Background(), "org-1", "p-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.Get(context.Background(), "org-2", "p-1"); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound for another org, got %v", err)
	}
}

func TestArchiveSetsStatus(t *testing.T) {
	svc, _, postsRepo, _, _ := newTestService()
	postsRepo.byID["p-1"] = &models.Post{ID: "p-1", OrganizationID: "org-1"}

	if err := svc.Archive(context.Background(), "org-1", "p-1"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if postsRepo.statuses["p-1"] != models.PostStatusArchived {
		t.Fatal("post not archived")
	}
}

func TestScheduledInfoIncludesLatestMetrics(t *testing.T) {
	svc, _, _, scheduled, metrics := newTestService()
	scheduled.byID["sp-1"] = &models.ScheduledPost{ID: "sp-1", OrganizationID: "org-1"}
	fetched := time.Now()
	metrics.latest["sp-1"] = &models.MetricsSnapshot{
		ScheduledPostID: "sp-1",
		Metrics:         models.PostMetrics{Likes: 7},
		FetchedAt:       fetched,
	}

	info, err := svc.ScheduledInfo(context.Background(), "org-1", "sp-1")
	if err != nil {
		t.Fatalf("scheduled info: %v", err)
	}
	if info.Metrics == nil || info.Metrics.Likes != 7 {
		t.Fatalf("latest metrics not attached: %+v", info.Metrics)
	}
}
