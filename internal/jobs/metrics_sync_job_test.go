package job

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"channelpress/internal/auth"
	"channelpress/internal/channel"
	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/pkg/crypto"
)

type memScheduledRepo struct {
	rows []*models.ScheduledPost
}

func (m *memScheduledRepo) Create(_ context.Context, _ *sql.Tx, sp *models.ScheduledPost) (string, error) {
	return sp.ID, nil
}
func (m *memScheduledRepo) GetByID(_ context.Context, _ string) (*models.ScheduledPost, error) {
	return nil, nil
}
func (m *memScheduledRepo) CountActiveByChannel(_ context.Context, _ string) (int64, error) {
	return 0, nil
}
func (m *memScheduledRepo) MarkStarted(_ context.Context, _ string) error        { return nil }
func (m *memScheduledRepo) MarkPublished(_ context.Context, _, _ string) error   { return nil }
func (m *memScheduledRepo) MarkFailed(_ context.Context, _, _ string) error      { return nil }
func (m *memScheduledRepo) Remove(_ context.Context, _ string) error             { return nil }
func (m *memScheduledRepo) ListPublishedSince(_ context.Context, _ time.Time) ([]*models.ScheduledPost, error) {
	return m.rows, nil
}

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

type memIntegrationRepo struct {
	byID map[string]*models.SocialIntegration
}

func (m *memIntegrationRepo) Create(_ context.Context, _ *sql.Tx, si *models.SocialIntegration) (string, error) {
	return si.ID, nil
}
func (m *memIntegrationRepo) GetByID(_ context.Context, id string) (*models.SocialIntegration, error) {
	return m.byID[id], nil
}
func (m *memIntegrationRepo) SetToken(_ context.Context, _, _ string, _ *models.SocialIntegration) error {
	return nil
}
func (m *memIntegrationRepo) ListExpiring(_ context.Context, _ time.Time) ([]*models.SocialIntegration, error) {
	return nil, nil
}
func (m *memIntegrationRepo) Remove(_ context.Context, _ string) error { return nil }

type memMetricsRepo struct {
	mu       sync.Mutex
	appended []*models.MetricsSnapshot
	latest   map[string]*models.MetricsSnapshot
}

func (m *memMetricsRepo) Append(_ context.Context, snap *models.MetricsSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, snap)
	return int64(len(m.appended)), nil
}

func (m *memMetricsRepo) GetLatest(_ context.Context, scheduledPostID string) (*models.MetricsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest[scheduledPostID], nil
}

type noopAuthenticator struct{}

func (noopAuthenticator) AuthorizationURL(_ context.Context, _, _ string) (string, error) {
	return "", nil
}
func (noopAuthenticator) ExchangeCode(_ context.Context, _, _ string) (*auth.Tokens, error) {
	return nil, errors.New("not used")
}
func (noopAuthenticator) Refresh(_ context.Context, _ string) (*auth.Tokens, error) {
	return nil, auth.ErrRefreshUnsupported
}
func (noopAuthenticator) Identity(_ context.Context, _ *auth.Tokens) (*auth.Identity, error) {
	return nil, errors.New("not used")
}
func (noopAuthenticator) UsesPKCE() bool { return false }

type metricsPublisher struct {
	mu       sync.Mutex
	calls    int
	lastPrev models.PostMetrics
	result   models.PostMetrics
	err      error
}

func (p *metricsPublisher) Publish(_ context.Context, _ *models.Channel, _ *auth.Tokens, _ *models.Post) (string, error) {
	return "", errors.New("not used")
}

func (p *metricsPublisher) FetchMetrics(_ context.Context, _ *models.Channel, _ *auth.Tokens, _ string, prev models.PostMetrics) (models.PostMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastPrev = prev
	if p.err != nil {
		return prev, p.err
	}
	return p.result, nil
}

func TestSyncMetricsIsolatesPerPostFailures(t *testing.T) {
	cipher, err := crypto.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	sealed, err := cipher.Encrypt("token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	broken := &metricsPublisher{err: errors.New("provider down")}
	working := &metricsPublisher{result: models.PostMetrics{Likes: 5}}

	registry := channel.NewRegistry()
	registry.Register(platform.X, &channel.Manager{Authenticator: noopAuthenticator{}, Publisher: broken})
	registry.Register(platform.LinkedIn, &channel.Manager{Authenticator: noopAuthenticator{}, Publisher: working})

	channels := &memChannelRepo{byID: map[string]*models.Channel{
		"ch-x":  {ID: "ch-x", Platform: platform.X, Status: models.ChannelStatusActive, IntegrationID: "int-1"},
		"ch-li": {ID: "ch-li", Platform: platform.LinkedIn, Status: models.ChannelStatusActive, IntegrationID: "int-1"},
	}}
	integrations := &memIntegrationRepo{byID: map[string]*models.SocialIntegration{
		"int-1": {ID: "int-1", AccessToken: sealed},
	}}
	scheduled := &memScheduledRepo{rows: []*models.ScheduledPost{
		{ID: "sp-x", ChannelID: "ch-x", ExternalPostID: "ext-x", Status: models.ScheduledPostStatusPublished},
		{ID: "sp-li", ChannelID: "ch-li", ExternalPostID: "ext-li", Status: models.ScheduledPostStatusPublished},
	}}
	metrics := &memMetricsRepo{latest: map[string]*models.MetricsSnapshot{}}

	job := NewMetricsSyncJob(scheduled, channels, integrations, metrics, registry, cipher)
	job.SyncMetrics()

	if working.calls != 1 {
		t.Fatalf("healthy platform not synced: %d calls", working.calls)
	}
	if len(metrics.appended) != 1 {
		t.Fatalf("expected 1 snapshot despite one failure, got %d", len(metrics.appended))
	}
	if metrics.appended[0].ScheduledPostID != "sp-li" {
		t.Fatalf("snapshot recorded for the wrong post: %s", metrics.appended[0].ScheduledPostID)
	}
	if metrics.appended[0].Metrics.Likes != 5 {
		t.Fatalf("snapshot metrics wrong: %+v", metrics.appended[0].Metrics)
	}
}

func TestSyncMetricsPassesPreviousSnapshot(t *testing.T) {
	cipher, err := crypto.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	sealed, err := cipher.Encrypt("token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	pub := &metricsPublisher{result: models.PostMetrics{Likes: 12}}
	registry := channel.NewRegistry()
	registry.Register(platform.X, &channel.Manager{Authenticator: noopAuthenticator{}, Publisher: pub})

	channels := &memChannelRepo{byID: map[string]*models.Channel{
		"ch-x": {ID: "ch-x", Platform: platform.X, Status: models.ChannelStatusActive, IntegrationID: "int-1"},
	}}
	integrations := &memIntegrationRepo{byID: map[string]*models.SocialIntegration{
		"int-1": {ID: "int-1", AccessToken: sealed},
	}}
	scheduled := &memScheduledRepo{rows: []*models.ScheduledPost{
		{ID: "sp-x", ChannelID: "ch-x", ExternalPostID: "ext-x", Status: models.ScheduledPostStatusPublished},
	}}
	metrics := &memMetricsRepo{latest: map[string]*models.MetricsSnapshot{
		"sp-x": {ScheduledPostID: "sp-x", Metrics: models.PostMetrics{Likes: 10}},
	}}

	job := NewMetricsSyncJob(scheduled, channels, integrations, metrics, registry, cipher)
	job.SyncMetrics()

	if pub.lastPrev.Likes != 10 {
		t.Fatalf("previous snapshot not passed to the publisher: %+v", pub.lastPrev)
	}
	if len(metrics.appended) != 1 || metrics.appended[0].Metrics.Likes != 12 {
		t.Fatal("fresh snapshot not appended")
	}
}
