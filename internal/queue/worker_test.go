package queue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"channelpress/internal/auth"
	"channelpress/internal/channel"
	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/publisher"
	"channelpress/internal/repository"
	"channelpress/pkg/crypto"
)

type stubScheduledRepo struct {
	byID      map[string]*models.ScheduledPost
	started   []string
	published map[string]string
	failed    map[string]string
}

func newStubScheduledRepo() *stubScheduledRepo {
	return &stubScheduledRepo{
		byID:      make(map[string]*models.ScheduledPost),
		published: make(map[string]string),
		failed:    make(map[string]string),
	}
}

func (s *stubScheduledRepo) Create(_ context.Context, _ *sql.Tx, sp *models.ScheduledPost) (string, error) {
	s.byID[sp.ID] = sp
	return sp.ID, nil
}

func (s *stubScheduledRepo) GetByID(_ context.Context, id string) (*models.ScheduledPost, error) {
	return s.byID[id], nil
}

func (s *stubScheduledRepo) CountActiveByChannel(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (s *stubScheduledRepo) MarkStarted(_ context.Context, id string) error {
	s.started = append(s.started, id)
	return nil
}

func (s *stubScheduledRepo) MarkPublished(_ context.Context, id, externalID string) error {
	s.published[id] = externalID
	return nil
}

func (s *stubScheduledRepo) MarkFailed(_ context.Context, id, reason string) error {
	s.failed[id] = reason
	return nil
}

func (s *stubScheduledRepo) ListPublishedSince(_ context.Context, _ time.Time) ([]*models.ScheduledPost, error) {
	return nil, nil
}

func (s *stubScheduledRepo) Remove(_ context.Context, id string) error { return nil }

type stubPostRepo struct {
	byID     map[string]*models.Post
	statuses map[string]models.PostStatus
}

func (s *stubPostRepo) Create(_ context.Context, _ *sql.Tx, p *models.Post) (string, error) {
	s.byID[p.ID] = p
	return p.ID, nil
}

func (s *stubPostRepo) GetByID(_ context.Context, id string) (*models.Post, error) {
	return s.byID[id], nil
}

func (s *stubPostRepo) ListByOrganization(_ context.Context, _ string) ([]*models.Post, error) {
	return nil, nil
}

func (s *stubPostRepo) SetStatus(_ context.Context, id string, status models.PostStatus) error {
	s.statuses[id] = status
	return nil
}

func (s *stubPostRepo) Remove(_ context.Context, id string) error { return nil }

type stubChannelRepo struct {
	byID map[string]*models.Channel
}

func (s *stubChannelRepo) Create(_ context.Context, _ *sql.Tx, ch *models.Channel) (string, error) {
	s.byID[ch.ID] = ch
	return ch.ID, nil
}

func (s *stubChannelRepo) GetByID(_ context.Context, id string) (*models.Channel, error) {
	return s.byID[id], nil
}

func (s *stubChannelRepo) GetByPlatformAccount(_ context.Context, _ string, _ platform.Platform, _ string) (*models.Channel, error) {
	return nil, nil
}

func (s *stubChannelRepo) ListByOrganization(_ context.Context, _ string) ([]*models.Channel, error) {
	return nil, nil
}

func (s *stubChannelRepo) UpdateProfile(_ context.Context, _ *sql.Tx, _ *models.Channel) error {
	return nil
}

func (s *stubChannelRepo) SetStatus(_ context.Context, _ string, _ models.ChannelStatus) error {
	return nil
}

func (s *stubChannelRepo) Remove(_ context.Context, _ string) error { return nil }

type stubIntegrationRepo struct {
	byID     map[string]*models.SocialIntegration
	setCalls int
	conflict bool
}

func (s *stubIntegrationRepo) Create(_ context.Context, _ *sql.Tx, si *models.SocialIntegration) (string, error) {
	s.byID[si.ID] = si
	return si.ID, nil
}

func (s *stubIntegrationRepo) GetByID(_ context.Context, id string) (*models.SocialIntegration, error) {
	return s.byID[id], nil
}

func (s *stubIntegrationRepo) SetToken(_ context.Context, id, oldAccessToken string, si *models.SocialIntegration) error {
	s.setCalls++
	if s.conflict {
		return repository.ErrTokenConflict
	}
	stored := s.byID[id]
	if stored == nil || stored.AccessToken != oldAccessToken {
		return repository.ErrTokenConflict
	}
	stored.AccessToken = si.AccessToken
	if si.RefreshToken != "" {
		stored.RefreshToken = si.RefreshToken
	}
	stored.TokenExpiresAt = si.TokenExpiresAt
	return nil
}

func (s *stubIntegrationRepo) ListExpiring(_ context.Context, _ time.Time) ([]*models.SocialIntegration, error) {
	return nil, nil
}

func (s *stubIntegrationRepo) Remove(_ context.Context, _ string) error { return nil }

type stubAuthenticator struct {
	refreshCalls int
	refreshed    *auth.Tokens
	refreshErr   error
}

func (s *stubAuthenticator) AuthorizationURL(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

func (s *stubAuthenticator) ExchangeCode(_ context.Context, _, _ string) (*auth.Tokens, error) {
	return nil, errors.New("not used")
}

func (s *stubAuthenticator) Refresh(_ context.Context, _ string) (*auth.Tokens, error) {
	s.refreshCalls++
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.refreshed, nil
}

func (s *stubAuthenticator) Identity(_ context.Context, _ *auth.Tokens) (*auth.Identity, error) {
	return nil, errors.New("not used")
}

func (s *stubAuthenticator) UsesPKCE() bool { return true }

type stubPublisher struct {
	calls      int
	lastTokens *auth.Tokens
	externalID string
	err        error
}

func (s *stubPublisher) Publish(_ context.Context, _ *models.Channel, tokens *auth.Tokens, _ *models.Post) (string, error) {
	s.calls++
	s.lastTokens = tokens
	if s.err != nil {
		return "", s.err
	}
	return s.externalID, nil
}

func (s *stubPublisher) FetchMetrics(_ context.Context, _ *models.Channel, _ *auth.Tokens, _ string, prev models.PostMetrics) (models.PostMetrics, error) {
	return prev, nil
}

type workerFixture struct {
	q         *Queue
	scheduled *stubScheduledRepo
	posts     *stubPostRepo
	channels  *stubChannelRepo
	ints      *stubIntegrationRepo
	authn     *stubAuthenticator
	pub       *stubPublisher
	cipher    *crypto.Cipher
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	cipher, err := crypto.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}

	f := &workerFixture{
		scheduled: newStubScheduledRepo(),
		posts:     &stubPostRepo{byID: make(map[string]*models.Post), statuses: make(map[string]models.PostStatus)},
		channels:  &stubChannelRepo{byID: make(map[string]*models.Channel)},
		ints:      &stubIntegrationRepo{byID: make(map[string]*models.SocialIntegration)},
		authn:     &stubAuthenticator{},
		pub:       &stubPublisher{externalID: "ext-1"},
		cipher:    cipher,
	}

	registry := channel.NewRegistry()
	registry.Register(platform.X, &channel.Manager{Authenticator: f.authn, Publisher: f.pub})

	f.q = NewQueue(f.scheduled, f.posts, f.channels, f.ints, registry, cipher)
	return f
}

func (f *workerFixture) seed(t *testing.T, tokenExpiry time.Time) {
	t.Helper()

	sealed, err := f.cipher.Encrypt("access-token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	sealedRT, err := f.cipher.Encrypt("refresh-token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	f.ints.byID["int-1"] = &models.SocialIntegration{
		ID:             "int-1",
		Platform:       platform.X,
		AccessToken:    sealed,
		RefreshToken:   sealedRT,
		TokenExpiresAt: tokenExpiry,
	}
	f.channels.byID["ch-1"] = &models.Channel{
		ID:            "ch-1",
		Platform:      platform.X,
		Status:        models.ChannelStatusActive,
		IntegrationID: "int-1",
	}
	f.posts.byID["p-1"] = &models.Post{
		ID:      "p-1",
		Variant: platform.VariantRegular,
		Text:    "hello",
		Status:  models.PostStatusNew,
	}
	f.scheduled.byID["sp-1"] = &models.ScheduledPost{
		ID:        "sp-1",
		PostID:    "p-1",
		ChannelID: "ch-1",
		Status:    models.ScheduledPostStatusPending,
	}
}

func TestPublishMissingScheduledPostSkipsRetry(t *testing.T) {
	f := newWorkerFixture(t)

	err := f.q.PublishScheduledPost(context.Background(), "missing")
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if f.pub.calls != 0 {
		t.Fatal("publisher called for a missing row")
	}
}

func TestPublishAlreadyPublishedIsNoOp(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(time.Hour))
	f.scheduled.byID["sp-1"].Status = models.ScheduledPostStatusPublished

	if err := f.q.PublishScheduledPost(context.Background(), "sp-1"); err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
	if f.pub.calls != 0 {
		t.Fatal("publisher called for an already published row")
	}
}

func TestPublishSuccess(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(time.Hour))

	if err := f.q.PublishScheduledPost(context.Background(), "sp-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if f.pub.calls != 1 {
		t.Fatalf("expected 1 publish call, got %d", f.pub.calls)
	}
	if f.pub.lastTokens.AccessToken != "access-token" {
		t.Fatal("publisher did not receive the decrypted token")
	}
	if f.scheduled.published["sp-1"] != "ext-1" {
		t.Fatalf("external id not recorded: %q", f.scheduled.published["sp-1"])
	}
	if f.posts.statuses["p-1"] != models.PostStatusPublished {
		t.Fatal("post status not advanced")
	}
	if len(f.scheduled.started) != 1 {
		t.Fatal("started timestamp not recorded")
	}
}

func TestPublishTerminalErrorMarksFailedAndSkipsRetry(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(time.Hour))
	f.pub.err = publisher.ErrTextTooLong

	err := f.q.PublishScheduledPost(context.Background(), "sp-1")
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if _, ok := f.scheduled.failed["sp-1"]; !ok {
		t.Fatal("failure not recorded")
	}
}

func TestPublishTransientErrorRetries(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(time.Hour))
	f.pub.err = errors.New("provider returned status 503")

	err := f.q.PublishScheduledPost(context.Background(), "sp-1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("transient error must stay retryable")
	}
	if len(f.scheduled.failed) != 0 {
		t.Fatal("transient error must not mark the row failed")
	}
}

func TestPublishPermanentProviderRejectionFailsTerminally(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(time.Hour))
	f.pub.err = &publisher.ProviderError{Platform: platform.X, Status: 403}

	err := f.q.PublishScheduledPost(context.Background(), "sp-1")
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if _, ok := f.scheduled.failed["sp-1"]; !ok {
		t.Fatal("failure not recorded")
	}
}

func TestPublishRateLimitedProviderRetries(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(time.Hour))
	f.pub.err = &publisher.ProviderError{Platform: platform.X, Status: 429}

	err := f.q.PublishScheduledPost(context.Background(), "sp-1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("rate limiting must stay retryable")
	}
	if len(f.scheduled.failed) != 0 {
		t.Fatal("rate limiting must not mark the row failed")
	}
}

func TestPublishInactiveChannelFailsTerminally(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(time.Hour))
	f.channels.byID["ch-1"].Status = models.ChannelStatusInactive

	err := f.q.PublishScheduledPost(context.Background(), "sp-1")
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if f.pub.calls != 0 {
		t.Fatal("publisher called for an inactive channel")
	}
}

func TestPublishRefreshesExpiredToken(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(-time.Minute))
	f.authn.refreshed = &auth.Tokens{
		AccessToken:  "fresh-access",
		RefreshToken: "fresh-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	if err := f.q.PublishScheduledPost(context.Background(), "sp-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if f.authn.refreshCalls != 1 {
		t.Fatalf("expected 1 refresh, got %d", f.authn.refreshCalls)
	}
	if f.pub.lastTokens.AccessToken != "fresh-access" {
		t.Fatal("publisher did not receive the refreshed token")
	}
	if f.ints.setCalls != 1 {
		t.Fatal("refreshed token not written back")
	}

	stored, err := f.cipher.Decrypt(f.ints.byID["int-1"].AccessToken)
	if err != nil {
		t.Fatalf("decrypt stored token: %v", err)
	}
	if stored != "fresh-access" {
		t.Fatal("stored token is not the refreshed one")
	}
}

func TestPublishRefreshFailureFailsTerminally(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(-time.Minute))
	f.authn.refreshErr = errors.New("invalid_grant")

	err := f.q.PublishScheduledPost(context.Background(), "sp-1")
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if f.pub.calls != 0 {
		t.Fatal("publisher called without valid credentials")
	}
}

func TestPublishLostRefreshRaceUsesStoredTokens(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, time.Now().Add(-time.Minute))
	f.authn.refreshed = &auth.Tokens{AccessToken: "loser-access", ExpiresAt: time.Now().Add(time.Hour)}
	f.ints.conflict = true

	if err := f.q.PublishScheduledPost(context.Background(), "sp-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// The winner's stored token is the seeded one in this fixture.
	if f.pub.lastTokens.AccessToken != "access-token" {
		t.Fatalf("expected stored token after lost race, got %q", f.pub.lastTokens.AccessToken)
	}
}
