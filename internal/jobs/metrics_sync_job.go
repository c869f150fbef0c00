package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"channelpress/internal/auth"
	"channelpress/internal/channel"
	"channelpress/internal/models"
	"channelpress/internal/repository"
	"channelpress/pkg/crypto"
)

// MetricsSyncJob re-reads engagement counters for recently published posts
// and appends a snapshot per post. One post failing never aborts the batch.
type MetricsSyncJob struct {
	sp       repository.ScheduledPostRepository
	ch       repository.ChannelRepository
	in       repository.IntegrationRepository
	pm       repository.MetricsRepository
	registry *channel.Registry
	cipher   *crypto.Cipher
	// retention bounds how long after publication metrics keep syncing.
	retention time.Duration
}

func NewMetricsSyncJob(
	sp repository.ScheduledPostRepository,
	ch repository.ChannelRepository,
	in repository.IntegrationRepository,
	pm repository.MetricsRepository,
	registry *channel.Registry,
	cipher *crypto.Cipher) *MetricsSyncJob {
	return &MetricsSyncJob{
		sp:        sp,
		ch:        ch,
		in:        in,
		pm:        pm,
		registry:  registry,
		cipher:    cipher,
		retention: 30 * 24 * time.Hour,
	}
}

func (c *MetricsSyncJob) SyncMetrics() {
	ctx := context.Background()

	published, err := c.sp.ListPublishedSince(ctx, time.Now().Add(-c.retention))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, sp := range published {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(sp *models.ScheduledPost) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.syncOne(ctx, sp); err != nil {
				slog.Info("metrics sync failed", "scheduled_post_id", sp.ID)
			}
		}(sp)
	}

	wg.Wait()
}

func (c *MetricsSyncJob) syncOne(ctx context.Context, sp *models.ScheduledPost) error {
	ch, err := c.ch.GetByID(ctx, sp.ChannelID)
	if err != nil {
		return err
	}
	if ch == nil || ch.Status != models.ChannelStatusActive {
		return nil
	}

	m, err := c.registry.Lookup(ch.Platform)
	if err != nil {
		return err
	}

	tokens, err := c.openTokens(ctx, ch.IntegrationID)
	if err != nil {
		return err
	}

	var prev models.PostMetrics
	latest, err := c.pm.GetLatest(ctx, sp.ID)
	if err != nil {
		return err
	}
	if latest != nil {
		prev = latest.Metrics
	}

	metrics, err := m.Publisher.FetchMetrics(ctx, ch, tokens, sp.ExternalPostID, prev)
	if err != nil {
		return err
	}

	_, err = c.pm.Append(ctx, &models.MetricsSnapshot{
		ScheduledPostID: sp.ID,
		Metrics:         metrics,
	})
	return err
}

func (c *MetricsSyncJob) openTokens(ctx context.Context, integrationID string) (*auth.Tokens, error) {
	si, err := c.in.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if si == nil {
		return nil, errors.New("integration not found")
	}

	tokens := &auth.Tokens{ExpiresAt: si.TokenExpiresAt}
	if tokens.AccessToken, err = c.cipher.Decrypt(si.AccessToken); err != nil {
		return nil, err
	}
	if si.TokenSecret != "" {
		if tokens.TokenSecret, err = c.cipher.Decrypt(si.TokenSecret); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}
