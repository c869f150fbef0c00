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

// TokenRefreshJob proactively refreshes integrations whose tokens expire
// within the lookahead window, so publish tasks rarely hit a cold refresh.
type TokenRefreshJob struct {
	in       repository.IntegrationRepository
	registry *channel.Registry
	cipher   *crypto.Cipher
	// lookahead is how far ahead of expiry a token is refreshed.
	lookahead time.Duration
}

func NewTokenRefreshJob(in repository.IntegrationRepository, registry *channel.Registry, cipher *crypto.Cipher) *TokenRefreshJob {
	return &TokenRefreshJob{
		in:        in,
		registry:  registry,
		cipher:    cipher,
		lookahead: 30 * time.Minute,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	integrations, err := c.in.ListExpiring(ctx, time.Now().Add(c.lookahead))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, si := range integrations {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(si *models.SocialIntegration) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refreshOne(ctx, si); err != nil {
				slog.Info("token refresh failed", "integration_id", si.ID, "platform", si.Platform)
			}
		}(si)
	}

	wg.Wait()
}

func (c *TokenRefreshJob) refreshOne(ctx context.Context, si *models.SocialIntegration) error {
	m, err := c.registry.Lookup(si.Platform)
	if err != nil {
		return err
	}

	if si.RefreshToken == "" {
		return nil
	}
	refreshToken, err := c.cipher.Decrypt(si.RefreshToken)
	if err != nil {
		return err
	}

	fresh, err := m.Authenticator.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshUnsupported) {
			return nil
		}
		return err
	}

	update := &models.SocialIntegration{TokenExpiresAt: fresh.ExpiresAt}
	if update.AccessToken, err = c.cipher.Encrypt(fresh.AccessToken); err != nil {
		return err
	}
	if fresh.RefreshToken != "" {
		if update.RefreshToken, err = c.cipher.Encrypt(fresh.RefreshToken); err != nil {
			return err
		}
	}

	err = c.in.SetToken(ctx, si.ID, si.AccessToken, update)
	if errors.Is(err, repository.ErrTokenConflict) {
		// Someone refreshed it first; nothing left to do.
		return nil
	}
	return err
}
