package channel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"channelpress/internal/auth"
	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/repository"
	"channelpress/internal/transfer"
	"channelpress/pkg/crypto"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelInUse    = errors.New("channel has pending scheduled posts")
)

// Service owns the connect/disconnect lifecycle of channels. Tokens pass
// through it in plaintext only between the provider exchange and the cipher.
type Service interface {
	BeginAuth(ctx context.Context, orgID string, plat platform.Platform, redirectSuccess, redirectDeny string) (authURL, state string, err error)
	CompleteAuth(ctx context.Context, input CallbackInput) (*models.Channel, string, error)
	List(ctx context.Context, orgID string) ([]*models.Channel, error)
	Get(ctx context.Context, orgID, channelID string) (*models.Channel, error)
	Deactivate(ctx context.Context, orgID, channelID string) error
	Remove(ctx context.Context, orgID, channelID string) error
}

// CallbackInput carries everything the provider sent back plus the state
// value mirrored in the caller's cookie.
type CallbackInput struct {
	IssuedState   string
	ReturnedState string
	Code          string
	// OAuth1Token is the oauth_token query value, set only on OAuth1 callbacks.
	OAuth1Token string
	// Denied marks a user who refused consent at the provider.
	Denied bool
}

type service struct {
	db           *sql.DB
	registry     *Registry
	states       *auth.StateManager
	cipher       *crypto.Cipher
	channels     repository.ChannelRepository
	integrations repository.IntegrationRepository
	scheduled    repository.ScheduledPostRepository
}

func NewService(
	db *sql.DB,
	registry *Registry,
	states *auth.StateManager,
	cipher *crypto.Cipher,
	channels repository.ChannelRepository,
	integrations repository.IntegrationRepository,
	scheduled repository.ScheduledPostRepository,
) Service {
	return &service{
		db:           db,
		registry:     registry,
		states:       states,
		cipher:       cipher,
		channels:     channels,
		integrations: integrations,
		scheduled:    scheduled,
	}
}

func (s *service) BeginAuth(ctx context.Context, orgID string, plat platform.Platform, redirectSuccess, redirectDeny string) (string, string, error) {
	m, err := s.registry.Lookup(plat)
	if err != nil {
		return "", "", err
	}

	var verifier string
	if m.Authenticator.UsesPKCE() {
		verifier = auth.GenerateVerifier()
	}

	state, err := s.states.Issue(&transfer.StateClaims{
		OrganizationID:  orgID,
		Platform:        string(plat),
		Verifier:        verifier,
		RedirectSuccess: redirectSuccess,
		RedirectDeny:    redirectDeny,
	})
	if err != nil {
		return "", "", err
	}

	authURL, err := m.Authenticator.AuthorizationURL(ctx, state, verifier)
	if err != nil {
		return "", "", err
	}

	return authURL, state, nil
}

// CompleteAuth verifies state, exchanges the code and persists the channel.
// It returns the channel and the caller's redirect target with any {{cId}}
// placeholder substituted.
func (s *service) CompleteAuth(ctx context.Context, input CallbackInput) (*models.Channel, string, error) {
	claims, err := s.states.Verify(input.IssuedState, input.ReturnedState)
	if err != nil {
		return nil, "", err
	}

	if input.Denied {
		return nil, claims.RedirectDeny, nil
	}

	plat, err := platform.Parse(claims.Platform)
	if err != nil {
		return nil, "", err
	}
	m, err := s.registry.Lookup(plat)
	if err != nil {
		return nil, "", err
	}

	verifier := claims.Verifier
	if input.OAuth1Token != "" {
		verifier = input.OAuth1Token
	}
	tokens, err := m.Authenticator.ExchangeCode(ctx, input.Code, verifier)
	if err != nil {
		return nil, "", fmt.Errorf("code exchange for %s: %w", plat, err)
	}

	identity, err := m.Authenticator.Identity(ctx, tokens)
	if err != nil {
		return nil, "", fmt.Errorf("identity lookup for %s: %w", plat, err)
	}

	ch, err := s.persistConnection(ctx, claims.OrganizationID, plat, tokens, identity)
	if err != nil {
		return nil, "", err
	}

	redirect := strings.ReplaceAll(claims.RedirectSuccess, "{{cId}}", ch.ID)
	return ch, redirect, nil
}

// persistConnection writes the integration and channel in one transaction. A
// reconnect of an already known provider account updates the existing channel
// in place instead of creating a duplicate.
func (s *service) persistConnection(ctx context.Context, orgID string, plat platform.Platform, tokens *auth.Tokens, identity *auth.Identity) (*models.Channel, error) {
	integration, err := s.sealTokens(plat, identity.ID, tokens)
	if err != nil {
		return nil, err
	}

	existing, err := s.channels.GetByPlatformAccount(ctx, orgID, plat, identity.ID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer tx.Rollback()

	integrationID, err := s.integrations.Create(ctx, tx, integration)
	if err != nil {
		return nil, err
	}

	var ch *models.Channel
	var staleIntegrationID string
	if existing != nil {
		staleIntegrationID = existing.IntegrationID
		existing.Name = identity.Name
		existing.Username = identity.Username
		existing.ProfilePicture = identity.Picture
		existing.ProfileURL = identity.ProfileURL
		existing.Status = models.ChannelStatusActive
		existing.IntegrationID = integrationID
		if err := s.channels.UpdateProfile(ctx, tx, existing); err != nil {
			return nil, err
		}
		ch = existing
	} else {
		channelID, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		ch = &models.Channel{
			ID:             channelID,
			OrganizationID: orgID,
			Platform:       plat,
			AccountID:      identity.ID,
			Name:           identity.Name,
			Username:       identity.Username,
			ProfilePicture: identity.Picture,
			ProfileURL:     identity.ProfileURL,
			Status:         models.ChannelStatusActive,
			IntegrationID:  integrationID,
		}
		if _, err := s.channels.Create(ctx, tx, ch); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if staleIntegrationID != "" {
		if err := s.integrations.Remove(ctx, staleIntegrationID); err != nil {
			slog.Info("stale integration cleanup failed", "integration_id", staleIntegrationID)
		}
	}

	return ch, nil
}

// sealTokens encrypts every credential field before it can reach storage.
func (s *service) sealTokens(plat platform.Platform, accountID string, tokens *auth.Tokens) (*models.SocialIntegration, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	si := &models.SocialIntegration{
		ID:             id,
		Platform:       plat,
		AccountID:      accountID,
		TokenExpiresAt: tokens.ExpiresAt,
		Scope:          tokens.Scope,
	}

	if si.AccessToken, err = s.cipher.Encrypt(tokens.AccessToken); err != nil {
		return nil, err
	}
	if tokens.RefreshToken != "" {
		if si.RefreshToken, err = s.cipher.Encrypt(tokens.RefreshToken); err != nil {
			return nil, err
		}
	}
	if tokens.TokenSecret != "" {
		if si.TokenSecret, err = s.cipher.Encrypt(tokens.TokenSecret); err != nil {
			return nil, err
		}
	}
	return si, nil
}

func (s *service) List(ctx context.Context, orgID string) ([]*models.Channel, error) {
	return s.channels.ListByOrganization(ctx, orgID)
}

func (s *service) Get(ctx context.Context, orgID, channelID string) (*models.Channel, error) {
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.OrganizationID != orgID {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}

// Deactivate revokes provider credentials where the platform supports it and
// marks the channel inactive. Revocation failures are logged and swallowed;
// the channel still deactivates locally.
func (s *service) Deactivate(ctx context.Context, orgID, channelID string) error {
	ch, err := s.Get(ctx, orgID, channelID)
	if err != nil {
		return err
	}

	m, err := s.registry.Lookup(ch.Platform)
	if err != nil {
		return err
	}

	if revoker, ok := m.Authenticator.(auth.Revoker); ok {
		tokens, err := s.openTokens(ctx, ch.IntegrationID)
		if err != nil {
			slog.Info("skipping revocation, credentials unavailable", "channel_id", ch.ID)
		} else {
			revokeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			if err := revoker.Revoke(revokeCtx, tokens); err != nil {
				slog.Info("token revocation failed", "channel_id", ch.ID, "platform", ch.Platform)
			}
			cancel()
		}
	}

	return s.channels.SetStatus(ctx, ch.ID, models.ChannelStatusInactive)
}

// Remove deletes the channel and its integration. A channel referenced by
// non-archived posts cannot be removed; archive those posts first.
func (s *service) Remove(ctx context.Context, orgID, channelID string) error {
	ch, err := s.Get(ctx, orgID, channelID)
	if err != nil {
		return err
	}

	active, err := s.scheduled.CountActiveByChannel(ctx, ch.ID)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: %d scheduled posts reference it", ErrChannelInUse, active)
	}

	if err := s.channels.Remove(ctx, ch.ID); err != nil {
		return err
	}
	return s.integrations.Remove(ctx, ch.IntegrationID)
}

func (s *service) openTokens(ctx context.Context, integrationID string) (*auth.Tokens, error) {
	si, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if si == nil {
		return nil, errors.New("integration not found")
	}

	tokens := &auth.Tokens{ExpiresAt: si.TokenExpiresAt, Scope: si.Scope}
	if tokens.AccessToken, err = s.cipher.Decrypt(si.AccessToken); err != nil {
		return nil, err
	}
	if si.RefreshToken != "" {
		if tokens.RefreshToken, err = s.cipher.Decrypt(si.RefreshToken); err != nil {
			return nil, err
		}
	}
	if si.TokenSecret != "" {
		if tokens.TokenSecret, err = s.cipher.Decrypt(si.TokenSecret); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}
