package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"channelpress/internal/auth"
	"channelpress/internal/models"
	"channelpress/internal/publisher"
)

// refreshLeeway is how close to expiry a token gets refreshed before use.
const refreshLeeway = 5 * time.Minute

// HandlePublishPostTask is the asynq handler for publish:post. A returned
// error that wraps asynq.SkipRetry is terminal; any other error is retried
// by the broker with its backoff.
func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
	}

	err := q.PublishScheduledPost(ctx, payload.ScheduledPostID)
	if err != nil && !errors.Is(err, asynq.SkipRetry) && lastAttempt(ctx) {
		// The broker archives the task after this return; without a status
		// write here the row would stay pending forever.
		return q.failTerminal(ctx, payload.ScheduledPostID, "retries exhausted: "+err.Error())
	}
	return err
}

// lastAttempt reports whether the current delivery is the task's final one.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	max, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= max
}

// PublishScheduledPost runs the full publish pipeline for one scheduled post.
// Status is re-read at execution time so a row published or cancelled between
// enqueue and execution becomes a no-op.
func (q *Queue) PublishScheduledPost(ctx context.Context, scheduledPostID string) error {
	sp, err := q.sp.GetByID(ctx, scheduledPostID)
	if err != nil {
		return err
	}
	if sp == nil {
		return fmt.Errorf("scheduled post %s does not exist: %w", scheduledPostID, asynq.SkipRetry)
	}
	if sp.Status == models.ScheduledPostStatusPublished {
		slog.Info("scheduled post already published", "scheduled_post_id", sp.ID)
		return nil
	}

	post, err := q.pr.GetByID(ctx, sp.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		return q.failTerminal(ctx, sp.ID, "post no longer exists")
	}
	if post.Status == models.PostStatusArchived {
		return q.failTerminal(ctx, sp.ID, "post is archived")
	}

	ch, err := q.ch.GetByID(ctx, sp.ChannelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return q.failTerminal(ctx, sp.ID, "channel no longer exists")
	}
	if ch.Status != models.ChannelStatusActive {
		return q.failTerminal(ctx, sp.ID, fmt.Sprintf("channel is %s", ch.Status))
	}

	m, err := q.registry.Lookup(ch.Platform)
	if err != nil {
		return q.failTerminal(ctx, sp.ID, err.Error())
	}

	tokens, err := q.credentials(ctx, ch.IntegrationID, m.Authenticator)
	if err != nil {
		if errors.Is(err, errNeedsReconnect) {
			return q.failTerminal(ctx, sp.ID, "credentials expired and could not be refreshed")
		}
		return err
	}

	if err := q.sp.MarkStarted(ctx, sp.ID); err != nil {
		return err
	}

	externalID, err := m.Publisher.Publish(ctx, ch, tokens, post)
	if err != nil {
		if terminal(err) {
			return q.failTerminal(ctx, sp.ID, err.Error())
		}
		slog.Info("publish attempt failed, will retry", "scheduled_post_id", sp.ID, "platform", ch.Platform)
		return err
	}

	if err := q.sp.MarkPublished(ctx, sp.ID, externalID); err != nil {
		return err
	}
	if err := q.pr.SetStatus(ctx, post.ID, models.PostStatusPublished); err != nil {
		slog.Info("post status update failed", "post_id", post.ID)
	}

	slog.Info("published", "scheduled_post_id", sp.ID, "platform", ch.Platform, "external_post_id", externalID)
	return nil
}

var errNeedsReconnect = errors.New("integration needs reconnect")

// credentials loads and decrypts the integration tokens, refreshing them
// first when they are at or past expiry. A lost refresh race falls back to
// re-reading whatever the winner stored.
func (q *Queue) credentials(ctx context.Context, integrationID string, authn auth.Authenticator) (*auth.Tokens, error) {
	si, err := q.in.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if si == nil {
		return nil, errNeedsReconnect
	}

	tokens, err := q.openTokens(si.AccessToken, si.RefreshToken, si.TokenSecret)
	if err != nil {
		return nil, err
	}
	tokens.ExpiresAt = si.TokenExpiresAt

	if !tokens.Expired(refreshLeeway) {
		return tokens, nil
	}

	fresh, err := authn.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshUnsupported) {
			return tokens, nil
		}
		slog.Info("token refresh failed", "integration_id", si.ID)
		return nil, errNeedsReconnect
	}

	update := &models.SocialIntegration{TokenExpiresAt: fresh.ExpiresAt}
	if update.AccessToken, err = q.cipher.Encrypt(fresh.AccessToken); err != nil {
		return nil, err
	}
	if fresh.RefreshToken != "" {
		if update.RefreshToken, err = q.cipher.Encrypt(fresh.RefreshToken); err != nil {
			return nil, err
		}
	}

	if err := q.in.SetToken(ctx, si.ID, si.AccessToken, update); err != nil {
		// Another worker refreshed concurrently; use what it stored.
		current, readErr := q.in.GetByID(ctx, si.ID)
		if readErr != nil || current == nil {
			return nil, errNeedsReconnect
		}
		tokens, err = q.openTokens(current.AccessToken, current.RefreshToken, current.TokenSecret)
		if err != nil {
			return nil, err
		}
		tokens.ExpiresAt = current.TokenExpiresAt
		return tokens, nil
	}

	fresh.TokenSecret = tokens.TokenSecret
	return fresh, nil
}

func (q *Queue) openTokens(sealedAccess, sealedRefresh, sealedSecret string) (*auth.Tokens, error) {
	var tokens auth.Tokens
	var err error
	if tokens.AccessToken, err = q.cipher.Decrypt(sealedAccess); err != nil {
		return nil, err
	}
	if sealedRefresh != "" {
		if tokens.RefreshToken, err = q.cipher.Decrypt(sealedRefresh); err != nil {
			return nil, err
		}
	}
	if sealedSecret != "" {
		if tokens.TokenSecret, err = q.cipher.Decrypt(sealedSecret); err != nil {
			return nil, err
		}
	}
	return &tokens, nil
}

// failTerminal records the failure and tells the broker not to retry. The
// reason is the classification only; raw provider responses and credentials
// never reach the row.
func (q *Queue) failTerminal(ctx context.Context, scheduledPostID, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	if err := q.sp.MarkFailed(ctx, scheduledPostID, reason); err != nil {
		return err
	}
	slog.Info("publish failed permanently", "scheduled_post_id", scheduledPostID, "reason", reason)
	return fmt.Errorf("%s: %w", reason, asynq.SkipRetry)
}

// terminal reports whether a publish error can never succeed on retry.
// Validation and capability violations are terminal, as are permanent
// provider rejections; network and availability problems are not.
func terminal(err error) bool {
	var unsupported *publisher.UnsupportedOperationError
	if errors.As(err, &unsupported) {
		return true
	}
	var denied *publisher.ProviderError
	if errors.As(err, &denied) {
		return denied.Permanent()
	}
	switch {
	case errors.Is(err, publisher.ErrTextTooLong),
		errors.Is(err, publisher.ErrTooFewMedia),
		errors.Is(err, publisher.ErrMediaType),
		errors.Is(err, publisher.ErrMediaTooLarge),
		errors.Is(err, publisher.ErrMissingProfile),
		errors.Is(err, models.ErrVariantMismatch),
		errors.Is(err, models.ErrEmptyPost):
		return true
	}
	return false
}
