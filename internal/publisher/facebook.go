package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"channelpress/internal/auth"
	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/storage"
)

// FacebookPublisher posts to a Facebook Page through the Graph API. The
// channel's platform account id is the page id and the stored access token
// is the page token.
type FacebookPublisher struct {
	resolver storage.MediaResolver
	client   *http.Client
	apiBase  string
}

func NewFacebookPublisher(resolver storage.MediaResolver) *FacebookPublisher {
	return &FacebookPublisher{
		resolver: resolver,
		client:   &http.Client{Timeout: 120 * time.Second},
		apiBase:  "https://graph.facebook.com/v21.0",
	}
}

func (p *FacebookPublisher) Publish(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, post *models.Post) (string, error) {
	prepared, err := prepare(platform.Facebook, post)
	if err != nil {
		return "", err
	}

	pageID := ch.AccountID

	switch prepared.Variant {
	case platform.VariantRegular:
		return p.postFeed(ctx, pageID, tokens.AccessToken, prepared.Text, prepared.Media)
	case platform.VariantReel:
		return p.postVideo(ctx, pageID, tokens.AccessToken, prepared.Text, prepared.Media)
	case platform.VariantStory:
		return p.postStory(ctx, pageID, tokens.AccessToken, prepared.Media)
	default:
		return "", &UnsupportedOperationError{Platform: platform.Facebook, Variant: prepared.Variant}
	}
}

func (p *FacebookPublisher) postFeed(ctx context.Context, pageID, token, text string, media []models.MediaRef) (string, error) {
	form := url.Values{}
	form.Set("message", text)
	form.Set("access_token", token)

	for i, m := range media {
		photoID, err := p.uploadPhoto(ctx, pageID, token, m, false)
		if err != nil {
			return "", err
		}
		form.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, photoID))
	}

	return p.postForm(ctx, fmt.Sprintf("%s/%s/feed", p.apiBase, pageID), form)
}

func (p *FacebookPublisher) postVideo(ctx context.Context, pageID, token, text string, media []models.MediaRef) (string, error) {
	signed, err := p.resolver.SignedURL(ctx, media[0].Key, time.Hour)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("file_url", signed)
	form.Set("description", text)
	form.Set("access_token", token)

	return p.postForm(ctx, fmt.Sprintf("%s/%s/videos", p.apiBase, pageID), form)
}

func (p *FacebookPublisher) postStory(ctx context.Context, pageID, token string, media []models.MediaRef) (string, error) {
	photoID, err := p.uploadPhoto(ctx, pageID, token, media[0], true)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("photo_id", photoID)
	form.Set("access_token", token)

	return p.postForm(ctx, fmt.Sprintf("%s/%s/photo_stories", p.apiBase, pageID), form)
}

// uploadPhoto creates an unpublished photo container referenced later by
// the feed or story call; bytes are pulled by Facebook from a signed URL.
func (p *FacebookPublisher) uploadPhoto(ctx context.Context, pageID, token string, m models.MediaRef, published bool) (string, error) {
	signed, err := p.resolver.SignedURL(ctx, m.Key, time.Hour)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("url", signed)
	form.Set("published", fmt.Sprintf("%t", published))
	form.Set("access_token", token)

	return p.postForm(ctx, fmt.Sprintf("%s/%s/photos", p.apiBase, pageID), form)
}

func (p *FacebookPublisher) postForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("facebook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Info("facebook graph call failed", "status", resp.StatusCode, "body", string(raw))
		return "", &ProviderError{Platform: platform.Facebook, Status: resp.StatusCode}
	}

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", ErrEmptyExternalID
	}
	return result.ID, nil
}

func (p *FacebookPublisher) FetchMetrics(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, externalID string, prev models.PostMetrics) (models.PostMetrics, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=likes.summary(true),comments.summary(true),shares&access_token=%s",
		p.apiBase, externalID, url.QueryEscape(tokens.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return prev, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return prev, fmt.Errorf("facebook: fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return prev, fmt.Errorf("facebook: fetch metrics returned status %d", resp.StatusCode)
	}

	var result struct {
		Likes *struct {
			Summary struct {
				TotalCount *int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"likes"`
		Comments *struct {
			Summary struct {
				TotalCount *int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"comments"`
		Shares *struct {
			Count *int64 `json:"count"`
		} `json:"shares"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return prev, err
	}

	metrics := prev
	if result.Likes != nil {
		metrics.Likes = pick(result.Likes.Summary.TotalCount, prev.Likes)
	}
	if result.Comments != nil {
		metrics.Comments = pick(result.Comments.Summary.TotalCount, prev.Comments)
	}
	if result.Shares != nil {
		metrics.Shares = pick(result.Shares.Count, prev.Shares)
	}
	return metrics, nil
}
