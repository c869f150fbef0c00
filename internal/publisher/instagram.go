package publisher

import (
	"bytes"
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

// InstagramPublisher uses the two-step container flow of the Instagram
// Graph API: create one or more media containers, then publish.
type InstagramPublisher struct {
	resolver storage.MediaResolver
	client   *http.Client
	apiBase  string
}

func NewInstagramPublisher(resolver storage.MediaResolver) *InstagramPublisher {
	return &InstagramPublisher{
		resolver: resolver,
		client:   &http.Client{Timeout: 120 * time.Second},
		apiBase:  "https://graph.instagram.com/v21.0",
	}
}

func (p *InstagramPublisher) Publish(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, post *models.Post) (string, error) {
	prepared, err := prepare(platform.Instagram, post)
	if err != nil {
		return "", err
	}

	switch prepared.Variant {
	case platform.VariantRegular:
		return p.postRegular(ctx, ch.AccountID, tokens.AccessToken, prepared.Text, prepared.Media)
	case platform.VariantReel:
		signed, err := p.resolver.SignedURL(ctx, prepared.Media[0].Key, time.Hour)
		if err != nil {
			return "", err
		}
		return p.postContainer(ctx, ch.AccountID, tokens.AccessToken, map[string]interface{}{
			"media_type": "REELS",
			"video_url":  signed,
			"caption":    prepared.Text,
		})
	case platform.VariantStory:
		signed, err := p.resolver.SignedURL(ctx, prepared.Media[0].Key, time.Hour)
		if err != nil {
			return "", err
		}
		payload := map[string]interface{}{"media_type": "STORIES"}
		payload[mediaURLKey(prepared.Media[0])] = signed
		return p.postContainer(ctx, ch.AccountID, tokens.AccessToken, payload)
	default:
		return "", &UnsupportedOperationError{Platform: platform.Instagram, Variant: prepared.Variant}
	}
}

func (p *InstagramPublisher) postRegular(ctx context.Context, accountID, token, caption string, media []models.MediaRef) (string, error) {
	if len(media) == 1 {
		signed, err := p.resolver.SignedURL(ctx, media[0].Key, time.Hour)
		if err != nil {
			return "", err
		}
		payload := map[string]interface{}{"caption": caption}
		if isVideo(media[0]) {
			// The Graph API retired the VIDEO feed type; single feed videos
			// are reel containers.
			payload["media_type"] = "REELS"
			payload["video_url"] = signed
		} else {
			payload["image_url"] = signed
		}
		return p.postContainer(ctx, accountID, token, payload)
	}

	// Carousel: one container per item, then a carousel container.
	children := make([]string, 0, len(media))
	for _, m := range media {
		signed, err := p.resolver.SignedURL(ctx, m.Key, time.Hour)
		if err != nil {
			return "", err
		}
		payload := map[string]interface{}{"is_carousel_item": true}
		if isVideo(m) {
			payload["media_type"] = "VIDEO"
		}
		payload[mediaURLKey(m)] = signed
		id, err := p.createContainer(ctx, accountID, token, payload)
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	return p.postContainer(ctx, accountID, token, map[string]interface{}{
		"media_type": "CAROUSEL",
		"children":   strings.Join(children, ","),
		"caption":    caption,
	})
}

func isVideo(m models.MediaRef) bool {
	return strings.HasPrefix(m.MIMEType, "video/")
}

func mediaURLKey(m models.MediaRef) string {
	if isVideo(m) {
		return "video_url"
	}
	return "image_url"
}

func (p *InstagramPublisher) postContainer(ctx context.Context, accountID, token string, payload map[string]interface{}) (string, error) {
	containerID, err := p.createContainer(ctx, accountID, token, payload)
	if err != nil {
		return "", err
	}
	return p.publishContainer(ctx, accountID, token, containerID)
}

func (p *InstagramPublisher) createContainer(ctx context.Context, accountID, token string, payload map[string]interface{}) (string, error) {
	payload["access_token"] = token
	return p.postJSON(ctx, fmt.Sprintf("%s/%s/media", p.apiBase, accountID), payload)
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, accountID, token, containerID string) (string, error) {
	return p.postJSON(ctx, fmt.Sprintf("%s/%s/media_publish", p.apiBase, accountID), map[string]interface{}{
		"creation_id":  containerID,
		"access_token": token,
	})
}

func (p *InstagramPublisher) postJSON(ctx context.Context, endpoint string, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("instagram: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Info("instagram graph call failed", "status", resp.StatusCode, "body", string(raw))
		return "", &ProviderError{Platform: platform.Instagram, Status: resp.StatusCode}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", ErrEmptyExternalID
	}
	return result.ID, nil
}

func (p *InstagramPublisher) FetchMetrics(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, externalID string, prev models.PostMetrics) (models.PostMetrics, error) {
	reqURL := fmt.Sprintf("%s/%s/insights?metric=likes,comments,shares,reach&access_token=%s",
		p.apiBase, externalID, url.QueryEscape(tokens.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return prev, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return prev, fmt.Errorf("instagram: fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return prev, fmt.Errorf("instagram: fetch metrics returned status %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value *int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return prev, err
	}

	metrics := prev
	for _, entry := range result.Data {
		if len(entry.Values) == 0 {
			continue
		}
		value := entry.Values[0].Value
		switch entry.Name {
		case "likes":
			metrics.Likes = pick(value, prev.Likes)
		case "comments":
			metrics.Comments = pick(value, prev.Comments)
		case "shares":
			metrics.Shares = pick(value, prev.Shares)
		case "reach":
			metrics.Impressions = pick(value, prev.Impressions)
		}
	}
	return metrics, nil
}
