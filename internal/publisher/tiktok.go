package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"channelpress/internal/auth"
	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/storage"
	"channelpress/internal/transfer"
)

// TikTokPublisher posts through the TikTok Content Posting API using the
// PULL_FROM_URL source: TikTok fetches media from a signed URL. Regular
// posts become photo posts, reels become direct video posts.
type TikTokPublisher struct {
	resolver storage.MediaResolver
	client   *http.Client
	apiBase  string
}

func NewTikTokPublisher(resolver storage.MediaResolver) *TikTokPublisher {
	return &TikTokPublisher{
		resolver: resolver,
		client:   &http.Client{Timeout: 120 * time.Second},
		apiBase:  "https://open.tiktokapis.com",
	}
}

func (p *TikTokPublisher) Publish(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, post *models.Post) (string, error) {
	prepared, err := prepare(platform.TikTok, post)
	if err != nil {
		return "", err
	}

	switch prepared.Variant {
	case platform.VariantRegular:
		return p.postPhotos(ctx, tokens.AccessToken, prepared.Text, prepared.Media)
	case platform.VariantReel:
		return p.postVideo(ctx, tokens.AccessToken, prepared.Text, prepared.Media)
	default:
		return "", &UnsupportedOperationError{Platform: platform.TikTok, Variant: prepared.Variant}
	}
}

func (p *TikTokPublisher) postVideo(ctx context.Context, token, caption string, media []models.MediaRef) (string, error) {
	signed, err := p.resolver.SignedURL(ctx, media[0].Key, time.Hour)
	if err != nil {
		return "", err
	}

	request := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 caption,
			PrivacyLevel:          "PUBLIC_TO_EVERYONE",
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: signed,
		},
	}

	return p.initPublish(ctx, token, "/v2/post/publish/video/init/", request)
}

func (p *TikTokPublisher) postPhotos(ctx context.Context, token, caption string, media []models.MediaRef) (string, error) {
	photos := make([]string, 0, len(media))
	for _, m := range media {
		signed, err := p.resolver.SignedURL(ctx, m.Key, time.Hour)
		if err != nil {
			return "", err
		}
		photos = append(photos, signed)
	}

	request := transfer.PhotoUploadRequest{
		PostInfo: transfer.PhotoPostInfo{
			Title:        caption,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
			AutoAddMusic: true,
		},
		SourceInfo: transfer.PhotoSourceInfo{
			Source:          "PULL_FROM_URL",
			PhotoCoverIndex: 0,
			PhotoImages:     photos,
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	}

	return p.initPublish(ctx, token, "/v2/post/publish/content/init/", request)
}

func (p *TikTokPublisher) initPublish(ctx context.Context, token, path string, request interface{}) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("tiktok: publish init: %w", err)
	}
	defer resp.Body.Close()

	var result transfer.TikTokUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Info("tiktok publish init failed", "status", resp.StatusCode, "code", result.Error.Code, "message", result.Error.Message)
		return "", &ProviderError{Platform: platform.TikTok, Status: resp.StatusCode}
	}
	if result.Data.PublishID == "" {
		return "", ErrEmptyExternalID
	}
	return result.Data.PublishID, nil
}

func (p *TikTokPublisher) FetchMetrics(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, externalID string, prev models.PostMetrics) (models.PostMetrics, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"filters": map[string]interface{}{"video_ids": []string{externalID}},
	})
	if err != nil {
		return prev, err
	}

	reqURL := p.apiBase + "/v2/video/query/?fields=like_count,comment_count,share_count,view_count"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return prev, err
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return prev, fmt.Errorf("tiktok: fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Info("tiktok video query failed", "status", resp.StatusCode, "body", string(raw))
		return prev, fmt.Errorf("tiktok: video query returned status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Videos []struct {
				LikeCount    *int64 `json:"like_count"`
				CommentCount *int64 `json:"comment_count"`
				ShareCount   *int64 `json:"share_count"`
				ViewCount    *int64 `json:"view_count"`
			} `json:"videos"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return prev, err
	}
	if len(result.Data.Videos) == 0 {
		return prev, nil
	}

	v := result.Data.Videos[0]
	return models.PostMetrics{
		Likes:       pick(v.LikeCount, prev.Likes),
		Comments:    pick(v.CommentCount, prev.Comments),
		Shares:      pick(v.ShareCount, prev.Shares),
		Impressions: pick(v.ViewCount, prev.Impressions),
		Clicks:      prev.Clicks,
	}, nil
}
