package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"channelpress/internal/auth"
	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/storage"
)

// XPublisher posts tweets through the v2 API with v1.1 media uploads, both
// signed with the channel's OAuth1 access credentials.
type XPublisher struct {
	oauthConfig *oauth1.Config
	resolver    storage.MediaResolver
	apiBase     string
	uploadBase  string
	chunkSize   int
}

func NewXPublisher(consumerKey, consumerSecret string, resolver storage.MediaResolver) *XPublisher {
	return &XPublisher{
		oauthConfig: oauth1.NewConfig(consumerKey, consumerSecret),
		resolver:    resolver,
		apiBase:     "https://api.twitter.com",
		uploadBase:  "https://upload.twitter.com",
		chunkSize:   4 * 1024 * 1024,
	}
}

func (p *XPublisher) httpClient(ctx context.Context, tokens *auth.Tokens) *http.Client {
	client := p.oauthConfig.Client(ctx, oauth1.NewToken(tokens.AccessToken, tokens.TokenSecret))
	client.Timeout = 60 * time.Second
	return client
}

func (p *XPublisher) Publish(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, post *models.Post) (string, error) {
	prepared, err := prepare(platform.X, post)
	if err != nil {
		return "", err
	}

	switch prepared.Variant {
	case platform.VariantRegular:
		return p.postTweet(ctx, tokens, prepared.Text, prepared.Media, "")
	case platform.VariantThread:
		return p.postThread(ctx, tokens, prepared.Thread)
	default:
		return "", &UnsupportedOperationError{Platform: platform.X, Variant: prepared.Variant}
	}
}

// postThread publishes items strictly in ascending order; each subsequent
// tweet replies to the externally returned id of the previous one.
func (p *XPublisher) postThread(ctx context.Context, tokens *auth.Tokens, items []models.ThreadItem) (string, error) {
	var firstID, previousID string
	for _, item := range items {
		id, err := p.postTweet(ctx, tokens, item.Text, item.Media, previousID)
		if err != nil {
			return firstID, fmt.Errorf("thread item %d: %w", item.Order, err)
		}
		if firstID == "" {
			firstID = id
		}
		previousID = id
	}
	return firstID, nil
}

func (p *XPublisher) postTweet(ctx context.Context, tokens *auth.Tokens, text string, media []models.MediaRef, replyTo string) (string, error) {
	client := p.httpClient(ctx, tokens)

	mediaIDs := make([]string, 0, len(media))
	for _, m := range media {
		id, err := p.uploadMedia(ctx, client, m)
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, id)
	}

	body := map[string]interface{}{"text": text}
	if len(mediaIDs) > 0 {
		body["media"] = map[string]interface{}{"media_ids": mediaIDs}
	}
	if replyTo != "" {
		body["reply"] = map[string]interface{}{"in_reply_to_tweet_id": replyTo}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("x: create tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Info("x tweet creation failed", "status", resp.StatusCode, "body", string(raw))
		return "", &ProviderError{Platform: platform.X, Status: resp.StatusCode}
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", ErrEmptyExternalID
	}
	return result.Data.ID, nil
}

func (p *XPublisher) uploadMedia(ctx context.Context, client *http.Client, m models.MediaRef) (string, error) {
	data, sniffed, err := p.resolver.Fetch(ctx, m.Key)
	if err != nil {
		return "", err
	}

	mimeType := m.MIMEType
	if mimeType == "" {
		mimeType = sniffed
	}
	if strings.HasPrefix(mimeType, "video/") {
		return p.uploadVideo(ctx, client, data, mimeType)
	}

	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(data))
	result, err := p.uploadCommand(ctx, client, form)
	if err != nil {
		return "", err
	}
	return result.MediaIDString, nil
}

// uploadVideo drives the chunked INIT/APPEND/FINALIZE flow; the simple
// media_data upload only accepts images.
func (p *XPublisher) uploadVideo(ctx context.Context, client *http.Client, data []byte, mimeType string) (string, error) {
	form := url.Values{}
	form.Set("command", "INIT")
	form.Set("total_bytes", strconv.Itoa(len(data)))
	form.Set("media_type", mimeType)
	form.Set("media_category", "tweet_video")
	initResult, err := p.uploadCommand(ctx, client, form)
	if err != nil {
		return "", err
	}
	mediaID := initResult.MediaIDString

	for i := 0; i*p.chunkSize < len(data); i++ {
		chunk := data[i*p.chunkSize:]
		if len(chunk) > p.chunkSize {
			chunk = chunk[:p.chunkSize]
		}
		form := url.Values{}
		form.Set("command", "APPEND")
		form.Set("media_id", mediaID)
		form.Set("segment_index", strconv.Itoa(i))
		form.Set("media_data", base64.StdEncoding.EncodeToString(chunk))
		if _, err := p.uploadCommand(ctx, client, form); err != nil {
			return "", err
		}
	}

	form = url.Values{}
	form.Set("command", "FINALIZE")
	form.Set("media_id", mediaID)
	final, err := p.uploadCommand(ctx, client, form)
	if err != nil {
		return "", err
	}
	if err := p.awaitProcessing(ctx, client, mediaID, final.ProcessingInfo); err != nil {
		return "", err
	}
	return mediaID, nil
}

type xProcessingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
}

type xUploadResult struct {
	MediaIDString  string           `json:"media_id_string"`
	ProcessingInfo *xProcessingInfo `json:"processing_info"`
}

func (p *XPublisher) uploadCommand(ctx context.Context, client *http.Client, form url.Values) (*xUploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.uploadBase+"/1.1/media/upload.json", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("x: media upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{Platform: platform.X, Status: resp.StatusCode}
	}
	// APPEND replies 204 with no body.
	if resp.StatusCode == http.StatusNoContent {
		return &xUploadResult{}, nil
	}

	var result xUploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// awaitProcessing polls the STATUS command until the uploaded video finishes
// server-side transcoding. Images and already-processed uploads carry no
// processing_info and return immediately.
func (p *XPublisher) awaitProcessing(ctx context.Context, client *http.Client, mediaID string, info *xProcessingInfo) error {
	for attempts := 0; info != nil && info.State != "succeeded"; attempts++ {
		if info.State == "failed" {
			return fmt.Errorf("x: media processing failed for %s", mediaID)
		}
		if attempts >= 10 {
			return fmt.Errorf("x: media processing timed out for %s", mediaID)
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		statusURL := fmt.Sprintf("%s/1.1/media/upload.json?command=STATUS&media_id=%s", p.uploadBase, mediaID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("x: media status: %w", err)
		}
		var result xUploadResult
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return err
		}
		info = result.ProcessingInfo
	}
	return nil
}

func (p *XPublisher) FetchMetrics(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, externalID string, prev models.PostMetrics) (models.PostMetrics, error) {
	client := p.httpClient(ctx, tokens)

	reqURL := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=public_metrics", p.apiBase, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return prev, err
	}

	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return prev, fmt.Errorf("x: fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return prev, fmt.Errorf("x: fetch metrics returned status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			PublicMetrics struct {
				LikeCount       *int64 `json:"like_count"`
				ReplyCount      *int64 `json:"reply_count"`
				RetweetCount    *int64 `json:"retweet_count"`
				ImpressionCount *int64 `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return prev, err
	}

	pm := result.Data.PublicMetrics
	return models.PostMetrics{
		Likes:       pick(pm.LikeCount, prev.Likes),
		Comments:    pick(pm.ReplyCount, prev.Comments),
		Shares:      pick(pm.RetweetCount, prev.Shares),
		Impressions: pick(pm.ImpressionCount, prev.Impressions),
		Clicks:      prev.Clicks,
	}, nil
}
