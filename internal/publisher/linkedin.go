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
	"time"

	"channelpress/internal/auth"
	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/storage"
)

const linkedInVersion = "202411"

// LinkedInPublisher posts member content through the versioned REST API.
// Images go through the initializeUpload handshake, then a PUT of the raw
// bytes, then the post referencing the image URNs.
type LinkedInPublisher struct {
	resolver storage.MediaResolver
	client   *http.Client
	apiBase  string
}

func NewLinkedInPublisher(resolver storage.MediaResolver) *LinkedInPublisher {
	return &LinkedInPublisher{
		resolver: resolver,
		client:   &http.Client{Timeout: 120 * time.Second},
		apiBase:  "https://api.linkedin.com",
	}
}

func (p *LinkedInPublisher) Publish(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, post *models.Post) (string, error) {
	prepared, err := prepare(platform.LinkedIn, post)
	if err != nil {
		return "", err
	}

	authorURN := "urn:li:person:" + ch.AccountID

	switch prepared.Variant {
	case platform.VariantRegular:
		return p.createPost(ctx, tokens.AccessToken, authorURN, prepared.Text, prepared.Media)
	case platform.VariantThread:
		// LinkedIn has no native reply chains; the capability profile
		// declares concat, so items merge into one post.
		text, media := concatThread(prepared.Thread)
		return p.createPost(ctx, tokens.AccessToken, authorURN, text, media)
	default:
		return "", &UnsupportedOperationError{Platform: platform.LinkedIn, Variant: prepared.Variant}
	}
}

func (p *LinkedInPublisher) createPost(ctx context.Context, token, authorURN, text string, media []models.MediaRef) (string, error) {
	payload := map[string]interface{}{
		"author":     authorURN,
		"commentary": text,
		"visibility": "PUBLIC",
		"distribution": map[string]interface{}{
			"feedDistribution": "MAIN_FEED",
		},
		"lifecycleState": "PUBLISHED",
	}

	if len(media) == 1 {
		urn, err := p.uploadImage(ctx, token, authorURN, media[0])
		if err != nil {
			return "", err
		}
		payload["content"] = map[string]interface{}{
			"media": map[string]interface{}{"id": urn},
		}
	} else if len(media) > 1 {
		images := make([]map[string]interface{}, 0, len(media))
		for _, m := range media {
			urn, err := p.uploadImage(ctx, token, authorURN, m)
			if err != nil {
				return "", err
			}
			images = append(images, map[string]interface{}{"id": urn})
		}
		payload["content"] = map[string]interface{}{
			"multiImage": map[string]interface{}{"images": images},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/rest/posts", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	p.setHeaders(req, token)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("linkedin: create post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Info("linkedin post creation failed", "status", resp.StatusCode, "body", string(raw))
		return "", &ProviderError{Platform: platform.LinkedIn, Status: resp.StatusCode}
	}

	postID := resp.Header.Get("x-restli-id")
	if postID == "" {
		return "", ErrEmptyExternalID
	}
	return postID, nil
}

func (p *LinkedInPublisher) uploadImage(ctx context.Context, token, ownerURN string, m models.MediaRef) (string, error) {
	initBody, err := json.Marshal(map[string]interface{}{
		"initializeUploadRequest": map[string]interface{}{"owner": ownerURN},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/rest/images?action=initializeUpload", bytes.NewReader(initBody))
	if err != nil {
		return "", err
	}
	p.setHeaders(req, token)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("linkedin: initialize upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Platform: platform.LinkedIn, Status: resp.StatusCode}
	}

	var initResp struct {
		Value struct {
			UploadURL string `json:"uploadUrl"`
			Image     string `json:"image"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		return "", err
	}

	data, mimeType, err := p.resolver.Fetch(ctx, m.Key)
	if err != nil {
		return "", err
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, initResp.Value.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	putReq.Header.Set("Authorization", "Bearer "+token)
	if mimeType != "" {
		putReq.Header.Set("Content-Type", mimeType)
	}

	putResp, err := p.client.Do(putReq)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("linkedin: image upload: %w", err)
	}
	defer putResp.Body.Close()

	if putResp.StatusCode >= http.StatusMultipleChoices {
		return "", &ProviderError{Platform: platform.LinkedIn, Status: putResp.StatusCode}
	}
	return initResp.Value.Image, nil
}

func (p *LinkedInPublisher) FetchMetrics(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, externalID string, prev models.PostMetrics) (models.PostMetrics, error) {
	reqURL := fmt.Sprintf("%s/rest/socialActions/%s", p.apiBase, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return prev, err
	}
	p.setHeaders(req, tokens.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return prev, fmt.Errorf("linkedin: fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return prev, fmt.Errorf("linkedin: fetch metrics returned status %d", resp.StatusCode)
	}

	var result struct {
		LikesSummary *struct {
			TotalLikes *int64 `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary *struct {
			TotalFirstLevelComments *int64 `json:"totalFirstLevelComments"`
		} `json:"commentsSummary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return prev, err
	}

	metrics := prev
	if result.LikesSummary != nil {
		metrics.Likes = pick(result.LikesSummary.TotalLikes, prev.Likes)
	}
	if result.CommentsSummary != nil {
		metrics.Comments = pick(result.CommentsSummary.TotalFirstLevelComments, prev.Comments)
	}
	return metrics, nil
}

func (p *LinkedInPublisher) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", linkedInVersion)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
}
