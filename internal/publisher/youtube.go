package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"channelpress/internal/auth"
	"channelpress/internal/models"
	"channelpress/internal/platform"
	"channelpress/internal/storage"
)

// YouTubePublisher uploads videos through the YouTube Data API. Regular
// posts become plain uploads, reels become Shorts (the #Shorts marker in
// the title is what YouTube keys on).
type YouTubePublisher struct {
	resolver   storage.MediaResolver
	newService func(ctx context.Context, tokens *auth.Tokens) (*youtube.Service, error)
}

func NewYouTubePublisher(resolver storage.MediaResolver) *YouTubePublisher {
	return &YouTubePublisher{
		resolver: resolver,
		newService: func(ctx context.Context, tokens *auth.Tokens) (*youtube.Service, error) {
			source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tokens.AccessToken})
			return youtube.NewService(ctx, option.WithTokenSource(source))
		},
	}
}

func (p *YouTubePublisher) Publish(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, post *models.Post) (string, error) {
	prepared, err := prepare(platform.YouTube, post)
	if err != nil {
		return "", err
	}

	switch prepared.Variant {
	case platform.VariantRegular, platform.VariantReel:
		return p.uploadVideo(ctx, tokens, prepared)
	default:
		return "", &UnsupportedOperationError{Platform: platform.YouTube, Variant: prepared.Variant}
	}
}

func (p *YouTubePublisher) uploadVideo(ctx context.Context, tokens *auth.Tokens, post *models.Post) (string, error) {
	service, err := p.newService(ctx, tokens)
	if err != nil {
		return "", fmt.Errorf("youtube: service init: %w", err)
	}

	data, mimeType, err := p.resolver.Fetch(ctx, post.Media[0].Key)
	if err != nil {
		return "", err
	}

	title, description := splitTitle(post.Text)
	if post.Variant == platform.VariantReel && !strings.Contains(strings.ToLower(title), "#shorts") {
		title += " #Shorts"
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: description,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           "public",
			SelfDeclaredMadeForKids: false,
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	uploaded, err := call.Media(bytes.NewReader(data), mediaMIMEOption(mimeType)).Context(ctx).Do()
	if err != nil {
		slog.Info(err.Error())
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", &ProviderError{Platform: platform.YouTube, Status: gerr.Code}
		}
		return "", fmt.Errorf("youtube: upload: %w", err)
	}
	if uploaded.Id == "" {
		return "", ErrEmptyExternalID
	}
	return uploaded.Id, nil
}

func (p *YouTubePublisher) FetchMetrics(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, externalID string, prev models.PostMetrics) (models.PostMetrics, error) {
	service, err := p.newService(ctx, tokens)
	if err != nil {
		return prev, fmt.Errorf("youtube: service init: %w", err)
	}

	resp, err := service.Videos.List([]string{"statistics"}).Id(externalID).Context(ctx).Do()
	if err != nil {
		slog.Info(err.Error())
		return prev, fmt.Errorf("youtube: fetch statistics: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return prev, nil
	}

	stats := resp.Items[0].Statistics
	metrics := prev
	metrics.Likes = int64(stats.LikeCount)
	metrics.Comments = int64(stats.CommentCount)
	metrics.Impressions = int64(stats.ViewCount)
	return metrics, nil
}

// splitTitle uses the first line of the post text as the video title and the
// remainder as the description.
func splitTitle(text string) (string, string) {
	title, description, found := strings.Cut(text, "\n")
	if !found {
		return text, ""
	}
	return title, strings.TrimSpace(description)
}

func mediaMIMEOption(mimeType string) googleapi.MediaOption {
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return googleapi.ContentType(mimeType)
}
