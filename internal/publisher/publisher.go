package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"unicode/utf8"

	"channelpress/internal/auth"
	"channelpress/internal/models"
	"channelpress/internal/platform"
)

// Publisher translates a normalized Post into provider API calls. One
// implementation exists per platform; all are reached through the registry.
type Publisher interface {
	// Publish delivers the post and returns the provider's post id.
	Publish(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, post *models.Post) (string, error)

	// FetchMetrics re-reads engagement counters, merging with prev so a
	// missing provider field never erases a previously known value.
	FetchMetrics(ctx context.Context, ch *models.Channel, tokens *auth.Tokens, externalID string, prev models.PostMetrics) (models.PostMetrics, error)
}

// UnsupportedOperationError names the platform and variant so callers can
// pattern-match instead of parsing messages.
type UnsupportedOperationError struct {
	Platform platform.Platform
	Variant  platform.Variant
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s posts are not supported on %s", e.Variant, e.Platform)
}

var (
	ErrTextTooLong     = errors.New("publisher: text exceeds platform limit")
	ErrTooFewMedia     = errors.New("publisher: not enough media items for platform")
	ErrMediaType       = errors.New("publisher: media type not allowed on platform")
	ErrMediaTooLarge   = errors.New("publisher: media item exceeds platform size limit")
	ErrMissingProfile  = errors.New("publisher: no capability profile for platform")
	ErrEmptyExternalID = errors.New("publisher: provider returned no post id")
)

// ProviderError is a non-success HTTP status from a platform API call made
// while publishing.
type ProviderError struct {
	Platform platform.Platform
	Status   int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: api returned status %d", e.Platform, e.Status)
}

// Permanent reports whether retrying the same call can ever succeed. Auth
// and validation rejections cannot; rate limiting and server errors can.
func (e *ProviderError) Permanent() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// prepare runs every local validation before any network call and returns a
// copy of the post with its media list capped at the platform maximum.
// Variant, text-length and media-type violations are hard failures; an
// oversized media list is truncated with a warning instead.
func prepare(plat platform.Platform, post *models.Post) (*models.Post, error) {
	prof, ok := platform.ProfileFor(plat)
	if !ok {
		return nil, ErrMissingProfile
	}

	if err := post.Validate(); err != nil {
		return nil, err
	}
	if !prof.SupportsVariant(post.Variant) {
		return nil, &UnsupportedOperationError{Platform: plat, Variant: post.Variant}
	}
	if utf8.RuneCountInString(post.Text) > prof.MaxTextLen {
		return nil, fmt.Errorf("%w: %d > %d on %s", ErrTextTooLong, utf8.RuneCountInString(post.Text), prof.MaxTextLen, plat)
	}

	prepared := *post

	if post.Variant == platform.VariantThread {
		items := make([]models.ThreadItem, len(post.Thread))
		copy(items, post.Thread)
		sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
		for i := range items {
			if utf8.RuneCountInString(items[i].Text) > prof.MaxTextLen {
				return nil, fmt.Errorf("%w: thread item %d on %s", ErrTextTooLong, items[i].Order, plat)
			}
			media, err := checkMedia(plat, prof, items[i].Media)
			if err != nil {
				return nil, err
			}
			items[i].Media = media
		}
		prepared.Thread = items
		return &prepared, nil
	}

	media, err := checkMedia(plat, prof, post.Media)
	if err != nil {
		return nil, err
	}
	// Reels and stories are media posts on every platform; the profile's
	// MinMedia only constrains the regular variant.
	if (post.Variant == platform.VariantReel || post.Variant == platform.VariantStory) && len(media) == 0 {
		return nil, fmt.Errorf("%w: %s requires media on %s", ErrTooFewMedia, post.Variant, plat)
	}
	prepared.Media = media
	return &prepared, nil
}

func checkMedia(plat platform.Platform, prof platform.Profile, media []models.MediaRef) ([]models.MediaRef, error) {
	if len(media) < prof.MinMedia {
		return nil, fmt.Errorf("%w: %d < %d on %s", ErrTooFewMedia, len(media), prof.MinMedia, plat)
	}
	for _, m := range media {
		if m.MIMEType != "" && !prof.AllowsMIME(m.MIMEType) {
			return nil, fmt.Errorf("%w: %s on %s", ErrMediaType, m.MIMEType, plat)
		}
		if prof.MaxMediaBytes > 0 && m.Size > prof.MaxMediaBytes {
			return nil, fmt.Errorf("%w: %d bytes on %s", ErrMediaTooLarge, m.Size, plat)
		}
	}

	sorted := make([]models.MediaRef, len(media))
	copy(sorted, media)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DisplayOrder < sorted[j].DisplayOrder })

	if len(sorted) > prof.MaxMedia {
		slog.Warn("truncating media list to platform maximum",
			"platform", plat, "count", len(sorted), "max", prof.MaxMedia)
		sorted = sorted[:prof.MaxMedia]
	}
	return sorted, nil
}

// pick implements the metrics merge policy: new value wins, otherwise keep
// the previous one (which defaults to zero).
func pick(fresh *int64, prev int64) int64 {
	if fresh != nil {
		return *fresh
	}
	return prev
}

// concatThread merges thread items into one body for platforms whose
// capability profile declares the concat strategy. Items are already sorted.
func concatThread(items []models.ThreadItem) (string, []models.MediaRef) {
	var text string
	var media []models.MediaRef
	for i, item := range items {
		if i > 0 {
			text += "\n\n"
		}
		text += item.Text
		media = append(media, item.Media...)
	}
	return text, media
}
