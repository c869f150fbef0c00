package platform

import "time"

// Variant is the content shape of a post.
type Variant string

const (
	VariantRegular Variant = "regular"
	VariantReel    Variant = "reel"
	VariantStory   Variant = "story"
	VariantThread  Variant = "thread"
)

// ThreadStrategy controls how thread posts are delivered to a platform.
// "separate" publishes one post per item chained as replies, "concat"
// merges all items into a single post.
type ThreadStrategy string

const (
	ThreadSeparate ThreadStrategy = "separate"
	ThreadConcat   ThreadStrategy = "concat"
)

// Profile is the static capability table for one platform. Values mirror
// the published platform limits and must be updated when those change.
type Profile struct {
	Variants       []Variant
	MinMedia       int
	MaxMedia       int
	MIMETypes      []string
	MaxMediaBytes  int64
	MaxTextLen     int
	RateLimit      int
	RateWindow     time.Duration
	ThreadStrategy ThreadStrategy
}

const (
	mb = 1 << 20
	gb = 1 << 30
)

var profiles = map[Platform]Profile{
	X: {
		Variants:       []Variant{VariantRegular, VariantThread},
		MinMedia:       0,
		MaxMedia:       4,
		MIMETypes:      []string{"image/jpeg", "image/png", "image/gif", "video/mp4"},
		MaxMediaBytes:  512 * mb,
		MaxTextLen:     280,
		RateLimit:      300,
		RateWindow:     3 * time.Hour,
		ThreadStrategy: ThreadSeparate,
	},
	Facebook: {
		Variants:       []Variant{VariantRegular, VariantReel, VariantStory},
		MinMedia:       0,
		MaxMedia:       10,
		MIMETypes:      []string{"image/jpeg", "image/png", "video/mp4"},
		MaxMediaBytes:  1 * gb,
		MaxTextLen:     63206,
		RateLimit:      200,
		RateWindow:     time.Hour,
		ThreadStrategy: ThreadConcat,
	},
	Instagram: {
		Variants:       []Variant{VariantRegular, VariantReel, VariantStory},
		MinMedia:       1,
		MaxMedia:       10,
		MIMETypes:      []string{"image/jpeg", "image/png", "video/mp4"},
		MaxMediaBytes:  300 * mb,
		MaxTextLen:     2200,
		RateLimit:      100,
		RateWindow:     24 * time.Hour,
		ThreadStrategy: ThreadConcat,
	},
	TikTok: {
		Variants:       []Variant{VariantRegular, VariantReel},
		MinMedia:       1,
		MaxMedia:       35,
		MIMETypes:      []string{"image/jpeg", "image/webp", "video/mp4"},
		MaxMediaBytes:  4 * gb,
		MaxTextLen:     2200,
		RateLimit:      15,
		RateWindow:     24 * time.Hour,
		ThreadStrategy: ThreadConcat,
	},
	YouTube: {
		Variants:       []Variant{VariantRegular, VariantReel},
		MinMedia:       1,
		MaxMedia:       1,
		MIMETypes:      []string{"video/mp4", "video/quicktime", "video/webm"},
		MaxMediaBytes:  256 * gb,
		MaxTextLen:     5000,
		RateLimit:      6,
		RateWindow:     24 * time.Hour,
		ThreadStrategy: ThreadConcat,
	},
	LinkedIn: {
		Variants:       []Variant{VariantRegular, VariantThread},
		MinMedia:       0,
		MaxMedia:       9,
		MIMETypes:      []string{"image/jpeg", "image/png", "video/mp4"},
		MaxMediaBytes:  500 * mb,
		MaxTextLen:     3000,
		RateLimit:      100,
		RateWindow:     24 * time.Hour,
		ThreadStrategy: ThreadConcat,
	},
}

// ProfileFor returns the capability profile for p.
func ProfileFor(p Platform) (Profile, bool) {
	prof, ok := profiles[p]
	return prof, ok
}

// SupportsVariant reports whether v is an allowed content shape.
func (p Profile) SupportsVariant(v Variant) bool {
	for _, allowed := range p.Variants {
		if allowed == v {
			return true
		}
	}
	return false
}

// AllowsMIME reports whether mime is accepted as media by the platform.
func (p Profile) AllowsMIME(mime string) bool {
	for _, allowed := range p.MIMETypes {
		if allowed == mime {
			return true
		}
	}
	return false
}
