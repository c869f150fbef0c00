package platform

import "fmt"

// Platform identifies one of the supported social networks.
type Platform string

const (
	X         Platform = "x"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	YouTube   Platform = "youtube"
	LinkedIn  Platform = "linkedin"
)

// UnsupportedPlatformError is returned when a platform string does not map
// to any registered network.
type UnsupportedPlatformError struct {
	Value string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %q", e.Value)
}

var all = []Platform{X, Facebook, Instagram, TikTok, YouTube, LinkedIn}

// All returns every supported platform.
func All() []Platform {
	out := make([]Platform, len(all))
	copy(out, all)
	return out
}

// Parse converts a raw path/query parameter into a Platform.
func Parse(s string) (Platform, error) {
	for _, p := range all {
		if string(p) == s {
			return p, nil
		}
	}
	return "", &UnsupportedPlatformError{Value: s}
}

func (p Platform) String() string {
	return string(p)
}
