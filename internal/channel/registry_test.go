package channel

import (
	"errors"
	"testing"

	"channelpress/internal/platform"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	m := &Manager{}
	r.Register(platform.X, m)

	got, err := r.Lookup(platform.X)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != m {
		t.Fatal("lookup returned a different manager")
	}
}

func TestRegistryLookupUnknownPlatform(t *testing.T) {
	r := NewRegistry()
	r.Register(platform.X, &Manager{})

	_, err := r.Lookup(platform.YouTube)
	var unsupported *platform.UnsupportedPlatformError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedPlatformError, got %v", err)
	}
	if unsupported.Value != string(platform.YouTube) {
		t.Fatalf("error names wrong platform: %q", unsupported.Value)
	}
}

func TestRegistryPlatforms(t *testing.T) {
	r := NewRegistry()
	r.Register(platform.LinkedIn, &Manager{})
	r.Register(platform.X, &Manager{})

	platforms := r.Platforms()
	if len(platforms) != 2 {
		t.Fatalf("expected 2 platforms, got %d", len(platforms))
	}
}
