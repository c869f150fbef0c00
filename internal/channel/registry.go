package channel

import (
	"channelpress/internal/auth"
	"channelpress/internal/platform"
	"channelpress/internal/publisher"
)

// Manager bundles everything the rest of the system needs to talk to one
// platform. Construction happens once in main; nothing registers at runtime.
type Manager struct {
	Authenticator auth.Authenticator
	Publisher     publisher.Publisher
}

// Registry maps platforms to their managers. Lookups for platforms that were
// never wired fail with UnsupportedPlatformError rather than a nil manager.
type Registry struct {
	managers map[platform.Platform]*Manager
}

func NewRegistry() *Registry {
	return &Registry{managers: make(map[platform.Platform]*Manager)}
}

func (r *Registry) Register(plat platform.Platform, m *Manager) {
	r.managers[plat] = m
}

func (r *Registry) Lookup(plat platform.Platform) (*Manager, error) {
	m, ok := r.managers[plat]
	if !ok {
		return nil, &platform.UnsupportedPlatformError{Value: string(plat)}
	}
	return m, nil
}

// Platforms returns the wired platforms, for capability listings.
func (r *Registry) Platforms() []platform.Platform {
	out := make([]platform.Platform, 0, len(r.managers))
	for _, plat := range platform.All() {
		if _, ok := r.managers[plat]; ok {
			out = append(out, plat)
		}
	}
	return out
}
