package platform

import (
	"fmt"
	"maps"
)

// Registry maps platforms to their managers. It is fixed after construction.
type Registry struct {
	managers map[Platform]Manager
}

func NewRegistry(managers map[Platform]Manager) *Registry {
	return &Registry{managers: maps.Clone(managers)}
}

// Manager fails with ErrUnsupportedPlatform when p has no implementation.
func (r *Registry) Manager(p Platform) (Manager, error) {
	m, ok := r.managers[p]
	if !ok || m == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, p)
	}

	return m, nil
}

// Lookup parses name and resolves its manager, distinguishing
// ErrInvalidPlatform from ErrUnsupportedPlatform.
func (r *Registry) Lookup(name string) (Platform, Manager, error) {
	p, err := Parse(name)
	if err != nil {
		return 0, nil, err
	}

	m, err := r.Manager(p)
	if err != nil {
		return p, nil, err
	}

	return p, m, nil
}

func (r *Registry) Refresher(p Platform) (TokenRefresher, error) {
	m, err := r.Manager(p)
	if err != nil {
		return nil, err
	}

	refresher, ok := m.(TokenRefresher)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not refresh tokens", ErrUnsupportedPlatform, p)
	}

	return refresher, nil
}

// Supported lists platforms with a registered manager.
func (r *Registry) Supported() []Platform {
	var out []Platform
	for _, p := range All() {
		if _, ok := r.managers[p]; ok {
			out = append(out, p)
		}
	}

	return out
}
