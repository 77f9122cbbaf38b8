package memory

import (
	"context"
	"sort"
	"sync"

	"solana-feed-aggregator/internal/domain"
	"solana-feed-aggregator/internal/storage"
)

// ProviderRegistry is an in-memory implementation of storage.ProviderRegistry.
type ProviderRegistry struct {
	mu   sync.RWMutex
	data map[string]*domain.ProviderEndpoint // keyed by label
}

// NewProviderRegistry creates a new in-memory provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		data: make(map[string]*domain.ProviderEndpoint),
	}
}

// Compile-time interface check.
var _ storage.ProviderRegistry = (*ProviderRegistry)(nil)

// Insert adds a new endpoint. Returns ErrDuplicateKey if the label exists.
func (r *ProviderRegistry) Insert(_ context.Context, ep *domain.ProviderEndpoint) error {
	if ep == nil || ep.Label == "" || ep.URL == "" {
		return storage.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[ep.Label]; exists {
		return storage.ErrDuplicateKey
	}
	dup := *ep
	r.data[ep.Label] = &dup
	return nil
}

// GetByLabel retrieves one endpoint. Returns ErrNotFound if not exists.
func (r *ProviderRegistry) GetByLabel(_ context.Context, label string) (*domain.ProviderEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.data[label]
	if !ok {
		return nil, storage.ErrNotFound
	}
	dup := *ep
	return &dup, nil
}

// ListEnabled retrieves all enabled endpoints, ordered by label.
func (r *ProviderRegistry) ListEnabled(_ context.Context) ([]*domain.ProviderEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.ProviderEndpoint
	for _, ep := range r.data {
		if ep.Enabled {
			dup := *ep
			out = append(out, &dup)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// SetEnabled toggles an endpoint. Returns ErrNotFound if not exists.
func (r *ProviderRegistry) SetEnabled(_ context.Context, label string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.data[label]
	if !ok {
		return storage.ErrNotFound
	}
	ep.Enabled = enabled
	return nil
}
