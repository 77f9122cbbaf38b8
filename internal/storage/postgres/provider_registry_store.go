package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-feed-aggregator/internal/domain"
	"solana-feed-aggregator/internal/storage"
)

// ProviderRegistryStore implements storage.ProviderRegistry using PostgreSQL.
type ProviderRegistryStore struct {
	pool *Pool
}

// NewProviderRegistryStore creates a new ProviderRegistryStore.
func NewProviderRegistryStore(pool *Pool) *ProviderRegistryStore {
	return &ProviderRegistryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProviderRegistry = (*ProviderRegistryStore)(nil)

// Insert adds a new endpoint. Returns ErrDuplicateKey if the label exists.
func (s *ProviderRegistryStore) Insert(ctx context.Context, ep *domain.ProviderEndpoint) error {
	if ep == nil || ep.Label == "" || ep.URL == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO provider_endpoints (label, url, enabled)
		VALUES ($1, $2, $3)
	`

	_, err := s.pool.Exec(ctx, query, ep.Label, ep.URL, ep.Enabled)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert provider endpoint: %w", err)
	}
	return nil
}

// GetByLabel retrieves one endpoint. Returns ErrNotFound if not exists.
func (s *ProviderRegistryStore) GetByLabel(ctx context.Context, label string) (*domain.ProviderEndpoint, error) {
	query := `
		SELECT label, url, enabled
		FROM provider_endpoints
		WHERE label = $1
	`

	var ep domain.ProviderEndpoint
	err := s.pool.QueryRow(ctx, query, label).Scan(&ep.Label, &ep.URL, &ep.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get provider endpoint: %w", err)
	}
	return &ep, nil
}

// ListEnabled retrieves all enabled endpoints, ordered by label.
func (s *ProviderRegistryStore) ListEnabled(ctx context.Context) ([]*domain.ProviderEndpoint, error) {
	query := `
		SELECT label, url, enabled
		FROM provider_endpoints
		WHERE enabled = TRUE
		ORDER BY label ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enabled endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*domain.ProviderEndpoint
	for rows.Next() {
		var ep domain.ProviderEndpoint
		if err := rows.Scan(&ep.Label, &ep.URL, &ep.Enabled); err != nil {
			return nil, fmt.Errorf("scan provider endpoint: %w", err)
		}
		endpoints = append(endpoints, &ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider endpoints: %w", err)
	}
	return endpoints, nil
}

// SetEnabled toggles an endpoint. Returns ErrNotFound if not exists.
func (s *ProviderRegistryStore) SetEnabled(ctx context.Context, label string, enabled bool) error {
	query := `
		UPDATE provider_endpoints
		SET enabled = $2
		WHERE label = $1
	`

	tag, err := s.pool.Exec(ctx, query, label, enabled)
	if err != nil {
		return fmt.Errorf("set endpoint enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
