package storage

import (
	"context"

	"solana-feed-aggregator/internal/domain"
)

// EventArchive persists accepted feed events for offline analysis. Inserts
// arrive in large batches from the archive writer; the archive is
// append-only and duplicate rows are tolerated at the storage level (the
// consensus filter upstream already deduplicates the live stream).
type EventArchive interface {
	// InsertBulk appends a batch of archived events.
	InsertBulk(ctx context.Context, events []*domain.ArchivedEvent) error

	// GetByTimeRange retrieves events with timestamp_ms in [start, end]
	// (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ArchivedEvent, error)

	// CountByProvider returns accepted-event counts per provider for
	// timestamp_ms in [start, end] (inclusive).
	CountByProvider(ctx context.Context, start, end int64) (map[string]uint64, error)
}

// ProviderRegistry stores the configured upstream endpoints. The live
// daemon reads the enabled set at startup; operators toggle endpoints
// without redeploying.
type ProviderRegistry interface {
	// Insert adds a new endpoint. Returns ErrDuplicateKey if the label exists.
	Insert(ctx context.Context, ep *domain.ProviderEndpoint) error

	// GetByLabel retrieves one endpoint. Returns ErrNotFound if not exists.
	GetByLabel(ctx context.Context, label string) (*domain.ProviderEndpoint, error)

	// ListEnabled retrieves all enabled endpoints, ordered by label.
	ListEnabled(ctx context.Context) ([]*domain.ProviderEndpoint, error)

	// SetEnabled toggles an endpoint. Returns ErrNotFound if not exists.
	SetEnabled(ctx context.Context, label string, enabled bool) error
}
