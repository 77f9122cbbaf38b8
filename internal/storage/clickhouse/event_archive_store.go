package clickhouse

import (
	"context"
	"fmt"

	"solana-feed-aggregator/internal/domain"
	"solana-feed-aggregator/internal/storage"
)

// EventArchiveStore implements storage.EventArchive using ClickHouse.
// MergeTree does not enforce uniqueness; the live stream is already
// deduplicated upstream, so the archive simply appends.
type EventArchiveStore struct {
	conn *Conn
}

// NewEventArchiveStore creates a new EventArchiveStore.
func NewEventArchiveStore(conn *Conn) *EventArchiveStore {
	return &EventArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventArchive = (*EventArchiveStore)(nil)

// InsertBulk appends a batch of archived events.
func (s *EventArchiveStore) InsertBulk(ctx context.Context, events []*domain.ArchivedEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.Provider == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO event_archive (
			provider, kind, slot, signature, timestamp_ms, log_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.Provider, e.Kind, e.Slot,
			e.Signature, e.TimestampMs, uint32(e.LogCount),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves events within [start, end], ordered by timestamp ASC.
func (s *EventArchiveStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ArchivedEvent, error) {
	query := `
		SELECT provider, kind, slot, signature, timestamp_ms, log_count
		FROM event_archive
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query event archive: %w", err)
	}
	defer rows.Close()

	var events []*domain.ArchivedEvent
	for rows.Next() {
		var (
			e        domain.ArchivedEvent
			logCount uint32
		)
		if err := rows.Scan(&e.Provider, &e.Kind, &e.Slot, &e.Signature, &e.TimestampMs, &logCount); err != nil {
			return nil, fmt.Errorf("scan archived event: %w", err)
		}
		e.LogCount = int(logCount)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived events: %w", err)
	}
	return events, nil
}

// CountByProvider returns accepted-event counts per provider within [start, end].
func (s *EventArchiveStore) CountByProvider(ctx context.Context, start, end int64) (map[string]uint64, error) {
	query := `
		SELECT provider, count() AS cnt
		FROM event_archive
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		GROUP BY provider
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("count by provider: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var (
			provider string
			cnt      uint64
		)
		if err := rows.Scan(&provider, &cnt); err != nil {
			return nil, fmt.Errorf("scan provider count: %w", err)
		}
		counts[provider] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider counts: %w", err)
	}
	return counts, nil
}
