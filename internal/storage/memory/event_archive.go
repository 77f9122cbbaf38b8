package memory

import (
	"context"
	"sort"
	"sync"

	"solana-feed-aggregator/internal/domain"
	"solana-feed-aggregator/internal/storage"
)

// EventArchive is an in-memory implementation of storage.EventArchive.
type EventArchive struct {
	mu     sync.RWMutex
	events []*domain.ArchivedEvent
}

// NewEventArchive creates a new in-memory event archive.
func NewEventArchive() *EventArchive {
	return &EventArchive{}
}

// Compile-time interface check.
var _ storage.EventArchive = (*EventArchive)(nil)

// InsertBulk appends a batch of archived events.
func (a *EventArchive) InsertBulk(_ context.Context, events []*domain.ArchivedEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.Provider == "" {
			return storage.ErrInvalidInput
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range events {
		dup := *e
		a.events = append(a.events, &dup)
	}
	return nil
}

// GetByTimeRange retrieves events within [start, end], ordered by timestamp ASC.
func (a *EventArchive) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.ArchivedEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []*domain.ArchivedEvent
	for _, e := range a.events {
		if e.TimestampMs >= start && e.TimestampMs <= end {
			dup := *e
			out = append(out, &dup)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TimestampMs < out[j].TimestampMs
	})
	return out, nil
}

// CountByProvider returns accepted-event counts per provider within [start, end].
func (a *EventArchive) CountByProvider(_ context.Context, start, end int64) (map[string]uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	counts := make(map[string]uint64)
	for _, e := range a.events {
		if e.TimestampMs >= start && e.TimestampMs <= end {
			counts[e.Provider]++
		}
	}
	return counts, nil
}

// Len returns the number of stored events.
func (a *EventArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.events)
}
