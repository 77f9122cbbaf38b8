package consensus

import (
	"sync"

	"solana-feed-aggregator/internal/domain"
)

// Engine is the single authoritative accept/reject decision for the
// multi-provider race: first arrival of a signature wins, later deliveries
// are duplicates, and anything behind the slot lag tolerance is stale.
//
// Duplication is checked before freshness so that a re-delivered old
// signature is counted as a duplicate, never double-penalized as stale.
type Engine struct {
	mu      sync.Mutex
	dedup   *SignatureDedup
	tracker *SlotTracker

	accepted  uint64
	duplicate uint64
	stale     uint64
}

// NewEngine creates a consensus engine with the given dedup capacity and
// slot lag tolerance.
func NewEngine(maxSignatures int, maxSlotLag uint64) *Engine {
	return &Engine{
		dedup:   NewSignatureDedup(maxSignatures),
		tracker: NewSlotTracker(maxSlotLag),
	}
}

// Decision is the outcome of one consensus check.
type Decision int

const (
	Accept Decision = iota
	RejectDuplicate
	RejectStale
)

// String returns the string representation of Decision.
func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectDuplicate:
		return "duplicate"
	case RejectStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Decide classifies a notification and updates the counters. A genuinely new
// signature is marked seen even when its slot turns out stale, so redelivery
// of that same notification is a duplicate, not stale twice.
func (e *Engine) Decide(provider, signature string, slot uint64) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dedup.IsNew(signature) {
		e.duplicate++
		return RejectDuplicate
	}

	if e.tracker.Update(provider, slot) == SlotStale {
		e.stale++
		return RejectStale
	}

	e.accepted++
	return Accept
}

// ShouldProcess reports whether a notification should be forwarded.
func (e *Engine) ShouldProcess(provider, signature string, slot uint64) bool {
	return e.Decide(provider, signature, slot) == Accept
}

// ObserveSlot advances the tracker from a slot-only notification without
// touching the dedup table or counters.
func (e *Engine) ObserveSlot(provider string, slot uint64) {
	e.tracker.Update(provider, slot)
}

// IsSlotFresh is a read-only freshness probe that does not touch the dedup
// table.
func (e *Engine) IsSlotFresh(slot uint64) bool {
	return e.tracker.IsAcceptable(slot)
}

// Stats returns a snapshot of the running counters and the latest slot.
func (e *Engine) Stats() domain.ConsensusStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.ConsensusStats{
		Accepted:   e.accepted,
		Duplicate:  e.duplicate,
		Stale:      e.stale,
		LatestSlot: e.tracker.LatestSlot(),
	}
}

// ResetStats zeroes the counters without clearing dedup or slot state.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accepted = 0
	e.duplicate = 0
	e.stale = 0
}

// DedupSize returns the number of tracked signatures.
func (e *Engine) DedupSize() int {
	return e.dedup.Size()
}

// ClearDedup empties the dedup filter.
func (e *Engine) ClearDedup() {
	e.dedup.Clear()
}
