package consensus

import "sync"

// SlotStatus classifies an observed slot against the global high-water mark.
type SlotStatus int

const (
	// SlotNewer means the slot raised the high-water mark.
	SlotNewer SlotStatus = iota
	// SlotCurrent means the slot is at or within the lag tolerance of the
	// high-water mark.
	SlotCurrent
	// SlotStale means the slot is further behind than the lag tolerance.
	SlotStale
)

// String returns the string representation of SlotStatus.
func (s SlotStatus) String() string {
	switch s {
	case SlotNewer:
		return "newer"
	case SlotCurrent:
		return "current"
	case SlotStale:
		return "stale"
	default:
		return "unknown"
	}
}

// SlotTracker tracks the highest slot seen across all providers and
// classifies freshness of incoming slots. The reporting provider's identity
// never affects classification; per-provider marks exist for diagnostics
// only (e.g. spotting a lagging endpoint).
type SlotTracker struct {
	mu      sync.Mutex
	latest  uint64
	perProv map[string]uint64
	maxLag  uint64
}

// NewSlotTracker creates a tracker that tolerates slots up to maxLag behind
// the highest slot seen so far.
func NewSlotTracker(maxLag uint64) *SlotTracker {
	return &SlotTracker{
		perProv: make(map[string]uint64),
		maxLag:  maxLag,
	}
}

// Update records a slot observation from a provider and classifies it.
// A slot behind the high-water mark but within the lag tolerance is Current,
// not Stale; only slots further behind than maxLag are rejected.
func (t *SlotTracker) Update(provider string, slot uint64) SlotStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slot > t.perProv[provider] {
		t.perProv[provider] = slot
	}

	switch {
	case slot > t.latest:
		t.latest = slot
		return SlotNewer
	case slot >= saturatingSub(t.latest, t.maxLag):
		return SlotCurrent
	default:
		return SlotStale
	}
}

// LatestSlot returns the highest slot seen across all providers.
func (t *SlotTracker) LatestSlot() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// IsAcceptable reports whether slot is fresh enough to act on.
func (t *SlotTracker) IsAcceptable(slot uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slot >= saturatingSub(t.latest, t.maxLag)
}

// ProviderSlots returns a copy of the per-provider high-water marks.
func (t *SlotTracker) ProviderSlots() map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(t.perProv))
	for p, s := range t.perProv {
		out[p] = s
	}
	return out
}

// Reset zeroes the tracker, e.g. after a full reconnect of all providers.
func (t *SlotTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = 0
	t.perProv = make(map[string]uint64)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
