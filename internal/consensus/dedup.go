package consensus

import "sync"

// SignatureDedup is a bounded first-seen filter over transaction signatures.
// Membership is exact (no false positives); when the structure is full the
// oldest quarter of entries is evicted in one batch, which keeps eviction
// cost amortized under sustained insert rates.
type SignatureDedup struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string // insertion order, oldest first
	max   int
	batch int // entries removed per eviction
}

// DefaultDedupCapacity matches the signature volume of a few seconds of
// mainnet DEX traffic.
const DefaultDedupCapacity = 10000

// NewSignatureDedup creates a dedup filter holding at most maxSize signatures.
// Non-positive maxSize falls back to DefaultDedupCapacity.
func NewSignatureDedup(maxSize int) *SignatureDedup {
	if maxSize <= 0 {
		maxSize = DefaultDedupCapacity
	}
	batch := maxSize / 4
	if batch < 1 {
		batch = 1
	}
	return &SignatureDedup{
		seen:  make(map[string]struct{}, maxSize),
		order: make([]string, 0, maxSize),
		max:   maxSize,
		batch: batch,
	}
}

// IsNew reports whether signature has not been seen before, recording it on
// first sight. Returns false for every subsequent call until eviction.
func (d *SignatureDedup) IsNew(signature string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[signature]; ok {
		return false
	}

	if len(d.seen) >= d.max {
		d.evictLocked()
	}

	d.seen[signature] = struct{}{}
	d.order = append(d.order, signature)
	return true
}

// evictLocked removes the oldest batch of signatures. Caller holds d.mu.
func (d *SignatureDedup) evictLocked() {
	n := d.batch
	if n > len(d.order) {
		n = len(d.order)
	}
	for _, sig := range d.order[:n] {
		delete(d.seen, sig)
	}
	d.order = append(d.order[:0], d.order[n:]...)
}

// Size returns the current number of tracked signatures.
func (d *SignatureDedup) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Clear empties the filter.
func (d *SignatureDedup) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, d.max)
	d.order = d.order[:0]
}
