package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotTracker_Classification(t *testing.T) {
	tracker := NewSlotTracker(2)

	require.Equal(t, SlotNewer, tracker.Update("helius", 1000))
	require.Equal(t, uint64(1000), tracker.LatestSlot())

	// Same slot from a different provider is current, not newer.
	require.Equal(t, SlotCurrent, tracker.Update("alchemy", 1000))

	require.Equal(t, SlotNewer, tracker.Update("helius", 1005))
	require.Equal(t, uint64(1005), tracker.LatestSlot())

	// More than maxLag behind the high-water mark is stale.
	require.Equal(t, SlotStale, tracker.Update("alchemy", 1000))

	// Behind but within the lag tolerance stays current.
	require.Equal(t, SlotCurrent, tracker.Update("quicknode", 1003))
}

func TestSlotTracker_StaleDoesNotMutate(t *testing.T) {
	tracker := NewSlotTracker(1)
	tracker.Update("a", 100)

	require.Equal(t, SlotStale, tracker.Update("b", 50))
	assert.Equal(t, uint64(100), tracker.LatestSlot())
}

func TestSlotTracker_Monotonic(t *testing.T) {
	tracker := NewSlotTracker(2)

	slots := []uint64{5, 3, 10, 1, 10, 9, 42, 7}
	var prev uint64
	for _, s := range slots {
		tracker.Update("p", s)
		require.GreaterOrEqual(t, tracker.LatestSlot(), prev, "latest slot must never decrease")
		prev = tracker.LatestSlot()
	}
	assert.Equal(t, uint64(42), tracker.LatestSlot())
}

func TestSlotTracker_IsAcceptable(t *testing.T) {
	tracker := NewSlotTracker(2)
	tracker.Update("helius", 100)

	assert.True(t, tracker.IsAcceptable(100))
	assert.True(t, tracker.IsAcceptable(99))
	assert.True(t, tracker.IsAcceptable(98))
	assert.False(t, tracker.IsAcceptable(97))
	assert.True(t, tracker.IsAcceptable(200), "ahead of latest is always acceptable")
}

func TestSlotTracker_FreshnessEquivalence(t *testing.T) {
	const maxLag = 3
	tracker := NewSlotTracker(maxLag)
	tracker.Update("p", 50)

	for p := uint64(40); p <= 60; p++ {
		latest := tracker.LatestSlot()
		want := p >= latest || latest-p <= maxLag
		assert.Equal(t, want, tracker.IsAcceptable(p), "slot %d vs latest %d", p, latest)
	}
}

func TestSlotTracker_SaturationNearZero(t *testing.T) {
	tracker := NewSlotTracker(10)

	// Nothing seen yet: every slot is acceptable.
	assert.True(t, tracker.IsAcceptable(0))

	tracker.Update("p", 3)
	// latest(3) - maxLag(10) saturates at zero.
	assert.True(t, tracker.IsAcceptable(0))
}

func TestSlotTracker_ProviderSlots(t *testing.T) {
	tracker := NewSlotTracker(2)
	tracker.Update("helius", 100)
	tracker.Update("alchemy", 90)
	tracker.Update("helius", 110)
	tracker.Update("helius", 105) // lower observation keeps the provider mark

	got := tracker.ProviderSlots()
	assert.Equal(t, map[string]uint64{"helius": 110, "alchemy": 90}, got)
}

func TestSlotTracker_Reset(t *testing.T) {
	tracker := NewSlotTracker(2)
	tracker.Update("helius", 500)
	tracker.Reset()

	assert.Equal(t, uint64(0), tracker.LatestSlot())
	assert.Empty(t, tracker.ProviderSlots())
	assert.Equal(t, SlotNewer, tracker.Update("helius", 1))
}
