package domain

// ConsensusStats is a snapshot of the consensus engine counters.
type ConsensusStats struct {
	Accepted   uint64 // messages that passed dedup and freshness
	Duplicate  uint64 // rejected as already-seen signature
	Stale      uint64 // rejected as behind the slot lag tolerance
	LatestSlot uint64 // highest slot observed across all providers
}

// AggregatorStats is the external health surface of the aggregator.
type AggregatorStats struct {
	ActiveConnections uint64
	MessagesReceived  uint64
	MessagesAccepted  uint64
	MessagesDropped   uint64 // duplicates + stale + channel overflow
	AvgLatencyMs      float64
}
