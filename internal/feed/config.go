package feed

import "time"

// Config configures the aggregator and its provider connections.
type Config struct {
	// ChannelCapacity bounds the accepted-event output channel. When full,
	// the oldest unread event is dropped and counted.
	ChannelCapacity int
	// DedupCapacity bounds the signature dedup window.
	DedupCapacity int
	// MaxSlotLag is the freshness tolerance in slots. Zero is valid and
	// means strictest filtering (anything behind the latest slot is
	// stale), so withDefaults never backfills it; DefaultConfig uses 2.
	MaxSlotLag uint64
	// PingInterval is how often ping frames are written per connection.
	PingInterval time.Duration
	// ReadTimeout is the per-read deadline; a silent connection is forced
	// through the reconnect path when it expires.
	ReadTimeout time.Duration
	// WriteTimeout bounds subscribe and ping writes.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// InitialReconnectDelay is the backoff starting point.
	InitialReconnectDelay time.Duration
	// MaxReconnectDelay caps the backoff.
	MaxReconnectDelay time.Duration
	// BackoffMultiplier grows the delay on each consecutive failure.
	BackoffMultiplier float64
	// SubscribeSlots adds a slotSubscribe per connection so the freshness
	// window keeps advancing even when the watched programs are quiet.
	SubscribeSlots bool
}

// DefaultConfig returns the configuration used by the live daemon.
func DefaultConfig() Config {
	return Config{
		ChannelCapacity:       1000,
		DedupCapacity:         10000,
		MaxSlotLag:            2,
		PingInterval:          30 * time.Second,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          10 * time.Second,
		HandshakeTimeout:      10 * time.Second,
		InitialReconnectDelay: 500 * time.Millisecond,
		MaxReconnectDelay:     30 * time.Second,
		BackoffMultiplier:     1.5,
		SubscribeSlots:        true,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = def.ChannelCapacity
	}
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = def.DedupCapacity
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.InitialReconnectDelay <= 0 {
		c.InitialReconnectDelay = def.InitialReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	return c
}

// Topics is the subscription set applied to every provider connection.
type Topics struct {
	// Programs are program IDs watched via logsSubscribe (one mentions
	// filter per program; some providers only accept a single address).
	Programs []string
	// Accounts are addresses watched via accountSubscribe.
	Accounts []string
}
