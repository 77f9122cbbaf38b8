package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{ChannelCapacity: 500}.withDefaults()

	assert.Equal(t, 500, cfg.ChannelCapacity)
	assert.Equal(t, 10000, cfg.DedupCapacity)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxReconnectDelay)
	assert.Equal(t, 1.5, cfg.BackoffMultiplier)

	// MaxSlotLag zero is the strictest valid tolerance and stays zero;
	// same for an explicit SubscribeSlots=false.
	assert.Zero(t, cfg.MaxSlotLag)
	assert.False(t, cfg.SubscribeSlots)
}

func TestConfigWithDefaults_KeepsExplicitValues(t *testing.T) {
	in := Config{
		ChannelCapacity:       10,
		DedupCapacity:         20,
		MaxSlotLag:            7,
		PingInterval:          time.Second,
		ReadTimeout:           2 * time.Second,
		WriteTimeout:          3 * time.Second,
		HandshakeTimeout:      4 * time.Second,
		InitialReconnectDelay: 5 * time.Millisecond,
		MaxReconnectDelay:     6 * time.Second,
		BackoffMultiplier:     2.5,
		SubscribeSlots:        true,
	}
	assert.Equal(t, in, in.withDefaults())
}
