package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-feed-aggregator/internal/domain"
)

const raydiumProgram = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

func logsRaw(provider, signature string, slot uint64) RawNotification {
	return RawNotification{
		Provider:   provider,
		Kind:       domain.KindLogs,
		Slot:       slot,
		Signature:  signature,
		ReceivedAt: time.Now(),
		Logs:       &domain.LogsPayload{Signature: signature},
	}
}

func accountRaw(provider, account string, slot uint64) RawNotification {
	return RawNotification{
		Provider:   provider,
		Kind:       domain.KindAccount,
		Slot:       slot,
		ReceivedAt: time.Now(),
		Account:    &domain.AccountPayload{Account: account},
	}
}

func TestAggregator_RouteRaceToFirst(t *testing.T) {
	agg := New(Config{MaxSlotLag: 2})

	agg.route(logsRaw("helius", "sig1", 100))
	agg.route(logsRaw("alchemy", "sig1", 100)) // duplicate
	agg.route(logsRaw("alchemy", "sig2", 101))
	agg.route(logsRaw("quicknode", "sig3", 50)) // stale

	stats := agg.Stats()
	assert.Equal(t, uint64(4), stats.MessagesReceived)
	assert.Equal(t, uint64(2), stats.MessagesAccepted)
	assert.Equal(t, uint64(2), stats.MessagesDropped)

	cs := agg.ConsensusStats()
	assert.Equal(t, uint64(1), cs.Duplicate)
	assert.Equal(t, uint64(1), cs.Stale)
	assert.Equal(t, uint64(101), cs.LatestSlot)

	events := agg.PollEvents(10)
	require.Len(t, events, 2)
	assert.Equal(t, "sig1", events[0].Signature)
	assert.Equal(t, "helius", events[0].Provider)
	assert.Equal(t, "sig2", events[1].Signature)
}

func TestAggregator_SlotNotificationsAdvanceWindowOnly(t *testing.T) {
	agg := New(Config{MaxSlotLag: 2})

	agg.route(RawNotification{Provider: "helius", Kind: domain.KindSlot, Slot: 500, ReceivedAt: time.Now()})

	assert.Equal(t, 0, agg.PendingCount(), "slot notifications are not published")
	assert.Equal(t, uint64(500), agg.ConsensusStats().LatestSlot)

	// A log far behind the slot feed is now stale.
	agg.route(logsRaw("alchemy", "sig1", 400))
	assert.Equal(t, uint64(1), agg.ConsensusStats().Stale)
}

func TestAggregator_SyntheticAccountKey(t *testing.T) {
	agg := New(Config{MaxSlotLag: 5})

	agg.route(accountRaw("helius", "acct1", 100))
	agg.route(accountRaw("helius", "acct1", 100)) // same update redelivered
	agg.route(accountRaw("helius", "acct1", 101)) // new slot, new key

	cs := agg.ConsensusStats()
	assert.Equal(t, uint64(2), cs.Accepted)
	assert.Equal(t, uint64(1), cs.Duplicate)

	events := agg.PollEvents(10)
	require.Len(t, events, 2)
	assert.Equal(t, "helius|100|acct1", events[0].Signature)
	require.NotNil(t, events[0].Account)
	assert.Equal(t, "acct1", events[0].Account.Account)
}

func TestAggregator_OverflowDropsOldest(t *testing.T) {
	agg := New(Config{ChannelCapacity: 3, MaxSlotLag: 1000})

	for i := 0; i < 5; i++ {
		agg.route(logsRaw("p", fmt.Sprintf("sig%d", i), uint64(100+i)))
	}

	assert.Equal(t, 3, agg.PendingCount())

	events := agg.PollEvents(10)
	require.Len(t, events, 3)
	// Oldest two were evicted to make room.
	assert.Equal(t, "sig2", events[0].Signature)
	assert.Equal(t, "sig4", events[2].Signature)

	stats := agg.Stats()
	assert.Equal(t, uint64(5), stats.MessagesAccepted)
	assert.Equal(t, uint64(2), stats.MessagesDropped, "overflow drops are counted")
}

func TestAggregator_PollNeverBlocks(t *testing.T) {
	agg := New(Config{})

	assert.Nil(t, agg.PollEvent())
	assert.Empty(t, agg.PollEvents(10))
	assert.Nil(t, agg.PollEvents(0))
	assert.Equal(t, 0, agg.PendingCount())
}

func TestAggregator_PollEventsPartialBatch(t *testing.T) {
	agg := New(Config{MaxSlotLag: 10})
	agg.route(logsRaw("p", "sig1", 100))
	agg.route(logsRaw("p", "sig2", 100))

	events := agg.PollEvents(100)
	assert.Len(t, events, 2)
	assert.Empty(t, agg.PollEvents(100))
}

func TestAggregator_StartValidation(t *testing.T) {
	agg := New(Config{})
	ctx := context.Background()

	err := agg.Start(ctx, nil, Topics{}, "processed")
	require.Error(t, err)

	err = agg.Start(ctx, []domain.ProviderEndpoint{{URL: "ws://localhost:1"}}, Topics{Programs: []string{"not-base58-0OIl"}}, "processed")
	require.Error(t, err)
	assert.False(t, agg.IsRunning())
}

func TestAggregator_StopIdempotent(t *testing.T) {
	agg := New(Config{})

	// Stop before Start and double Stop must not panic.
	agg.Stop()
	agg.Stop()
	assert.False(t, agg.IsRunning())
}

func TestAggregator_StartStopLifecycle(t *testing.T) {
	server := newFakeProvider(t, map[string][]string{
		"sig_a": nil,
	})
	defer server.Close()

	agg := New(testConfig())
	ctx := context.Background()

	endpoints := []domain.ProviderEndpoint{{Label: "fake", URL: wsURL(server)}}
	topics := Topics{Programs: []string{raydiumProgram}}

	require.NoError(t, agg.Start(ctx, endpoints, topics, "processed"))
	assert.True(t, agg.IsRunning())

	// Second start without stop is a configuration error.
	err := agg.Start(ctx, endpoints, topics, "processed")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return agg.PendingCount() > 0
	}, 5*time.Second, 10*time.Millisecond)

	agg.Stop()
	assert.False(t, agg.IsRunning())

	// Buffered events survive Stop.
	ev := agg.PollEvent()
	require.NotNil(t, ev)
	assert.Equal(t, "sig_a", ev.Signature)
	assert.Equal(t, "fake", ev.Provider)

	// Restart works after a clean stop.
	require.NoError(t, agg.Start(ctx, endpoints, topics, "processed"))
	agg.Stop()
}

func TestAggregator_TwoProvidersOneEvent(t *testing.T) {
	serverA := newFakeProvider(t, map[string][]string{"shared_sig": nil})
	defer serverA.Close()
	serverB := newFakeProvider(t, map[string][]string{"shared_sig": nil})
	defer serverB.Close()

	agg := New(testConfig())
	endpoints := []domain.ProviderEndpoint{
		{Label: "a", URL: wsURL(serverA)},
		{Label: "b", URL: wsURL(serverB)},
	}

	require.NoError(t, agg.Start(context.Background(), endpoints, Topics{Programs: []string{raydiumProgram}}, "processed"))
	defer agg.Stop()

	require.Eventually(t, func() bool {
		return agg.ConsensusStats().Duplicate >= 1
	}, 5*time.Second, 10*time.Millisecond, "second provider's copy should be rejected")

	assert.Equal(t, 1, agg.PendingCount(), "only the race winner is published")

	require.Eventually(t, func() bool {
		return agg.Stats().ActiveConnections == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, agg.Stats().MessagesReceived, uint64(2))
}

func TestAggregator_AvgLatency(t *testing.T) {
	agg := New(Config{MaxSlotLag: 10})

	n := logsRaw("p", "sig1", 100)
	n.ReceivedAt = time.Now().Add(-10 * time.Millisecond)
	agg.route(n)

	stats := agg.Stats()
	assert.Greater(t, stats.AvgLatencyMs, 9.0)
}

// newFakeProvider serves one WebSocket session per dial: it confirms every
// subscription, then emits one logs notification per entry in sigs at
// slot 100, then holds the connection open.
func newFakeProvider(t *testing.T, sigs map[string][]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 1}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}

		for sig, logs := range sigs {
			if err := conn.WriteJSON(logsNotificationJSON(1, 100, sig, logs)); err != nil {
				return
			}
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}
