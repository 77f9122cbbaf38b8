package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"solana-feed-aggregator/internal/consensus"
	"solana-feed-aggregator/internal/domain"
	"solana-feed-aggregator/internal/observability"
)

// ErrAlreadyRunning is returned by Start when the aggregator is running.
var ErrAlreadyRunning = errors.New("aggregator already running")

// Aggregator owns the full set of provider connections and races their
// notifications through the consensus filter into one bounded output
// channel. It is the only component exposed to the consumer.
//
// Construct with New and pass the instance to whatever needs it; there is no
// shared global.
type Aggregator struct {
	cfg    Config
	engine *consensus.Engine
	out    chan *domain.Event

	mu      sync.Mutex // guards lifecycle
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	conns   []*providerConn

	received atomic.Uint64
	accepted atomic.Uint64
	overflow atomic.Uint64

	latencySumNs atomic.Uint64
	latencyCount atomic.Uint64
}

// New creates an aggregator. The output channel capacity is fixed here;
// events buffered at Stop remain drainable afterwards.
func New(cfg Config) *Aggregator {
	cfg = cfg.withDefaults()
	return &Aggregator{
		cfg:    cfg,
		engine: consensus.NewEngine(cfg.DedupCapacity, cfg.MaxSlotLag),
		out:    make(chan *domain.Event, cfg.ChannelCapacity),
	}
}

// Start spins up one connection per endpoint, all subscribing to the same
// topic set. It returns ErrAlreadyRunning instead of restarting implicitly.
func (a *Aggregator) Start(ctx context.Context, endpoints []domain.ProviderEndpoint, topics Topics, commitment string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}
	if len(endpoints) == 0 {
		return errors.New("no endpoints configured")
	}
	if commitment == "" {
		commitment = "processed"
	}

	for _, addr := range topics.Programs {
		if err := validateAddress(addr); err != nil {
			return fmt.Errorf("program topic: %w", err)
		}
	}
	for _, addr := range topics.Accounts {
		if err := validateAddress(addr); err != nil {
			return fmt.Errorf("account topic: %w", err)
		}
		log.Printf("[feed] watching account %s (%s)", addr, classifyAddress(addr))
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// The inbound conduit is oversized relative to the output channel so a
	// consumer stall never backs up into the socket read path.
	raw := make(chan RawNotification, 2*a.cfg.ChannelCapacity)

	a.conns = a.conns[:0]
	for i, ep := range endpoints {
		label := ep.Label
		if label == "" {
			label = fmt.Sprintf("provider_%d", i)
		}
		conn := newProviderConn(label, ep.URL, a.cfg, topics, commitment, raw)
		a.conns = append(a.conns, conn)

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			conn.run(runCtx)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(runCtx, raw)
	}()

	a.running = true
	log.Printf("[feed] aggregator started: %d providers, %d programs, %d accounts, commitment=%s",
		len(endpoints), len(topics.Programs), len(topics.Accounts), commitment)
	return nil
}

// Stop cancels every connection and waits for the loops to exit. It is
// idempotent, safe before Start and safe concurrently with an in-flight
// Start completing. Buffered events remain available via PollEvents.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}

	a.cancel()
	a.wg.Wait()
	a.running = false
	a.conns = nil
	log.Printf("[feed] aggregator stopped, %d events still buffered", len(a.out))
}

// IsRunning reports whether the aggregator has active connections.
func (a *Aggregator) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// PollEvent returns the next accepted event, or nil when none is buffered.
// It never blocks; a consumer should idle briefly on nil before retrying.
func (a *Aggregator) PollEvent() *domain.Event {
	select {
	case ev := <-a.out:
		return ev
	default:
		return nil
	}
}

// PollEvents returns up to max buffered events without blocking.
func (a *Aggregator) PollEvents(max int) []*domain.Event {
	if max <= 0 {
		return nil
	}
	events := make([]*domain.Event, 0, max)
	for len(events) < max {
		select {
		case ev := <-a.out:
			events = append(events, ev)
		default:
			return events
		}
	}
	return events
}

// PendingCount returns the number of buffered-but-unpolled events.
func (a *Aggregator) PendingCount() int {
	return len(a.out)
}

// Stats returns the aggregate health surface.
func (a *Aggregator) Stats() domain.AggregatorStats {
	var active uint64
	a.mu.Lock()
	for _, c := range a.conns {
		if c.State() == StateConnected {
			active++
		}
	}
	a.mu.Unlock()

	cs := a.engine.Stats()
	dropped := cs.Duplicate + cs.Stale + a.overflow.Load()

	var avgMs float64
	if n := a.latencyCount.Load(); n > 0 {
		avgMs = float64(a.latencySumNs.Load()) / float64(n) / float64(time.Millisecond)
	}

	return domain.AggregatorStats{
		ActiveConnections: active,
		MessagesReceived:  a.received.Load(),
		MessagesAccepted:  a.accepted.Load(),
		MessagesDropped:   dropped,
		AvgLatencyMs:      avgMs,
	}
}

// ConsensusStats exposes the filter counters and latest slot.
func (a *Aggregator) ConsensusStats() domain.ConsensusStats {
	return a.engine.Stats()
}

// dispatch is the single serialization point: every raw notification from
// every connection passes through here and the consensus engine in arrival
// order.
func (a *Aggregator) dispatch(ctx context.Context, raw <-chan RawNotification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-raw:
			a.route(n)
		}
	}
}

func (a *Aggregator) route(n RawNotification) {
	a.received.Add(1)
	observability.RecordReceived(n.Provider)

	// Slot-only notifications advance the freshness window but carry no
	// payload worth publishing.
	if n.Kind == domain.KindSlot {
		a.engine.ObserveSlot(n.Provider, n.Slot)
		observability.UpdateHighestSlot(a.engine.Stats().LatestSlot)
		return
	}

	key := n.Signature
	if n.Kind == domain.KindAccount {
		// Account notifications have no transaction signature; substitute a
		// synthetic key so redelivery of the same update is still caught.
		key = fmt.Sprintf("%s|%d|%s", n.Provider, n.Slot, n.Account.Account)
	}

	if decision := a.engine.Decide(n.Provider, key, n.Slot); decision != consensus.Accept {
		observability.RecordDropped(decision.String())
		return
	}

	ev := &domain.Event{
		Provider:   n.Provider,
		Kind:       n.Kind,
		Slot:       n.Slot,
		Signature:  key,
		ReceivedAt: n.ReceivedAt,
		Logs:       n.Logs,
		Account:    n.Account,
	}
	a.publish(ev)

	a.accepted.Add(1)
	observability.RecordAccepted(n.Kind.String())
	observability.UpdateHighestSlot(a.engine.Stats().LatestSlot)

	lat := time.Since(n.ReceivedAt)
	a.latencySumNs.Add(uint64(lat))
	a.latencyCount.Add(1)
	observability.ObserveDispatchLatency(lat.Seconds())
}

// publish pushes onto the bounded output channel, dropping the oldest unread
// event when full. The network read path never blocks on a slow consumer.
func (a *Aggregator) publish(ev *domain.Event) {
	for {
		select {
		case a.out <- ev:
			return
		default:
		}
		select {
		case <-a.out:
			a.overflow.Add(1)
			observability.RecordDropped("overflow")
		default:
		}
	}
}
