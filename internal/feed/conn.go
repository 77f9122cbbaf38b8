package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-feed-aggregator/internal/domain"
)

// ConnState is the lifecycle state of one provider connection.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the string representation of ConnState.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// subMeta describes what one subscription ID maps back to.
type subMeta struct {
	kind    domain.NotificationKind
	account string // accountSubscribe only
}

// providerConn owns one persistent WebSocket link to one endpoint. Its run
// loop is the only goroutine touching the connection reads; ping writes are
// serialized through writeMu. Connection failures are local: the loop
// retries forever with bounded multiplicative backoff and never surfaces an
// error to the aggregator.
type providerConn struct {
	label      string
	endpoint   string
	cfg        Config
	topics     Topics
	commitment string
	out        chan<- RawNotification

	state    atomic.Int32
	attempts atomic.Uint64
	lastMsg  atomic.Int64 // unix nanos of last received frame
}

func newProviderConn(label, endpoint string, cfg Config, topics Topics, commitment string, out chan<- RawNotification) *providerConn {
	return &providerConn{
		label:      label,
		endpoint:   endpoint,
		cfg:        cfg,
		topics:     topics,
		commitment: commitment,
		out:        out,
	}
}

// State returns the current connection state.
func (c *providerConn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *providerConn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// LastMessageAt returns the receipt time of the most recent frame.
func (c *providerConn) LastMessageAt() time.Time {
	ns := c.lastMsg.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// run drives the connect → subscribe → receive → reconnect loop until ctx is
// cancelled. Backoff resets to the initial delay after every successful
// connect and grows by the configured multiplier on consecutive failures.
func (c *providerConn) run(ctx context.Context) {
	defer c.setState(StateDisconnected)

	delay := c.cfg.InitialReconnectDelay

	for ctx.Err() == nil {
		c.setState(StateConnecting)

		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[feed:%s] connection error: %v", c.label, err)
		}
		if connected {
			delay = c.cfg.InitialReconnectDelay
		}

		c.setState(StateReconnecting)
		c.attempts.Add(1)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay = nextDelay(delay, c.cfg)
	}
}

// nextDelay grows a backoff delay by the configured multiplier, capped at
// the maximum.
func nextDelay(delay time.Duration, cfg Config) time.Duration {
	next := time.Duration(float64(delay) * cfg.BackoffMultiplier)
	if next > cfg.MaxReconnectDelay {
		next = cfg.MaxReconnectDelay
	}
	return next
}

// session dials, subscribes and reads until the connection dies. The
// connected return value reports whether subscriptions were issued, which is
// what resets the backoff.
func (c *providerConn) session(ctx context.Context) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	defer conn.Close()

	// Unblock the read loop when the aggregator stops.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
		}
	}()

	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		return conn.WriteJSON(v)
	}

	pending, err := c.subscribeAll(writeJSON)
	if err != nil {
		return false, err
	}

	c.setState(StateConnected)
	log.Printf("[feed:%s] connected, %d subscriptions issued", c.label, len(pending))

	// Pong frames count as liveness.
	conn.SetPongHandler(func(string) error {
		c.lastMsg.Store(time.Now().UnixNano())
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	go c.pingLoop(sessionDone, conn, &writeMu)

	subs := make(map[int64]subMeta)

	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}

		receivedAt := time.Now()
		c.lastMsg.Store(receivedAt.UnixNano())

		if err := c.handleMessage(ctx, message, receivedAt, pending, subs); err != nil {
			return true, err
		}
	}
}

// pingLoop writes ping frames on the configured interval; a dead link shows
// up as a read deadline expiry in the read loop.
func (c *providerConn) pingLoop(done <-chan struct{}, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// subscribeAll issues the configured subscriptions and returns the request
// ID → subscription meta map used to resolve confirmations.
func (c *providerConn) subscribeAll(writeJSON func(interface{}) error) (map[uint64]subMeta, error) {
	pending := make(map[uint64]subMeta)
	var reqID uint64

	for _, program := range c.topics.Programs {
		reqID++
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      reqID,
			Method:  "logsSubscribe",
			Params: []interface{}{
				map[string]interface{}{"mentions": []string{program}},
				map[string]string{"commitment": c.commitment},
			},
		}
		if err := writeJSON(req); err != nil {
			return nil, fmt.Errorf("subscribe logs %s: %w", program, err)
		}
		pending[reqID] = subMeta{kind: domain.KindLogs}
	}

	for _, account := range c.topics.Accounts {
		reqID++
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      reqID,
			Method:  "accountSubscribe",
			Params: []interface{}{
				account,
				map[string]string{"encoding": "base64", "commitment": c.commitment},
			},
		}
		if err := writeJSON(req); err != nil {
			return nil, fmt.Errorf("subscribe account %s: %w", account, err)
		}
		pending[reqID] = subMeta{kind: domain.KindAccount, account: account}
	}

	if c.cfg.SubscribeSlots {
		reqID++
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      reqID,
			Method:  "slotSubscribe",
		}
		if err := writeJSON(req); err != nil {
			return nil, fmt.Errorf("subscribe slots: %w", err)
		}
		pending[reqID] = subMeta{kind: domain.KindSlot}
	}

	return pending, nil
}

// handleMessage resolves subscription confirmations and forwards parsed
// notifications to the shared inbound channel. Invalid JSON is a parse error
// and tears the session down; well-formed but unknown frames are ignored.
func (c *providerConn) handleMessage(ctx context.Context, message []byte, receivedAt time.Time, pending map[uint64]subMeta, subs map[int64]subMeta) error {
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err != nil {
		return fmt.Errorf("parse frame: %w", err)
	}

	if notif.Method == "" {
		// Subscription confirmation or error response.
		var resp wsResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if resp.Error != nil {
			log.Printf("[feed:%s] subscribe error: code=%d msg=%s", c.label, resp.Error.Code, resp.Error.Message)
			delete(pending, resp.ID)
			return nil
		}
		meta, ok := pending[resp.ID]
		if !ok {
			return nil
		}
		var subID int64
		if err := json.Unmarshal(resp.Result, &subID); err != nil {
			return nil
		}
		delete(pending, resp.ID)
		subs[subID] = meta
		return nil
	}

	if notif.Params == nil {
		return nil
	}

	var (
		raw RawNotification
		err error
	)

	switch notif.Method {
	case "logsNotification":
		raw, err = parseLogsNotification(c.label, notif.Params.Result, receivedAt)
	case "accountNotification":
		meta := subs[notif.Params.Subscription]
		raw, err = parseAccountNotification(c.label, meta.account, notif.Params.Result, receivedAt)
	case "slotNotification":
		raw, err = parseSlotNotification(c.label, notif.Params.Result, receivedAt)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	select {
	case c.out <- raw:
	case <-ctx.Done():
	}
	return nil
}
