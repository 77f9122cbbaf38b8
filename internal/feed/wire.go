package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"solana-feed-aggregator/internal/domain"
)

// RawNotification is one parsed inbound frame from one provider, before the
// consensus filter has seen it.
type RawNotification struct {
	Provider   string
	Kind       domain.NotificationKind
	Slot       uint64
	Signature  string // transaction signature, empty for account/slot kinds
	Logs       *domain.LogsPayload
	Account    *domain.AccountPayload
	ReceivedAt time.Time
}

// JSON-RPC wire types (Solana pubsub protocol).

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *wsError        `json:"error"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type wsContext struct {
	Slot uint64 `json:"slot"`
}

type wsLogsResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

type wsAccountResult struct {
	Context *wsContext     `json:"context"`
	Value   wsAccountValue `json:"value"`
}

type wsAccountValue struct {
	Lamports  uint64          `json:"lamports"`
	Owner     string          `json:"owner"`
	Data      json.RawMessage `json:"data"`
	RentEpoch uint64          `json:"rentEpoch"`
}

type wsSlotResult struct {
	Parent uint64 `json:"parent"`
	Root   uint64 `json:"root"`
	Slot   uint64 `json:"slot"`
}

// parseLogsNotification decodes a logsNotification result payload.
func parseLogsNotification(provider string, result json.RawMessage, receivedAt time.Time) (RawNotification, error) {
	var res wsLogsResult
	if err := json.Unmarshal(result, &res); err != nil {
		return RawNotification{}, fmt.Errorf("decode logs result: %w", err)
	}

	n := RawNotification{
		Provider:   provider,
		Kind:       domain.KindLogs,
		Signature:  res.Value.Signature,
		ReceivedAt: receivedAt,
		Logs: &domain.LogsPayload{
			Signature: res.Value.Signature,
			Logs:      res.Value.Logs,
			Err:       res.Value.Err,
		},
	}
	if res.Context != nil {
		n.Slot = res.Context.Slot
	}
	return n, nil
}

// parseAccountNotification decodes an accountNotification result payload.
// The subscribed account address is not echoed back by the protocol, so the
// caller supplies it from the subscription registry.
func parseAccountNotification(provider, account string, result json.RawMessage, receivedAt time.Time) (RawNotification, error) {
	var res wsAccountResult
	if err := json.Unmarshal(result, &res); err != nil {
		return RawNotification{}, fmt.Errorf("decode account result: %w", err)
	}

	n := RawNotification{
		Provider:   provider,
		Kind:       domain.KindAccount,
		ReceivedAt: receivedAt,
		Account: &domain.AccountPayload{
			Account:  account,
			Lamports: res.Value.Lamports,
			Owner:    res.Value.Owner,
			Data:     decodeAccountData(res.Value.Data),
		},
	}
	if res.Context != nil {
		n.Slot = res.Context.Slot
	}
	return n, nil
}

// decodeAccountData extracts the base64 payload from the data field, which
// arrives either as ["<base64>", "base64"] or as a bare string.
func decodeAccountData(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var pair []string
	if err := json.Unmarshal(raw, &pair); err == nil && len(pair) > 0 {
		return pair[0]
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// parseSlotNotification decodes a slotNotification result payload.
func parseSlotNotification(provider string, result json.RawMessage, receivedAt time.Time) (RawNotification, error) {
	var res wsSlotResult
	if err := json.Unmarshal(result, &res); err != nil {
		return RawNotification{}, fmt.Errorf("decode slot result: %w", err)
	}

	return RawNotification{
		Provider:   provider,
		Kind:       domain.KindSlot,
		Slot:       res.Slot,
		ReceivedAt: receivedAt,
	}, nil
}
