package domain

import "time"

// NotificationKind identifies the subscription type a notification came from.
type NotificationKind string

const (
	KindLogs    NotificationKind = "logs"
	KindAccount NotificationKind = "account"
	KindSlot    NotificationKind = "slot"
)

// String returns the string representation of NotificationKind.
func (k NotificationKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k NotificationKind) IsValid() bool {
	return k == KindLogs || k == KindAccount || k == KindSlot
}

// LogsPayload carries the decoded value of a logsNotification.
type LogsPayload struct {
	Signature string      // transaction signature
	Logs      []string    // program log lines
	Err       interface{} // non-nil when the transaction failed
}

// AccountPayload carries the decoded value of an accountNotification.
type AccountPayload struct {
	Account  string // subscribed account address
	Lamports uint64
	Owner    string // owning program
	Data     string // base64-encoded account data
}

// Event is a consensus-accepted notification ready for the consumer.
// Exactly one of Logs or Account is set, according to Kind; slot-only
// notifications advance the slot tracker and are never published.
type Event struct {
	Provider   string           // provider label that won the race
	Kind       NotificationKind // which subscription produced it
	Slot       uint64           // chain position from the context field
	Signature  string           // dedup key (synthetic for account events)
	ReceivedAt time.Time        // local receipt time at the socket
	Logs       *LogsPayload
	Account    *AccountPayload
}
