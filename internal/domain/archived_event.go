package domain

// ArchivedEvent is the flattened form of an accepted Event for storage.
type ArchivedEvent struct {
	Provider    string
	Kind        string
	Slot        uint64
	Signature   string
	TimestampMs int64 // receipt time, Unix milliseconds
	LogCount    int   // number of log lines (logs events only)
}
