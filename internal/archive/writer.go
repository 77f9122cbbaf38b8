package archive

import (
	"context"
	"log"
	"time"

	"solana-feed-aggregator/internal/domain"
	"solana-feed-aggregator/internal/observability"
	"solana-feed-aggregator/internal/storage"
)

// EventPoller is the slice of the aggregator the writer needs: a non-blocking
// batch poll of accepted events.
type EventPoller interface {
	PollEvents(max int) []*domain.Event
}

// Writer drains accepted events from a poller and persists them to an
// EventArchive in batches. Flushes happen when the buffer reaches BatchSize
// or on every FlushInterval tick, whichever comes first.
type Writer struct {
	poller        EventPoller
	archive       storage.EventArchive
	batchSize     int
	flushInterval time.Duration
	pollInterval  time.Duration
	logger        *log.Logger

	buf []*domain.ArchivedEvent
}

// WriterOptions contains configuration for creating a Writer.
type WriterOptions struct {
	Poller        EventPoller
	Archive       storage.EventArchive
	BatchSize     int           // Default: 500 events per flush
	FlushInterval time.Duration // Default: 5s - force flush buffered events periodically
	PollInterval  time.Duration // Default: 50ms - sleep between empty polls
	Logger        *log.Logger
}

// NewWriter creates a new archive writer.
func NewWriter(opts WriterOptions) *Writer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Writer{
		poller:        opts.Poller,
		archive:       opts.Archive,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		pollInterval:  pollInterval,
		logger:        logger,
		buf:           make([]*domain.ArchivedEvent, 0, batchSize),
	}
}

// Run drains events until the context is cancelled, then flushes whatever
// remains and returns ctx.Err().
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Printf("[archive] writer started, batch size %d, flush interval %v", w.batchSize, w.flushInterval)

	flushTicker := time.NewTicker(w.flushInterval)
	defer flushTicker.Stop()

	idle := time.NewTimer(w.pollInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			w.logger.Println("[archive] writer stopping")
			return ctx.Err()

		case <-flushTicker.C:
			w.flush(ctx)

		case <-idle.C:
			events := w.poller.PollEvents(w.batchSize - len(w.buf))
			for _, ev := range events {
				w.buf = append(w.buf, flatten(ev))
			}
			if len(w.buf) >= w.batchSize {
				w.flush(ctx)
			}
			idle.Reset(w.pollInterval)
		}
	}
}

// flush writes the buffered events and clears the buffer. Errors are logged
// and counted; the batch is dropped rather than retried so a dead sink cannot
// grow the buffer without bound.
func (w *Writer) flush(ctx context.Context) {
	if len(w.buf) == 0 {
		return
	}

	start := time.Now()
	err := w.archive.InsertBulk(ctx, w.buf)
	observability.RecordArchiveFlush(len(w.buf), time.Since(start).Seconds(), err)
	if err != nil {
		w.logger.Printf("[archive] flush of %d events failed: %v", len(w.buf), err)
	}
	w.buf = w.buf[:0]
}

// flatten converts a live event to its archived form.
func flatten(ev *domain.Event) *domain.ArchivedEvent {
	ae := &domain.ArchivedEvent{
		Provider:    ev.Provider,
		Kind:        ev.Kind.String(),
		Slot:        ev.Slot,
		Signature:   ev.Signature,
		TimestampMs: ev.ReceivedAt.UnixMilli(),
	}
	if ev.Logs != nil {
		ae.LogCount = len(ev.Logs.Logs)
	}
	return ae
}
