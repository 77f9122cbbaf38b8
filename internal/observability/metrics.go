// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	MessagesReceived  *prometheus.CounterVec
	MessagesAccepted  *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
	PendingEvents     prometheus.Gauge
	HighestSlotSeen   prometheus.Gauge
	DispatchLatency   prometheus.Histogram

	// Archive metrics
	ArchivedEvents       prometheus.Counter
	ArchiveFlushErrors   prometheus.Counter
	ArchiveFlushDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "feed_aggregator"
	}

	return &Metrics{
		MessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_received_total",
			Help:      "Total raw notifications received, by provider",
		}, []string{"provider"}),
		MessagesAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_accepted_total",
			Help:      "Total notifications accepted by the consensus filter, by kind",
		}, []string{"kind"}),
		MessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_dropped_total",
			Help:      "Total notifications dropped, by reason (duplicate, stale, overflow)",
		}, []string{"reason"}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "active_connections",
			Help:      "Number of provider connections currently in the connected state",
		}),
		PendingEvents: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "pending_events",
			Help:      "Accepted events buffered but not yet polled",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen across all providers",
		}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dispatch_latency_seconds",
			Help:      "Socket receipt to output channel publish latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),

		ArchivedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "events_stored_total",
			Help:      "Total accepted events flushed to the archive",
		}),
		ArchiveFlushErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flush_errors_total",
			Help:      "Total archive flush failures",
		}),
		ArchiveFlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flush_duration_seconds",
			Help:      "Archive bulk insert duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordReceived increments the received counter for a provider.
func RecordReceived(provider string) {
	DefaultMetrics.MessagesReceived.WithLabelValues(provider).Inc()
}

// RecordAccepted increments the accepted counter for a notification kind.
func RecordAccepted(kind string) {
	DefaultMetrics.MessagesAccepted.WithLabelValues(kind).Inc()
}

// RecordDropped increments the dropped counter for a reason.
func RecordDropped(reason string) {
	DefaultMetrics.MessagesDropped.WithLabelValues(reason).Inc()
}

// UpdateActiveConnections sets the active connection gauge.
func UpdateActiveConnections(n int) {
	DefaultMetrics.ActiveConnections.Set(float64(n))
}

// UpdatePendingEvents sets the pending events gauge.
func UpdatePendingEvents(n int) {
	DefaultMetrics.PendingEvents.Set(float64(n))
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot uint64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// ObserveDispatchLatency records one dispatch latency sample.
func ObserveDispatchLatency(seconds float64) {
	DefaultMetrics.DispatchLatency.Observe(seconds)
}

// RecordArchiveFlush records an archive flush attempt.
func RecordArchiveFlush(events int, seconds float64, err error) {
	DefaultMetrics.ArchiveFlushDuration.Observe(seconds)
	if err != nil {
		DefaultMetrics.ArchiveFlushErrors.Inc()
		return
	}
	DefaultMetrics.ArchivedEvents.Add(float64(events))
}
