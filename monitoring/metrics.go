package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Processed scans by terminal outcome",
		},
		[]string{"status"},
	)

	syncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_operations_total",
			Help: "Pending-use sync attempts by outcome",
		},
		[]string{"outcome"},
	)

	pendingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_queue_depth",
			Help: "Current number of unconfirmed local check-ins",
		},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_request_duration_seconds",
			Help:    "Duration of calls against the remote authority",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"operation"},
	)

	ticketUses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_uses_total",
			Help: "Conditional mark-used attempts on the authority by result",
		},
		[]string{"result"},
	)
)

// TrackScan records the terminal outcome of one processed scan.
func TrackScan(status string) {
	scansTotal.WithLabelValues(status).Inc()
}

// TrackSync records the outcome of one pending-use sync attempt.
func TrackSync(outcome string) {
	syncOperations.WithLabelValues(outcome).Inc()
}

// SetPendingDepth publishes the current pending queue length.
func SetPendingDepth(n int) {
	pendingQueueDepth.Set(float64(n))
}

// TrackRemoteRequest records the duration of one authority call.
func TrackRemoteRequest(operation string, d time.Duration) {
	remoteRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// TrackTicketUse records a conditional mark-used result on the authority.
func TrackTicketUse(result string) {
	ticketUses.WithLabelValues(result).Inc()
}
