// Package metrics exposes the Prometheus collectors the daemon registers for
// queue depth, worker busy count, organize duration, move bytes, retry
// counts and batch progress (SPEC_FULL.md A.6). internal/adminhttp serves
// these at /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the daemon registers at startup.
type Registry struct {
	QueueDepth     prometheus.Gauge
	WorkerBusy     prometheus.Gauge
	OrganizeDurat  prometheus.Histogram
	MoveBytesTotal prometheus.Counter
	RetryTotal     *prometheus.CounterVec
	BatchProgress  *prometheus.GaugeVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediabutler",
			Name:      "queue_depth",
			Help:      "Number of jobs currently queued.",
		}),
		WorkerBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediabutler",
			Name:      "worker_busy_count",
			Help:      "Number of worker goroutines currently processing a job.",
		}),
		OrganizeDurat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mediabutler",
			Name:      "organize_duration_seconds",
			Help:      "Duration of Organizer.organize calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		MoveBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediabutler",
			Name:      "move_bytes_total",
			Help:      "Total bytes moved by FileMover across all organize calls.",
		}),
		RetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediabutler",
			Name:      "retry_total",
			Help:      "Total retries attempted, labeled by operation type.",
		}, []string{"operation"}),
		BatchProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mediabutler",
			Name:      "batch_progress",
			Help:      "Current batch progress counts, labeled by outcome.",
		}, []string{"batch_id", "outcome"}),
	}

	reg.MustRegister(
		m.QueueDepth, m.WorkerBusy, m.OrganizeDurat, m.MoveBytesTotal,
		m.RetryTotal, m.BatchProgress,
	)
	return m
}
