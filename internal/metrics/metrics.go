package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the engine.
type Metrics struct {
	ThoughtsSubmitted *prometheus.CounterVec
	ThoughtsCompleted prometheus.Counter
	ThoughtsFailed    prometheus.Counter
	ThoughtsDeferred  prometheus.Counter
	DispatchRetries   prometheus.Counter

	DispatchLatency prometheus.Histogram

	ProcessingNow prometheus.Gauge
	QueueDepth    prometheus.Gauge

	ArchivedByTier *prometheus.CounterVec
	UsageEvents    prometheus.Counter
	ProfileVersion prometheus.Gauge
}

var globalMetrics *Metrics

// Init initializes the Prometheus metrics. Call once at startup.
func Init() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}
	globalMetrics = &Metrics{
		ThoughtsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "subconscious_thoughts_submitted_total",
			Help: "Total number of thoughts submitted by priority tier",
		}, []string{"priority"}),

		ThoughtsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subconscious_thoughts_completed_total",
			Help: "Total number of thoughts completed successfully",
		}),

		ThoughtsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subconscious_thoughts_failed_total",
			Help: "Total number of thoughts that permanently failed",
		}),

		ThoughtsDeferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subconscious_thoughts_deferred_total",
			Help: "Total number of context-overflow deferrals",
		}),

		DispatchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subconscious_dispatch_retries_total",
			Help: "Total number of dispatch retries after transient failures",
		}),

		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "subconscious_dispatch_duration_seconds",
			Help:    "Model dispatch latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120}, // local models can be slow
		}),

		ProcessingNow: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "subconscious_thoughts_processing",
			Help: "Number of thoughts currently being processed",
		}),

		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "subconscious_queue_depth",
			Help: "Number of thoughts waiting in the queue",
		}),

		ArchivedByTier: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "subconscious_archived_total",
			Help: "Total number of archive records created by tier",
		}, []string{"tier"}),

		UsageEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subconscious_usage_events_total",
			Help: "Total number of recorded usage events",
		}),

		ProfileVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "subconscious_scoring_profile_version",
			Help: "Current version of the learned scoring profile",
		}),
	}
	return globalMetrics
}

// Get returns the global metrics instance, or nil before Init.
func Get() *Metrics {
	return globalMetrics
}
