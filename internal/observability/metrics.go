// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Geyser subscription metrics
	GeyserFrames     prometheus.Counter
	GeyserPings      prometheus.Counter
	GeyserReconnects prometheus.Counter
	QueueDepth       prometheus.Gauge

	// Dispatch/parse metrics
	FramesDispatched prometheus.Counter
	ParseResults     *prometheus.CounterVec // outcome: published | skipped | error

	// Publish metrics
	EventsPublished prometheus.Counter
	PublishLatency  prometheus.Histogram

	// Oracle metrics
	OracleLatency prometheus.Histogram

	// WebSocket monitor metrics
	MonitorReconnects prometheus.Counter
	NewMintsDetected  prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wallet_tracker"
	}

	return &Metrics{
		GeyserFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geyser",
			Name:      "frames_received_total",
			Help:      "Total number of frames received from the geyser stream",
		}),
		GeyserPings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geyser",
			Name:      "pings_received_total",
			Help:      "Total number of server pings received",
		}),
		GeyserReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geyser",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "geyser",
			Name:      "queue_depth",
			Help:      "Current number of frames waiting in the bounded queue",
		}),
		FramesDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "frames_total",
			Help:      "Total number of frames drained from the queue",
		}),
		ParseResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "parse_results_total",
			Help:      "Parse outcomes by result (published, skipped, error)",
		}, []string{"outcome"}),
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "events_total",
			Help:      "Total number of events published to the message bus",
		}),
		PublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "latency_seconds",
			Help:      "Latency of publish calls",
			Buckets:   prometheus.DefBuckets,
		}),
		OracleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "latency_seconds",
			Help:      "Latency of price oracle lookups",
			Buckets:   prometheus.DefBuckets,
		}),
		MonitorReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "reconnects_total",
			Help:      "Total number of WebSocket monitor reconnect attempts",
		}),
		NewMintsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "new_mints_total",
			Help:      "Total number of new mint addresses pushed downstream",
		}),
	}
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
