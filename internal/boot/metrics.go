package boot

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed on /metrics: dispatch
// counts by task type and outcome, bridge call latency, and queue depth,
// per SPEC_FULL's domain-stack wiring for prometheus/client_golang.
type Metrics struct {
	DispatchTotal  *prometheus.CounterVec
	BridgeLatency  *prometheus.HistogramVec
	QueueDepth     prometheus.Gauge
	DebateSessions prometheus.Counter
}

// NewMetrics registers every collector against its own registry so tests
// can construct one without colliding with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskforge",
			Name:      "dispatch_total",
			Help:      "Total dispatch decisions, labelled by task_type and outcome.",
		}, []string{"task_type", "outcome"}),
		BridgeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskforge",
			Name:      "bridge_call_seconds",
			Help:      "Bridge Execute call latency in seconds, labelled by bridge.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"bridge"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskforge",
			Name:      "queue_depth",
			Help:      "Number of pending, dependency-satisfied tasks awaiting dispatch.",
		}),
		DebateSessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskforge",
			Name:      "debate_sessions_total",
			Help:      "Total debate sessions started.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
