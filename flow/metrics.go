package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for engine execution. All metrics
// live under the "floweave" namespace:
//
//   - inflight_nodes (gauge): nodes currently executing
//   - ready_depth (gauge): size of the last computed ready set
//   - node_latency_ms (histogram): executor duration by node type and
//     status (success, error, timeout)
//   - node_retries_total (counter): retry attempts by node type
//   - runs_total (counter): finished runs by terminal status
//
// A nil *Metrics is valid and records nothing, so the engine never
// branches on whether metrics are configured.
//
// Expose the registry with promhttp:
//
//	registry := prometheus.NewRegistry()
//	metrics := flow.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	inflightNodes prometheus.Gauge
	readyDepth    prometheus.Gauge
	nodeLatency   *prometheus.HistogramVec
	nodeRetries   *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics. A nil registry
// uses the global default registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "floweave",
			Name:      "inflight_nodes",
			Help:      "Number of nodes currently executing",
		}),
		readyDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "floweave",
			Name:      "ready_depth",
			Help:      "Size of the most recently computed ready set",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floweave",
			Name:      "node_latency_ms",
			Help:      "Node executor duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_type", "status"}),
		nodeRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floweave",
			Name:      "node_retries_total",
			Help:      "Retry attempts after transient node failures",
		}, []string{"node_type"}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floweave",
			Name:      "runs_total",
			Help:      "Finished runs by terminal status",
		}, []string{"status"}),
	}
}

func (m *Metrics) nodeStarted() {
	if m == nil {
		return
	}
	m.inflightNodes.Inc()
}

func (m *Metrics) nodeFinished(nodeType NodeType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inflightNodes.Dec()
	m.nodeLatency.WithLabelValues(string(nodeType), status).
		Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) nodeRetried(nodeType NodeType) {
	if m == nil {
		return
	}
	m.nodeRetries.WithLabelValues(string(nodeType)).Inc()
}

func (m *Metrics) readySet(n int) {
	if m == nil {
		return
	}
	m.readyDepth.Set(float64(n))
}

func (m *Metrics) runFinished(status RunStatus) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(status)).Inc()
}
