package monitor

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the monitor's counters exported through a prometheus
// registry
type Metrics struct {
	EventsTotal   *prometheus.CounterVec
	Connections   prometheus.Gauge
	QueueDepth    prometheus.Gauge
	GraphNodes    prometheus.Gauge
	GraphEdges    prometheus.Gauge
	RenderSeconds prometheus.Histogram
}

// NewMetrics creates and registers the monitor's metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowlens_events_total",
				Help: "Observability events received, by event type",
			},
			[]string{"type"},
		),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowlens_connections",
			Help: "Active websocket subscribers",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowlens_queue_depth",
			Help: "Consumer event queue depth",
		}),
		GraphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowlens_graph_nodes",
			Help: "Nodes in the observed flow graph",
		}),
		GraphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowlens_graph_edges",
			Help: "Edges in the observed flow graph",
		}),
		RenderSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowlens_render_seconds",
			Help:    "Rendering pass duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.EventsTotal, m.Connections, m.QueueDepth,
		m.GraphNodes, m.GraphEdges, m.RenderSeconds,
	)
	return m
}
