// Package monitor tracks inbound event rate and rendering cost so an
// operator can see an overloaded pipeline. It observes the stream and
// never blocks or throttles producers
package monitor

import (
	"slices"
	"sync"
	"time"

	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/util"
)

type (
	// Monitor accumulates pipeline health counters. All methods are safe
	// for concurrent use
	Monitor struct {
		clock       util.Clock
		metrics     *Metrics
		arrivals    []time.Time
		window      time.Duration
		nodes       int
		edges       int
		connections int
		queueDepth  int
		renderStart time.Time
		lastRender  time.Duration
		mu          sync.Mutex
	}

	// Stats is a point-in-time read of pipeline health. Reading resets
	// the render stopwatch
	Stats struct {
		EventRate   int
		Nodes       int
		Edges       int
		Connections int
		QueueDepth  int
		RenderTime  time.Duration
	}

	// Option adjusts a Monitor at construction
	Option func(*Monitor)
)

// rateWindow is the sliding window the event rate is measured over
const rateWindow = time.Second

// WithClock overrides the monitor's time source for tests
func WithClock(clock util.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithMetrics mirrors the monitor's counters to a metrics registry
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// NewMonitor creates a pipeline health monitor
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		clock:  time.Now,
		window: rateWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleEvent records one inbound stream event. Registered as a transport
// client handler alongside the frame manager
func (m *Monitor) HandleEvent(ev *api.Event) {
	m.mu.Lock()
	m.arrivals = append(m.arrivals, m.clock())
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
	}
}

// EventRate returns the number of events observed within the sliding
// window ending now
func (m *Monitor) EventRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	return len(m.arrivals)
}

// SetGraphCounts records the size of the flow graph being observed
func (m *Monitor) SetGraphCounts(nodes, edges int) {
	m.mu.Lock()
	m.nodes = nodes
	m.edges = edges
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.GraphNodes.Set(float64(nodes))
		m.metrics.GraphEdges.Set(float64(edges))
	}
}

// SetConnections records the transport server's subscriber count.
// Registered as the server's connection-change observer
func (m *Monitor) SetConnections(count int) {
	m.mu.Lock()
	m.connections = count
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Connections.Set(float64(count))
	}
}

// SetQueueDepth records the current depth of the consumer's event queue
func (m *Monitor) SetQueueDepth(depth int) {
	m.mu.Lock()
	m.queueDepth = depth
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.QueueDepth.Set(float64(depth))
	}
}

// StartRender marks the beginning of a rendering pass
func (m *Monitor) StartRender() {
	m.mu.Lock()
	m.renderStart = m.clock()
	m.mu.Unlock()
}

// EndRender marks the end of a rendering pass. A call without a matching
// StartRender is ignored
func (m *Monitor) EndRender() {
	m.mu.Lock()
	if m.renderStart.IsZero() {
		m.mu.Unlock()
		return
	}
	elapsed := m.clock().Sub(m.renderStart)
	m.renderStart = time.Time{}
	m.lastRender = elapsed
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RenderSeconds.Observe(elapsed.Seconds())
	}
}

// Read returns a snapshot of pipeline health and resets the render
// stopwatch
func (m *Monitor) Read() *Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()
	res := &Stats{
		EventRate:   len(m.arrivals),
		Nodes:       m.nodes,
		Edges:       m.edges,
		Connections: m.connections,
		QueueDepth:  m.queueDepth,
		RenderTime:  m.lastRender,
	}
	m.lastRender = 0
	return res
}

func (m *Monitor) pruneLocked() {
	cutoff := m.clock().Add(-m.window)
	idx := slices.IndexFunc(m.arrivals, func(at time.Time) bool {
		return at.After(cutoff)
	})
	if idx < 0 {
		m.arrivals = nil
		return
	}
	m.arrivals = m.arrivals[idx:]
}
