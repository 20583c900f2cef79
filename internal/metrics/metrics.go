// ABOUTME: Prometheus instrumentation for the reconciliation loop and push channel
// ABOUTME: Collectors live on a private registry exposed through Handler

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the sync engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	sends       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	panics      prometheus.Counter
	reconnects  prometheus.Counter
	connected   prometheus.Gauge
	queueDepth  prometheus.Gauge
	typists     prometheus.Gauge
	loadedPages *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_push_events_total",
			Help: "Push events applied by the reconciliation loop.",
		}, []string{"event"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_push_duplicates_total",
			Help: "Push frames dropped as duplicates.",
		}, []string{"event"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_sends_total",
			Help: "Message sends by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_failures_total",
			Help: "Operation failures by error kind.",
		}, []string{"kind"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_handler_panics_total",
			Help: "Recovered panics in loop handlers.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_push_connects_total",
			Help: "Successful push channel connections.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_push_connected",
			Help: "1 while the push channel is connected.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_loop_queue_depth",
			Help: "Pending items in the loop's inbound event queue.",
		}),
		typists: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_active_typists",
			Help: "Remote typists in the focused conversation.",
		}),
		loadedPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_history_pages_total",
			Help: "History pages merged, by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.events, m.duplicates, m.sends, m.failures, m.panics,
		m.reconnects, m.connected, m.queueDepth, m.typists, m.loadedPages,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// EventApplied counts one applied push event.
func (m *Metrics) EventApplied(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

// Duplicate counts a dropped duplicate frame.
func (m *Metrics) Duplicate(event string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(event).Inc()
}

// Connected marks the push channel as up.
func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
	m.connected.Set(1)
}

// Disconnected marks the push channel as down.
func (m *Metrics) Disconnected() {
	if m == nil {
		return
	}
	m.connected.Set(0)
}

// SendSettled counts a send by outcome ("ok", "rejected", "failed").
func (m *Metrics) SendSettled(outcome string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
}

// Failure counts an operation failure by taxonomy kind.
func (m *Metrics) Failure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

// Panic counts a recovered handler panic.
func (m *Metrics) Panic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}

// QueueDepth records the inbound queue length.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Typists records the number of active typists in the focused conversation.
func (m *Metrics) Typists(n int) {
	if m == nil {
		return
	}
	m.typists.Set(float64(n))
}

// PageLoaded counts a merged history page ("initial" or "older").
func (m *Metrics) PageLoaded(kind string) {
	if m == nil {
		return
	}
	m.loadedPages.WithLabelValues(kind).Inc()
}
