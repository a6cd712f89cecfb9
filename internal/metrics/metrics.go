// Package metrics holds the prometheus instrumentation for the giveaway
// service. All methods are safe on a nil receiver so components can be wired
// without metrics in tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the service's prometheus collectors.
type Metrics struct {
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	fetchErrors   prometheus.Counter
	staleServes   prometheus.Counter
	refreshes     *prometheus.CounterVec
	droppedEvents *prometheus.CounterVec
	subscribers   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giveaway_cache_hits_total",
			Help: "Queries answered from a fresh cached snapshot.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giveaway_cache_misses_total",
			Help: "Queries that had to wait for an upstream fetch.",
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giveaway_fetch_errors_total",
			Help: "Upstream fetch failures.",
		}),
		staleServes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giveaway_stale_serves_total",
			Help: "Requests served a stale snapshot after a fetch failure.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "giveaway_refreshes_total",
			Help: "Successful snapshot refreshes by cause.",
		}, []string{"cause"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "giveaway_events_dropped_total",
			Help: "Change events not delivered to a subscriber, by overflow policy.",
		}, []string{"policy"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "giveaway_stream_subscribers",
			Help: "Currently connected stream subscribers.",
		}),
	}

	reg.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.fetchErrors,
		m.staleServes,
		m.refreshes,
		m.droppedEvents,
		m.subscribers,
	)
	return m
}

func (m *Metrics) IncCacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) IncCacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) IncFetchError() {
	if m != nil {
		m.fetchErrors.Inc()
	}
}

func (m *Metrics) IncStaleServe() {
	if m != nil {
		m.staleServes.Inc()
	}
}

func (m *Metrics) IncRefresh(cause string) {
	if m != nil {
		m.refreshes.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) IncDroppedEvent(policy string) {
	if m != nil {
		m.droppedEvents.WithLabelValues(policy).Inc()
	}
}

func (m *Metrics) SetSubscribers(n int) {
	if m != nil {
		m.subscribers.Set(float64(n))
	}
}
