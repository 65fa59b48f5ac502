package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "turnbot"

// Metrics holds the Prometheus collectors of the dispatch engine. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	updates            *prometheus.CounterVec
	routes             *prometheus.CounterVec
	sessions           prometheus.Gauge
	activeInvocations  prometheus.Gauge
	invocationDuration *prometheus.HistogramVec
	evictions          prometheus.Counter
	dropped            *prometheus.CounterVec
	fetchErrors        prometheus.Counter
}

// MustNewMetrics creates the collectors and registers them with reg. Registration
// errors panic, like the promauto helpers. Pass a fresh registry in tests.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_total",
			Help:      "Updates received, by normalized kind.",
		}, []string{"kind"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_total",
			Help:      "Dispatch decisions: enqueued to a running conversation or the entry point started.",
		}, []string{"route"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions",
			Help:      "Chat sessions held in memory.",
		}),
		activeInvocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_invocations",
			Help:      "Handler invocations currently running or suspended.",
		}),
		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "invocation_duration_seconds",
			Help:      "Lifetime of handler invocations.",
			Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300, 1800, 3600},
		}, []string{"entry", "outcome"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_evicted_total",
			Help:      "Idle sessions evicted from the registry.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_rejected_total",
			Help:      "Updates rejected by the inbound policy.",
		}, []string{"reason"}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_errors_total",
			Help:      "Transport errors while fetching updates.",
		}),
	}
	reg.MustRegister(
		m.updates, m.routes, m.sessions, m.activeInvocations,
		m.invocationDuration, m.evictions, m.dropped, m.fetchErrors,
	)
	return m
}

func (m *Metrics) observeUpdate(k Kind) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) observeRoute(route string) {
	if m == nil {
		return
	}
	m.routes.WithLabelValues(route).Inc()
}

func (m *Metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) invocationStarted() {
	if m == nil {
		return
	}
	m.activeInvocations.Inc()
}

func (m *Metrics) invocationDone(entry, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.activeInvocations.Dec()
	m.invocationDuration.WithLabelValues(entry, outcome).Observe(d.Seconds())
}

func (m *Metrics) sessionEvicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) updateRejected(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// FetchError counts a transport failure. It is meant to be wired to a receiver's
// error callback.
func (m *Metrics) FetchError() {
	if m == nil {
		return
	}
	m.fetchErrors.Inc()
}
