package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	StoreErrors    prometheus.Counter
	FallbackActive prometheus.Gauge
	TrackedClients prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpulse_ratelimit_decisions_total",
			Help: "Rate limit decisions by outcome",
		}, []string{"outcome"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "adpulse_ratelimit_store_errors_total",
			Help: "Errors returned by the primary rate limit store",
		}),
		FallbackActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "adpulse_ratelimit_fallback_active",
			Help: "1 while decisions are served by the in-memory fallback store",
		}),
		TrackedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "adpulse_ratelimit_tracked_clients",
			Help: "Clients with admissions inside the window after the last sweep",
		}),
	}
}

func (m *Metrics) RecordDecision(allowed bool) {
	if allowed {
		m.Decisions.WithLabelValues("admitted").Inc()
		return
	}
	m.Decisions.WithLabelValues("denied").Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}

func (m *Metrics) SetFallbackActive(active bool) {
	if active {
		m.FallbackActive.Set(1)
		return
	}
	m.FallbackActive.Set(0)
}

func (m *Metrics) SetTrackedClients(count int) {
	m.TrackedClients.Set(float64(count))
}
