package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the tracking pipeline metrics.
type Metrics struct {
	EventsIngested     *prometheus.CounterVec
	EventsRejected     *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	BatchSize          prometheus.Histogram
	SessionsCreated    prometheus.Counter
	SessionStoreErrors prometheus.Counter
	AggregateBuckets   prometheus.Gauge
	OptimizerFailures  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpulse_events_ingested_total",
			Help: "Events persisted, by event type",
		}, []string{"event"}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpulse_events_rejected_total",
			Help: "Events not persisted, by reason",
		}, []string{"reason"}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "adpulse_ingest_duration_seconds",
			Help:    "Time to validate, persist and publish one event",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "adpulse_batch_size",
			Help:    "Items per accepted batch request",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "adpulse_sessions_created_total",
			Help: "Sessions inserted for the first time",
		}),
		SessionStoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "adpulse_session_store_errors_total",
			Help: "Session upserts that failed and were skipped",
		}),
		AggregateBuckets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "adpulse_aggregate_buckets",
			Help: "Minute buckets currently retained by the aggregator",
		}),
		OptimizerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "adpulse_optimizer_failures_total",
			Help: "Revenue triggers that panicked or timed out",
		}),
	}
}

func (m *Metrics) IncrementIngested(event string) {
	m.EventsIngested.WithLabelValues(event).Inc()
}

func (m *Metrics) IncrementRejected(reason string) {
	m.EventsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveIngest(elapsed time.Duration) {
	m.IngestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveBatchSize(n int) {
	m.BatchSize.Observe(float64(n))
}

func (m *Metrics) IncrementSessionsCreated() {
	m.SessionsCreated.Inc()
}

func (m *Metrics) IncrementSessionStoreErrors() {
	m.SessionStoreErrors.Inc()
}

func (m *Metrics) SetAggregateBuckets(n int) {
	m.AggregateBuckets.Set(float64(n))
}

func (m *Metrics) IncrementOptimizerFailures() {
	m.OptimizerFailures.Inc()
}
