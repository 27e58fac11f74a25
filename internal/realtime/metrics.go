package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks fan-out health.
type Metrics struct {
	Subscribers *prometheus.GaugeVec
	Published   *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
	SinkErrors  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Subscribers currently attached to the hub, by kind",
		}, []string{"kind"}),
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpulse_realtime_published_total",
			Help: "Messages published to the hub, by topic",
		}, []string{"topic"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpulse_realtime_dropped_total",
			Help: "Messages dropped for a slow subscriber, by topic",
		}, []string{"topic"}),
		SinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "adpulse_kafka_sink_errors_total",
			Help: "Analytics records the Kafka sink failed to produce",
		}),
	}
}

func (m *Metrics) IncrementSubscribers(kind string) {
	m.Subscribers.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecrementSubscribers(kind string) {
	m.Subscribers.WithLabelValues(kind).Dec()
}

func (m *Metrics) IncrementPublished(topic string) {
	m.Published.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncrementDropped(topic string) {
	m.Dropped.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncrementSinkErrors() {
	m.SinkErrors.Inc()
}
