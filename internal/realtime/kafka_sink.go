package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"adpulse/internal/tracking/models"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaSink forwards analytics messages from the hub to a Kafka topic.
// Records are keyed by slot. Production is asynchronous and best-effort.
type KafkaSink struct {
	hub      *Hub
	producer Producer
	topic    string
	logger   *slog.Logger
	metrics  *Metrics
}

type SinkOption func(*KafkaSink)

func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(k *KafkaSink) {
		k.logger = logger
	}
}

func WithSinkMetrics(m *Metrics) SinkOption {
	return func(k *KafkaSink) {
		k.metrics = m
	}
}

func NewKafkaSink(hub *Hub, producer Producer, topic string, opts ...SinkOption) (*KafkaSink, error) {
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	k := &KafkaSink{
		hub:      hub,
		producer: producer,
		topic:    topic,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Run subscribes to the hub and forwards until ctx is done or the hub
// closes. It returns nil on either.
func (k *KafkaSink) Run(ctx context.Context) error {
	sub := k.hub.Subscribe(KindSink)
	defer sub.Close()

	k.logger.InfoContext(ctx, "kafka sink started", "topic", k.topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			if msg.Topic != TopicAnalytics {
				continue
			}
			k.forward(ctx, msg)
		}
	}
}

func (k *KafkaSink) forward(ctx context.Context, msg Message) {
	event, ok := msg.Data.(models.AnalyticsMessage)
	if !ok {
		k.logger.WarnContext(ctx, "unexpected analytics payload", "type", fmt.Sprintf("%T", msg.Data))
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		k.fail(ctx, err)
		return
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.Slot),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(event.Event)},
		},
		Timestamp: event.Timestamp,
	}
	// Buffered records must survive Run's cancellation so shutdown can flush them.
	k.producer.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			k.fail(ctx, err)
		}
	})
}

func (k *KafkaSink) fail(ctx context.Context, err error) {
	if k.metrics != nil {
		k.metrics.IncrementSinkErrors()
	}
	k.logger.WarnContext(ctx, "failed to produce analytics record",
		"topic", k.topic,
		"error", err,
	)
}
