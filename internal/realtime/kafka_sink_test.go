package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"adpulse/internal/tracking/aggregator"
	"adpulse/internal/tracking/models"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	p.records = append(p.records, r)
	err := p.err
	p.mu.Unlock()
	promise(r, err)
}

func (p *fakeProducer) Records() []*kgo.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*kgo.Record(nil), p.records...)
}

type KafkaSinkSuite struct {
	suite.Suite
	hub      *Hub
	producer *fakeProducer
	metrics  *Metrics
	sink     *KafkaSink
	cancel   context.CancelFunc
	done     chan error
}

func TestKafkaSinkSuite(t *testing.T) {
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupTest() {
	s.hub = NewHub(aggregator.New())
	s.producer = &fakeProducer{}
	s.metrics = NewMetrics(prometheus.NewRegistry())

	sink, err := NewKafkaSink(s.hub, s.producer, "ad-events", WithSinkMetrics(s.metrics))
	s.Require().NoError(err)
	s.sink = sink
}

func (s *KafkaSinkSuite) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- s.sink.Run(ctx) }()
	s.Require().Eventually(func() bool { return s.hub.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func (s *KafkaSinkSuite) TearDownTest() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("sink did not stop")
	}
	s.cancel = nil
}

func (s *KafkaSinkSuite) TestNewKafkaSinkValidates() {
	_, err := NewKafkaSink(nil, s.producer, "t")
	s.ErrorContains(err, "hub is required")
	_, err = NewKafkaSink(s.hub, nil, "t")
	s.ErrorContains(err, "producer is required")
	_, err = NewKafkaSink(s.hub, s.producer, "")
	s.ErrorContains(err, "topic is required")
}

func (s *KafkaSinkSuite) TestForwardsOnlyAnalytics() {
	s.start()

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	s.hub.Publish(TopicAggregate, models.MinuteBucket{Minute: ts.Truncate(time.Minute)})
	s.hub.Publish(TopicAnalytics, models.AnalyticsMessage{Slot: "header", Event: models.EventClick, Timestamp: ts})

	s.Require().Eventually(func() bool { return len(s.producer.Records()) == 1 }, time.Second, 5*time.Millisecond)

	record := s.producer.Records()[0]
	s.Equal("ad-events", record.Topic)
	s.Equal("header", string(record.Key))
	s.JSONEq(`{"slot":"header","event":"click","timestamp":"2026-03-14T09:26:53Z"}`, string(record.Value))
	s.Equal([]kgo.RecordHeader{{Key: "event", Value: []byte("click")}}, record.Headers)
	s.Equal(ts, record.Timestamp)
}

func (s *KafkaSinkSuite) TestProduceFailureCounted() {
	s.producer.err = errors.New("broker unreachable")
	s.start()

	s.hub.Publish(TopicAnalytics, models.AnalyticsMessage{Slot: "header", Event: models.EventImpression})

	s.Eventually(func() bool {
		return promtest.ToFloat64(s.metrics.SinkErrors) == 1
	}, time.Second, 5*time.Millisecond)
}

func (s *KafkaSinkSuite) TestUnexpectedPayloadSkipped() {
	s.start()

	s.hub.Publish(TopicAnalytics, "not an analytics message")
	s.hub.Publish(TopicAnalytics, models.AnalyticsMessage{Slot: "footer", Event: models.EventImpression})

	s.Require().Eventually(func() bool { return len(s.producer.Records()) == 1 }, time.Second, 5*time.Millisecond)
	s.Equal("footer", string(s.producer.Records()[0].Key))
}

func (s *KafkaSinkSuite) TestStopsWhenHubCloses() {
	s.start()
	s.hub.Close()

	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("sink did not stop after hub close")
	}
	s.cancel()
	s.cancel = nil
}
