// Package ingest runs the tracking pipeline for single and batched events:
// validate, resolve session, persist, aggregate, publish.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"adpulse/internal/realtime"
	"adpulse/internal/tracking/metrics"
	"adpulse/internal/tracking/models"
	"adpulse/internal/tracking/validator"
	dErrors "adpulse/pkg/domain-errors"
	"adpulse/pkg/platform/async"
)

const (
	DefaultStoreTimeout   = 5 * time.Second
	DefaultTriggerTimeout = 10 * time.Second
	DefaultMaxBatchSize   = 100

	MsgPersistFailed = "Failed to save tracking data"
	MsgBatchEmpty    = "Events array is required and must not be empty"
)

var tracer = otel.Tracer("adpulse/tracking/ingest")

// EventStore is the append-only persistence collaborator.
type EventStore interface {
	// Append persists event and returns its server-assigned id.
	Append(ctx context.Context, event *models.TrackingEvent) (int64, error)
}

type SessionResolver interface {
	Resolve(ctx context.Context, client models.ClientInfo, supplied string) *models.Session
}

type Aggregator interface {
	Increment(kind models.EventType, ts time.Time) (models.MinuteBucket, bool)
}

// Publisher fans messages out to observers. Publish must not block.
type Publisher interface {
	Publish(topic string, payload any)
}

// RevenueTrigger is notified of every persisted event with positive revenue.
type RevenueTrigger interface {
	OnRevenue(ctx context.Context, event models.TrackingEvent) error
}

type discardPublisher struct{}

func (discardPublisher) Publish(string, any) {}

// Service is safe for concurrent use.
type Service struct {
	events     EventStore
	sessions   SessionResolver
	aggregator Aggregator
	publisher  Publisher
	// publishMu keeps aggregate pushes in the order their counts were taken.
	publishMu      sync.Mutex
	trigger        RevenueTrigger
	storeTimeout   time.Duration
	triggerTimeout time.Duration
	maxBatchSize   int
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithRevenueTrigger(t RevenueTrigger) Option {
	return func(s *Service) {
		s.trigger = t
	}
}

// WithStoreTimeout bounds each Append when the caller set no deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func WithTriggerTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.triggerTimeout = d
		}
	}
}

func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

func New(events EventStore, sessions SessionResolver, aggregator Aggregator, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session resolver is required")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	svc := &Service{
		events:         events,
		sessions:       sessions,
		aggregator:     aggregator,
		publisher:      discardPublisher{},
		storeTimeout:   DefaultStoreTimeout,
		triggerTimeout: DefaultTriggerTimeout,
		maxBatchSize:   DefaultMaxBatchSize,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// MaxBatchSize returns the largest accepted batch.
func (s *Service) MaxBatchSize() int {
	return s.maxBatchSize
}

// Ingest validates and persists one event. Validation failures return
// CodeValidation with nothing persisted, aggregated or published.
// Persistence failures return CodeInternal.
func (s *Service) Ingest(ctx context.Context, raw models.RawEvent, client models.ClientInfo) (*models.IngestResult, error) {
	event, err := s.ingest(ctx, raw, client)
	if err != nil {
		return nil, err
	}
	return &models.IngestResult{
		ID:        event.ID,
		SessionID: event.SessionID,
		Timestamp: event.Timestamp,
	}, nil
}

// IngestBatch processes items in order. A failing item is reported with its
// index and does not stop the rest. An empty or oversized batch is rejected
// with CodeBadRequest before any item is touched.
func (s *Service) IngestBatch(ctx context.Context, raws []models.RawEvent, client models.ClientInfo) (*models.BatchResult, error) {
	if len(raws) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, MsgBatchEmpty)
	}
	if len(raws) > s.maxBatchSize {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("Too many events. Maximum %d events per batch", s.maxBatchSize))
	}
	if s.metrics != nil {
		s.metrics.ObserveBatchSize(len(raws))
	}

	result := &models.BatchResult{
		Results:   make([]models.BatchItemResult, 0, len(raws)),
		Timestamp: client.ReceivedAt.UTC(),
	}
	for i, raw := range raws {
		event, err := s.ingest(ctx, raw, client)
		if err != nil {
			result.Errors = append(result.Errors, models.BatchItemError{
				Index: i,
				Error: dErrors.MessageOf(err),
				Event: sourceOf(raw),
			})
			continue
		}
		result.Results = append(result.Results, models.BatchItemResult{
			Index: i,
			ID:    event.ID,
			Slot:  event.Slot,
			Event: event.Type,
		})
	}

	s.logger.InfoContext(ctx, "batch processed",
		"processed", result.Processed(),
		"errors", result.ErrorCount(),
	)
	return result, nil
}

// aggregateAndPublish counts the event and pushes the updated bucket. Publish
// only enqueues, so holding publishMu across it is cheap.
func (s *Service) aggregateAndPublish(event *models.TrackingEvent) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	bucket, counted := s.aggregator.Increment(event.Type, event.Timestamp)
	s.publisher.Publish(realtime.TopicAnalytics, models.AnalyticsMessage{
		Slot:      event.Slot,
		Event:     event.Type,
		Timestamp: event.Timestamp,
	})
	if counted {
		s.publisher.Publish(realtime.TopicAggregate, bucket)
	}
}

func (s *Service) ingest(ctx context.Context, raw models.RawEvent, client models.ClientInfo) (*models.TrackingEvent, error) {
	ctx, span := tracer.Start(ctx, "tracking.Ingest")
	defer span.End()
	start := time.Now()

	event, err := validator.Validate(raw)
	if err != nil {
		s.reject(span, "validation", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("slot", event.Slot),
		attribute.String("event", event.Type.String()),
	)

	event.ApplyClient(client)
	event.ApplySession(s.sessions.Resolve(ctx, client, event.SessionID))

	id, err := s.append(ctx, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist tracking event",
			"error", err,
			"slot", event.Slot,
			"event", event.Type,
		)
		s.reject(span, "persistence", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, MsgPersistFailed)
	}
	event.ID = id
	span.SetAttributes(attribute.Int64("event.id", id))

	s.aggregateAndPublish(event)

	if s.trigger != nil && event.Revenue.IsPositive() {
		s.fireRevenueTrigger(ctx, *event)
	}

	if s.metrics != nil {
		s.metrics.IncrementIngested(event.Type.String())
		s.metrics.ObserveIngest(time.Since(start))
	}
	span.SetStatus(codes.Ok, "")
	s.logger.DebugContext(ctx, "tracking event stored",
		"id", id,
		"slot", event.Slot,
		"event", event.Type,
		"session_id", event.SessionID,
	)
	return event, nil
}

func (s *Service) append(ctx context.Context, event *models.TrackingEvent) (int64, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}
	return s.events.Append(ctx, event)
}

func (s *Service) fireRevenueTrigger(ctx context.Context, event models.TrackingEvent) {
	async.SafeGo(ctx, s.triggerTimeout, s.logger, "revenue trigger", func(ctx context.Context) error {
		return s.trigger.OnRevenue(ctx, event)
	}, func(error) {
		if s.metrics != nil {
			s.metrics.IncrementOptimizerFailures()
		}
	})
}

func (s *Service) reject(span trace.Span, reason string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	if s.metrics != nil {
		s.metrics.IncrementRejected(reason)
	}
}

// sourceOf returns the item as received, re-encoding it when it did not come
// from a decoded request body.
func sourceOf(raw models.RawEvent) json.RawMessage {
	if len(raw.Source) > 0 {
		return raw.Source
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
