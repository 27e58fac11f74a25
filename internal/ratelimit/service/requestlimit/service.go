package requestlimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"adpulse/internal/ratelimit/metrics"
	"adpulse/internal/ratelimit/models"
	"adpulse/internal/ratelimit/ports"
	dErrors "adpulse/pkg/domain-errors"
	"adpulse/pkg/platform/circuit"
	"adpulse/pkg/platform/privacy"
)

// BucketStore is re-exported so callers need not import ports.
type BucketStore = ports.BucketStore

const (
	DefaultLimit  = 100
	DefaultWindow = time.Minute
)

// Service decides admission for one client identity per request.
type Service struct {
	buckets  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

// WithLimit sets the admissions allowed per window.
func WithLimit(limit int, window time.Duration) Option {
	return func(s *Service) {
		if limit > 0 {
			s.limit = limit
		}
		if window > 0 {
			s.window = window
		}
	}
}

// WithFallback serves decisions from fallback while breaker is open.
func WithFallback(fallback BucketStore, breaker *circuit.Breaker) Option {
	return func(s *Service) {
		s.fallback = fallback
		s.breaker = breaker
	}
}

func New(buckets BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}

	svc := &Service{
		buckets: buckets,
		limit:   DefaultLimit,
		window:  DefaultWindow,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.fallback != nil && svc.breaker == nil {
		svc.breaker = circuit.New("ratelimit")
	}
	return svc, nil
}

// Limit returns the configured admissions per window.
func (s *Service) Limit() int {
	return s.limit
}

// Window returns the configured window length.
func (s *Service) Window() time.Duration {
	return s.window
}

// Admit decides whether clientID may make a request at now. Errors mean the
// store could not decide; callers fail open.
func (s *Service) Admit(ctx context.Context, clientID string, now time.Time) (*models.RateLimitResult, error) {
	key := models.NewClientKey(clientID)

	// An open breaker keeps requests off the primary between retries so each
	// admission is counted in one store.
	if s.breaker != nil && !s.breaker.AllowPrimary(now) {
		result, err := s.allowFallback(ctx, key, now)
		if err != nil {
			return nil, err
		}
		s.record(ctx, clientID, result)
		return result, nil
	}

	result, err := s.buckets.Allow(ctx, key, s.limit, s.window, now)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementStoreErrors()
		}
		return s.onPrimaryFailure(ctx, key, clientID, now, err)
	}

	if s.breaker != nil {
		usePrimary, change := s.breaker.RecordSuccess()
		if change.Closed {
			s.logger.InfoContext(ctx, "rate limit store recovered, leaving fallback", "breaker", s.breaker.Name())
			if s.metrics != nil {
				s.metrics.SetFallbackActive(false)
			}
		}
		if !usePrimary {
			if result, err = s.allowFallback(ctx, key, now); err != nil {
				return nil, err
			}
		}
	}

	s.record(ctx, clientID, result)
	return result, nil
}

func (s *Service) onPrimaryFailure(ctx context.Context, key, clientID string, now time.Time, cause error) (*models.RateLimitResult, error) {
	if s.breaker == nil {
		return nil, dErrors.Wrap(cause, dErrors.CodeUnavailable, "failed to check rate limit")
	}

	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "rate limit store failing, switching to fallback",
			"breaker", s.breaker.Name(),
			"error", cause,
		)
		if s.metrics != nil {
			s.metrics.SetFallbackActive(true)
		}
	}
	if !useFallback {
		return nil, dErrors.Wrap(cause, dErrors.CodeUnavailable, "failed to check rate limit")
	}

	result, err := s.allowFallback(ctx, key, now)
	if err != nil {
		return nil, err
	}
	s.record(ctx, clientID, result)
	return result, nil
}

func (s *Service) allowFallback(ctx context.Context, key string, now time.Time) (*models.RateLimitResult, error) {
	result, err := s.fallback.Allow(ctx, key, s.limit, s.window, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check fallback rate limit")
	}
	result.Degraded = true
	return result, nil
}

func (s *Service) record(ctx context.Context, clientID string, result *models.RateLimitResult) {
	if s.metrics != nil {
		s.metrics.RecordDecision(result.Allowed)
	}
	if !result.Allowed {
		s.logger.InfoContext(ctx, "client rate limit exceeded",
			"client", privacy.AnonymizeIP(clientID),
			"limit", s.limit,
			"window_seconds", int(s.window.Seconds()),
		)
	}
}
