package requestlimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"adpulse/internal/ratelimit/metrics"
	"adpulse/internal/ratelimit/models"
	"adpulse/internal/ratelimit/store/bucket"
	dErrors "adpulse/pkg/domain-errors"
	"adpulse/pkg/platform/circuit"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// failingStore simulates an unreachable shared store.
type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) Allow(context.Context, string, int, time.Duration, time.Time) (*models.RateLimitResult, error) {
	f.calls++
	return nil, f.err
}

// flakyStore counts calls and delegates to an in-memory store while up.
type flakyStore struct {
	inner *bucket.InMemoryBucketStore
	down  bool
	calls int
}

func (f *flakyStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*models.RateLimitResult, error) {
	f.calls++
	if f.down {
		return nil, errors.New("connection refused")
	}
	return f.inner.Allow(ctx, key, limit, window, now)
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.metrics = metrics.New(prometheus.NewRegistry())
}

func (s *ServiceSuite) TestNewRequiresStore() {
	_, err := New(nil)
	s.ErrorContains(err, "buckets store is required")
}

func (s *ServiceSuite) TestAdmit() {
	svc, err := New(bucket.New(), WithLimit(5, time.Minute), WithLogger(s.logger), WithMetrics(s.metrics))
	s.Require().NoError(err)

	s.Run("five admitted, sixth denied", func() {
		for i := range 5 {
			result, err := svc.Admit(s.ctx, "203.0.113.7", t0.Add(time.Duration(i)*time.Second))
			s.Require().NoError(err)
			s.True(result.Allowed)
		}
		result, err := svc.Admit(s.ctx, "203.0.113.7", t0.Add(5*time.Second))
		s.Require().NoError(err)
		s.False(result.Allowed)
	})

	s.Run("admitted again once the window has passed", func() {
		result, err := svc.Admit(s.ctx, "203.0.113.7", t0.Add(time.Minute+time.Second))
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("clients are independent", func() {
		result, err := svc.Admit(s.ctx, "198.51.100.1", t0.Add(5*time.Second))
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Equal(float64(7), testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("admitted")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("denied")))
}

func (s *ServiceSuite) TestDefaults() {
	svc, err := New(bucket.New(), WithLimit(0, 0))
	s.Require().NoError(err)
	s.Equal(DefaultLimit, svc.Limit())
	s.Equal(DefaultWindow, svc.Window())
}

func (s *ServiceSuite) TestStoreFailureWithoutFallback() {
	svc, err := New(&failingStore{err: errors.New("connection refused")}, WithMetrics(s.metrics))
	s.Require().NoError(err)

	_, err = svc.Admit(s.ctx, "203.0.113.7", t0)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.StoreErrors))
}

func (s *ServiceSuite) TestFallbackWhileBreakerOpen() {
	primary := &failingStore{err: errors.New("connection refused")}
	svc, err := New(primary,
		WithLimit(2, time.Minute),
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithFallback(bucket.New(), circuit.New("test", circuit.WithFailureThreshold(2))),
	)
	s.Require().NoError(err)

	s.Run("failures below the threshold surface as errors", func() {
		_, err := svc.Admit(s.ctx, "203.0.113.7", t0)
		s.Error(err)
	})

	s.Run("open breaker serves degraded decisions", func() {
		result, err := svc.Admit(s.ctx, "203.0.113.7", t0)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.True(result.Degraded)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.FallbackActive))

		result, err = svc.Admit(s.ctx, "203.0.113.7", t0)
		s.Require().NoError(err)
		s.True(result.Allowed)

		result, err = svc.Admit(s.ctx, "203.0.113.7", t0)
		s.Require().NoError(err)
		s.False(result.Allowed, "fallback enforces the same limit")
	})
}

func (s *ServiceSuite) TestOpenBreakerRetriesPrimaryOnInterval() {
	primary := &flakyStore{inner: bucket.New(), down: true}
	svc, err := New(primary,
		WithLimit(10, time.Minute),
		WithMetrics(s.metrics),
		WithFallback(bucket.New(), circuit.New("test",
			circuit.WithFailureThreshold(1),
			circuit.WithSuccessThreshold(2),
			circuit.WithRetryInterval(time.Second),
		)),
	)
	s.Require().NoError(err)

	result, err := svc.Admit(s.ctx, "203.0.113.7", t0)
	s.Require().NoError(err)
	s.True(result.Degraded)
	s.Equal(1, primary.calls)

	primary.down = false

	s.Run("requests between retries skip the primary", func() {
		for range 3 {
			result, err := svc.Admit(s.ctx, "203.0.113.7", t0.Add(100*time.Millisecond))
			s.Require().NoError(err)
			s.True(result.Degraded)
		}
		s.Equal(1, primary.calls)
	})

	s.Run("one retry per interval until the breaker closes", func() {
		result, err := svc.Admit(s.ctx, "203.0.113.7", t0.Add(1100*time.Millisecond))
		s.Require().NoError(err)
		s.True(result.Degraded, "one success is below the threshold")
		s.Equal(2, primary.calls)

		_, err = svc.Admit(s.ctx, "203.0.113.7", t0.Add(1500*time.Millisecond))
		s.Require().NoError(err)
		s.Equal(2, primary.calls)

		result, err = svc.Admit(s.ctx, "203.0.113.7", t0.Add(2100*time.Millisecond))
		s.Require().NoError(err)
		s.False(result.Degraded)
		s.Equal(3, primary.calls)
		s.Equal(float64(0), testutil.ToFloat64(s.metrics.FallbackActive))
	})
}
