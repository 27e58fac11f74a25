package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"adpulse/internal/ratelimit/models"
	"adpulse/pkg/requestcontext"
)

type stubLimiter struct {
	result   *models.RateLimitResult
	err      error
	clientID string
}

func (s *stubLimiter) Admit(_ context.Context, clientID string, _ time.Time) (*models.RateLimitResult, error) {
	s.clientID = clientID
	return s.result, s.err
}

type RateLimitMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
	next   http.Handler
	called bool
}

func TestRateLimitMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(RateLimitMiddlewareSuite))
}

func (s *RateLimitMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.called = false
	s.next = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.called = true
		w.WriteHeader(http.StatusOK)
	})
}

func (s *RateLimitMiddlewareSuite) serve(limiter RateLimiter, opts ...Option) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/track", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "203.0.113.7", "test-agent"))
	rr := httptest.NewRecorder()
	New(limiter, s.logger, opts...).RateLimit()(s.next).ServeHTTP(rr, req)
	return rr
}

func (s *RateLimitMiddlewareSuite) TestAllowed() {
	limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: true, Limit: 100, Remaining: 99, ResetAt: time.Unix(1700000060, 0)}}

	rr := s.serve(limiter)

	s.True(s.called)
	s.Equal("203.0.113.7", limiter.clientID)
	s.Equal("100", rr.Header().Get("X-RateLimit-Limit"))
	s.Equal("99", rr.Header().Get("X-RateLimit-Remaining"))
	s.Equal("1700000060", rr.Header().Get("X-RateLimit-Reset"))
	s.Empty(rr.Header().Get("X-RateLimit-Status"))
}

func (s *RateLimitMiddlewareSuite) TestDenied() {
	limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: false, Limit: 100, RetryAfter: 42, ResetAt: time.Unix(1700000060, 0)}}

	rr := s.serve(limiter)

	s.False(s.called)
	s.Equal(http.StatusTooManyRequests, rr.Code)
	s.JSONEq(`{"error":"Too many requests"}`, rr.Body.String())
	s.Equal("42", rr.Header().Get("Retry-After"))
	s.Equal("0", rr.Header().Get("X-RateLimit-Remaining"))
}

func (s *RateLimitMiddlewareSuite) TestDegradedHeader() {
	limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: true, Limit: 100, Remaining: 10, Degraded: true}}

	rr := s.serve(limiter)

	s.True(s.called)
	s.Equal("degraded", rr.Header().Get("X-RateLimit-Status"))
}

func (s *RateLimitMiddlewareSuite) TestStoreErrorFailsOpen() {
	rr := s.serve(&stubLimiter{err: errors.New("redis down")})

	s.True(s.called)
	s.Equal(http.StatusOK, rr.Code)
}

func (s *RateLimitMiddlewareSuite) TestDisabled() {
	limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: false}}

	rr := s.serve(limiter, WithDisabled(true))

	s.True(s.called)
	s.Equal(http.StatusOK, rr.Code)
	s.Empty(limiter.clientID)
}

func (s *RateLimitMiddlewareSuite) TestKeyFunc() {
	limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: true, Limit: 100}}

	s.serve(limiter, WithKeyFunc(func(context.Context) string { return "publisher-7" }))

	s.True(s.called)
	s.Equal("publisher-7", limiter.clientID)
}
