// Package middleware enforces the per-client request window on HTTP routes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"adpulse/internal/ratelimit/models"
	"adpulse/pkg/platform/httputil"
	"adpulse/pkg/platform/privacy"
	"adpulse/pkg/requestcontext"
)

// TooManyRequestsMessage is the body text of every 429 response.
const TooManyRequestsMessage = "Too many requests"

type RateLimiter interface {
	Admit(ctx context.Context, clientID string, now time.Time) (*models.RateLimitResult, error)
}

// KeyFunc derives the client identity a request is counted against.
type KeyFunc func(ctx context.Context) string

type Middleware struct {
	limiter  RateLimiter
	key      KeyFunc
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns the middleware into a pass-through for load tests.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithKeyFunc replaces the default client IP key.
func WithKeyFunc(fn KeyFunc) Option {
	return func(m *Middleware) {
		if fn != nil {
			m.key = fn
		}
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		key:     requestcontext.ClientIP,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit counts every request against its client window. A limiter error
// lets the request through.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.disabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			client := m.key(ctx)

			result, err := m.limiter.Admit(ctx, client, requestcontext.Now(ctx))
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed, admitting request",
					"error", err,
					"ip_prefix", privacy.AnonymizeIP(client),
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			setHeaders(w.Header(), result)
			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
				Error: TooManyRequestsMessage,
			})
		})
	}
}

func setHeaders(h http.Header, result *models.RateLimitResult) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.Degraded {
		h.Set("X-RateLimit-Status", "degraded")
	}
}
