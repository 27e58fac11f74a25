// Package httptransport exposes the tracking pipeline over HTTP. Handlers
// decode requests, build the client context and delegate to the ingest
// service; they hold no business rules.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"adpulse/internal/optimization"
	ratelimitModels "adpulse/internal/ratelimit/models"
	"adpulse/internal/tracking/models"
	"adpulse/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// IngestService runs the tracking pipeline.
type IngestService interface {
	Ingest(ctx context.Context, raw models.RawEvent, client models.ClientInfo) (*models.IngestResult, error)
	IngestBatch(ctx context.Context, raws []models.RawEvent, client models.ClientInfo) (*models.BatchResult, error)
}

// AggregateSource serves the current minute buckets.
type AggregateSource interface {
	Snapshot() []models.MinuteBucket
}

// Limiter admits pixel requests, which bypass the rate-limit middleware.
type Limiter interface {
	Admit(ctx context.Context, clientID string, now time.Time) (*ratelimitModels.RateLimitResult, error)
}

// RecommendationSource serves the pricing suggestions of the revenue tracker.
type RecommendationSource interface {
	Recommendations() []optimization.Recommendation
	TotalRevenue() decimal.Decimal
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the /api/track routes and the operational endpoints.
type Handler struct {
	ingest     IngestService
	aggregates AggregateSource
	limiter    Limiter
	realtime   http.Handler
	pricing    RecommendationSource
	checks     map[string]HealthCheck
	logger     *slog.Logger
}

type Option func(*Handler)

// WithPixelLimiter applies the client rate limit to pixel requests without
// ever failing them.
func WithPixelLimiter(l Limiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// WithRealtime serves the WebSocket channel at /ws.
func WithRealtime(ws http.Handler) Option {
	return func(h *Handler) {
		h.realtime = ws
	}
}

// WithRecommendations serves GET /api/track/recommendations.
func WithRecommendations(src RecommendationSource) Option {
	return func(h *Handler) {
		h.pricing = src
	}
}

// WithHealthCheck adds a named dependency to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func New(ingest IngestService, aggregates AggregateSource, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		ingest:     ingest,
		aggregates: aggregates,
		checks:     make(map[string]HealthCheck),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the tracking routes. limit wraps every route except the
// pixel, which never answers with anything but a GIF.
func (h *Handler) Register(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Route("/api/track", func(r chi.Router) {
		r.Get("/pixel", h.handlePixel)
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/", h.handleTrack)
			r.Post("/batch", h.handleBatch)
			r.Get("/aggregates", h.handleAggregates)
			if h.pricing != nil {
				r.Get("/recommendations", h.handleRecommendations)
			}
		})
	})
	r.Get("/health", h.handleHealth)
	if h.realtime != nil {
		r.Handle("/ws", h.realtime)
	}
}

func clientInfo(ctx context.Context) models.ClientInfo {
	return models.ClientInfo{
		IP:            requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgent(ctx),
		Referrer:      requestcontext.Referrer(ctx),
		CountryHint:   requestcontext.CountryHint(ctx),
		SessionHeader: requestcontext.SessionHint(ctx),
		ReceivedAt:    requestcontext.Now(ctx),
	}
}
