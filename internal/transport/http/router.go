package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adpulse/internal/platform/metrics"
	"adpulse/internal/platform/middleware"
	"adpulse/pkg/platform/httputil"
	"adpulse/pkg/platform/middleware/metadata"
	"adpulse/pkg/platform/middleware/requesttime"
)

// RouterConfig carries what NewRouter needs beyond the handler.
type RouterConfig struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	RateLimit  func(http.Handler) http.Handler
	CORSOrigin string
	// TrustedProxies are peers whose X-Forwarded-For and X-Real-IP are believed.
	// Empty means the client is always the TCP peer.
	TrustedProxies []netip.Prefix
}

// NewRouter builds the chi router with the shared middleware chain.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata(cfg.TrustedProxies))
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Latency(cfg.Metrics))
	}
	r.Use(middleware.CORS(cfg.CORSOrigin))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, httputil.ErrorResponse{Error: "Method not allowed"})
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	h.Register(r, cfg.RateLimit)
	return r
}
