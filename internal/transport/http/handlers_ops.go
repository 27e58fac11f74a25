package httptransport

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"adpulse/internal/optimization"
	"adpulse/pkg/platform/httputil"
	"adpulse/pkg/requestcontext"
)

const healthTimeout = 2 * time.Second

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

type RecommendationsResponse struct {
	TotalRevenue    decimal.Decimal               `json:"totalRevenue"`
	Recommendations []optimization.Recommendation `json:"recommendations"`
}

func (h *Handler) handleAggregates(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.aggregates.Snapshot())
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, RecommendationsResponse{
		TotalRevenue:    h.pricing.TotalRevenue(),
		Recommendations: h.pricing.Recommendations(),
	})
}

// handleHealth reports "ok" when every registered dependency answers.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Timestamp: requestcontext.Now(r.Context())}
	status := http.StatusOK
	for _, name := range slices.Sorted(maps.Keys(h.checks)) {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(h.checks))
		}
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}
