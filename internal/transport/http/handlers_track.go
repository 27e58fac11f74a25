package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"adpulse/internal/tracking/ingest"
	"adpulse/internal/tracking/models"
	"adpulse/internal/tracking/validator"
	dErrors "adpulse/pkg/domain-errors"
	"adpulse/pkg/platform/httputil"
	"adpulse/pkg/platform/privacy"
	"adpulse/pkg/requestcontext"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00,
	0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02,
	0x04, 0x01, 0x00, 0x3b,
}

type TrackResponse struct {
	Success   bool      `json:"success"`
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

type BatchRequest struct {
	Events []json.RawMessage `json:"events"`
}

type BatchResponse struct {
	Success    bool                     `json:"success"`
	Processed  int                      `json:"processed"`
	ErrorCount int                      `json:"error_count"`
	Results    []models.BatchItemResult `json:"results"`
	Errors     []models.BatchItemError  `json:"errors,omitempty"`
	Timestamp  time.Time                `json:"timestamp"`
}

func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read tracking request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, validator.MsgPayload))
		return
	}
	raw := models.DecodeRawEvents([]json.RawMessage{body})[0]

	result, err := h.ingest.Ingest(ctx, raw, clientInfo(ctx))
	if err != nil {
		h.logIngestError(r, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, TrackResponse{
		Success:   true,
		ID:        result.ID,
		SessionID: result.SessionID,
		Timestamp: result.Timestamp,
	})
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid batch request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, ingest.MsgBatchEmpty))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, validator.MsgPayload))
		return
	}

	result, err := h.ingest.IngestBatch(ctx, models.DecodeRawEvents(req.Events), clientInfo(ctx))
	if err != nil {
		h.logIngestError(r, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, BatchResponse{
		Success:    true,
		Processed:  result.Processed(),
		ErrorCount: result.ErrorCount(),
		Results:    result.Results,
		Errors:     result.Errors,
		Timestamp:  result.Timestamp,
	})
}

// handlePixel always answers with the GIF. Ingest runs behind a recover
// barrier and its failures are only logged.
func (h *Handler) handlePixel(w http.ResponseWriter, r *http.Request) {
	defer writePixel(w)
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.ErrorContext(r.Context(), "pixel tracking panicked",
				"panic", rec,
				"request_id", requestcontext.RequestID(r.Context()),
			)
		}
	}()
	h.trackPixel(r)
}

func (h *Handler) trackPixel(r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	slot := query.Get("slot")
	if slot == "" {
		return
	}

	client := clientInfo(ctx)
	if h.limiter != nil {
		result, err := h.limiter.Admit(ctx, client.IP, client.ReceivedAt)
		if err != nil {
			h.logger.WarnContext(ctx, "pixel rate limit check failed, tracking anyway", "error", err)
		} else if !result.Allowed {
			h.logger.InfoContext(ctx, "pixel rate limited",
				"ip_prefix", privacy.AnonymizeIP(client.IP),
				"retry_after", strconv.Itoa(result.RetryAfter),
			)
			return
		}
	}

	kind := models.EventType(query.Get("event"))
	if kind == "" {
		kind = models.EventImpression
	}
	raw := models.NewRawEvent(slot, kind)
	raw.SessionID = query.Get("sessionId")

	if _, err := h.ingest.Ingest(ctx, raw, client); err != nil {
		h.logIngestError(r, err)
	}
}

func writePixel(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Content-Type", "image/gif")
	header.Set("Content-Length", strconv.Itoa(len(transparentGIF)))
	header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}

func (h *Handler) logIngestError(r *http.Request, err error) {
	ctx := r.Context()
	attrs := []any{
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "tracking request failed", attrs...)
		return
	}
	h.logger.WarnContext(ctx, "tracking request rejected", attrs...)
}
