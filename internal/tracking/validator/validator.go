// Package validator turns client-submitted raw events into tracking events.
// It is pure: no I/O, no clock, no shared state.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"adpulse/internal/tracking/models"
	dErrors "adpulse/pkg/domain-errors"
)

const (
	MsgSlotRequired  = "Slot parameter is required and must be a string"
	MsgEventRequired = "Event parameter is required and must be a string"
	MsgInvalidEvent  = "Event must be one of: impression, click, viewable, loaded, expand, close, skip"
	MsgRevenue       = "Revenue must be a non-negative number"
	MsgViewport      = "Viewport dimensions must be between 0 and 2147483647"
	MsgPayload       = "Invalid event payload"
)

// Validate checks slot, event kind and the optional numeric fields and
// returns a TrackingEvent without server-assigned fields. Failures carry
// CodeValidation and a client-facing message.
func Validate(raw models.RawEvent) (*models.TrackingEvent, error) {
	if err := raw.DecodeErr(); err != nil {
		return nil, payloadError(raw.Source, err)
	}

	slot, ok := stringField(raw.Slot)
	if !ok || strings.TrimSpace(slot) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, MsgSlotRequired)
	}

	kind, ok := stringField(raw.Event)
	if !ok || kind == "" {
		return nil, dErrors.New(dErrors.CodeValidation, MsgEventRequired)
	}
	eventType, ok := models.ParseEventType(kind)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, MsgInvalidEvent)
	}

	revenue := decimal.Zero
	if raw.Revenue != nil {
		if raw.Revenue.IsNegative() {
			return nil, dErrors.New(dErrors.CodeValidation, MsgRevenue)
		}
		revenue = *raw.Revenue
	}

	var viewport *models.Viewport
	if raw.Viewport != nil {
		if !inViewportRange(raw.Viewport.Width) || !inViewportRange(raw.Viewport.Height) {
			return nil, dErrors.New(dErrors.CodeValidation, MsgViewport)
		}
		vp := *raw.Viewport
		viewport = &vp
	}

	event := &models.TrackingEvent{
		Slot:      slot,
		Type:      eventType,
		Format:    raw.Format,
		AdID:      raw.AdID,
		Revenue:   revenue,
		UserID:    raw.UserID,
		SessionID: strings.TrimSpace(raw.SessionID),
		ABTestID:  raw.ABTestID,
		Variant:   raw.Variant,
		PageURL:   raw.PageURL,
		Viewport:  viewport,
		Metadata:  maps.Clone(raw.Metadata),
	}
	if raw.Geo != nil {
		event.Geo = *raw.Geo
	}
	if raw.Device != nil {
		event.Device = *raw.Device
	}
	return event, nil
}

// stringField decodes v only if it is a JSON string.
func stringField(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || v[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// payloadError explains an undecodable item. Anything that is not an object
// has no slot, which is reported the same way a missing slot is.
func payloadError(source json.RawMessage, err error) error {
	source = bytes.TrimSpace(source)
	if len(source) == 0 || source[0] != '{' {
		return dErrors.New(dErrors.CodeValidation, MsgSlotRequired)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("Field %s has an invalid type", typeErr.Field))
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, MsgPayload)
}

// inViewportRange matches the INTEGER columns viewport dimensions are stored in.
func inViewportRange(v int) bool {
	return v >= 0 && int64(v) <= math.MaxInt32
}
