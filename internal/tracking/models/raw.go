package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RawEvent is an event as submitted by a client, before validation. Slot and
// Event stay raw so a present-but-non-string value can be told apart from a
// missing one.
type RawEvent struct {
	Slot      json.RawMessage  `json:"slot"`
	Event     json.RawMessage  `json:"event"`
	Format    string           `json:"format,omitempty"`
	AdID      string           `json:"adId,omitempty"`
	Revenue   *decimal.Decimal `json:"revenue,omitempty"`
	UserID    string           `json:"userId,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	Geo       *Geo             `json:"geo,omitempty"`
	Device    *Device          `json:"device,omitempty"`
	ABTestID  string           `json:"abTestId,omitempty"`
	Variant   string           `json:"variant,omitempty"`
	PageURL   string           `json:"pageUrl,omitempty"`
	Viewport  *Viewport        `json:"viewport,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`

	// Source is the item exactly as received, echoed back in batch errors.
	Source json.RawMessage `json:"-"`

	decodeErr error
}

// NewRawEvent builds a raw event from plain strings, as the pixel endpoint does.
func NewRawEvent(slot string, event EventType) RawEvent {
	s, _ := json.Marshal(slot)
	e, _ := json.Marshal(string(event))
	return RawEvent{Slot: s, Event: e}
}

// DecodeErr reports why the item could not be decoded as an event object.
func (r RawEvent) DecodeErr() error {
	return r.decodeErr
}

// DecodeRawEvents decodes batch items one by one. An item that is not a
// decodable event object is kept with its decode error so it fails
// validation on its own without aborting the batch.
func DecodeRawEvents(items []json.RawMessage) []RawEvent {
	events := make([]RawEvent, len(items))
	for i, item := range items {
		var ev RawEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			ev = RawEvent{decodeErr: err}
		}
		ev.Source = item
		events[i] = ev
	}
	return events
}
