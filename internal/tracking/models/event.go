package models

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the kind of ad interaction being tracked.
type EventType string

const (
	EventImpression EventType = "impression"
	EventClick      EventType = "click"
	EventViewable   EventType = "viewable"
	EventLoaded     EventType = "loaded"
	EventExpand     EventType = "expand"
	EventClose      EventType = "close"
	EventSkip       EventType = "skip"
)

var allowedEventTypes = []EventType{
	EventImpression, EventClick, EventViewable, EventLoaded, EventExpand, EventClose, EventSkip,
}

// AllowedEventTypes lists accepted kinds in their canonical order.
func AllowedEventTypes() []EventType {
	return slices.Clone(allowedEventTypes)
}

// ParseEventType matches s case-insensitively against the allowed kinds.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(strings.ToLower(s))
	return t, t.IsValid()
}

func (t EventType) IsValid() bool {
	return slices.Contains(allowedEventTypes, t)
}

// Counted reports whether the per-minute aggregate tracks this kind.
func (t EventType) Counted() bool {
	return t == EventImpression || t == EventClick
}

func (t EventType) String() string {
	return string(t)
}

type Geo struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

type Device struct {
	Type    string `json:"type,omitempty"`
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TrackingEvent is one validated ad interaction. ID and Timestamp are
// assigned by the server.
type TrackingEvent struct {
	ID        int64
	Slot      string
	Type      EventType
	Format    string
	AdID      string
	Revenue   decimal.Decimal
	UserID    string
	SessionID string
	Geo       Geo
	Device    Device
	ABTestID  string
	Variant   string
	IP        string
	UserAgent string
	Referrer  string
	PageURL   string
	Viewport  *Viewport
	Metadata  map[string]any
	Timestamp time.Time
}

// ApplyClient copies request-derived metadata onto the event.
func (e *TrackingEvent) ApplyClient(client ClientInfo) {
	e.IP = client.IP
	e.UserAgent = client.UserAgent
	e.Referrer = client.Referrer
	e.Timestamp = client.ReceivedAt.UTC()
}

// ApplySession fills the session id and any geo or device descriptor the
// client did not supply.
func (e *TrackingEvent) ApplySession(s *Session) {
	if s == nil {
		return
	}
	e.SessionID = s.ID
	if e.Geo.Country == "" {
		e.Geo.Country = s.Country
	}
	if e.Device.Type == "" {
		e.Device.Type = s.DeviceType
	}
	if e.Device.Browser == "" {
		e.Device.Browser = s.Browser
	}
	if e.Device.OS == "" {
		e.Device.OS = s.OS
	}
}

// ClientInfo is the request-derived metadata shared by every event of one request.
type ClientInfo struct {
	IP            string
	UserAgent     string
	Referrer      string
	CountryHint   string
	SessionHeader string
	ReceivedAt    time.Time
}

// Session is the visitor session an event is attributed to. Created at most
// once per ID and never mutated afterwards.
type Session struct {
	ID          string
	Fingerprint string
	IP          string
	Country     string
	DeviceType  string
	Browser     string
	OS          string
	CreatedAt   time.Time
}

// AnalyticsMessage is the per-event real-time notification.
type AnalyticsMessage struct {
	Slot      string    `json:"slot"`
	Event     EventType `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}
