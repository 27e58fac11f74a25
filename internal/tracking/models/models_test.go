package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	kind, ok := ParseEventType("Viewable")
	assert.True(t, ok)
	assert.Equal(t, EventViewable, kind)

	_, ok = ParseEventType("conversion")
	assert.False(t, ok)

	assert.True(t, EventImpression.Counted())
	assert.True(t, EventClick.Counted())
	assert.False(t, EventSkip.Counted())
}

func TestMinuteBucketJSON(t *testing.T) {
	bucket := MinuteBucket{Minute: time.Date(2026, 5, 4, 13, 7, 0, 0, time.UTC), Impressions: 12, Clicks: 3}

	data, err := json.Marshal(bucket)
	require.NoError(t, err)
	assert.JSONEq(t, `{"minute":"2026-05-04T13:07","impressions":12,"clicks":3}`, string(data))

	var decoded MinuteBucket
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, bucket, decoded)
}

func TestDecodeRawEventsKeepsSource(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"slot":"a","event":"click"}`),
		json.RawMessage(`"not an object"`),
	}

	events := DecodeRawEvents(items)

	require.Len(t, events, 2)
	assert.NoError(t, events[0].DecodeErr())
	assert.Equal(t, items[0], events[0].Source)
	assert.Error(t, events[1].DecodeErr())
	assert.Equal(t, items[1], events[1].Source)
}

func TestApplySessionKeepsClientValues(t *testing.T) {
	event := &TrackingEvent{Device: Device{Type: "tablet"}}

	event.ApplySession(&Session{ID: "s-1", Country: "FR", DeviceType: "desktop", Browser: "Firefox"})

	assert.Equal(t, "s-1", event.SessionID)
	assert.Equal(t, "FR", event.Geo.Country)
	assert.Equal(t, "tablet", event.Device.Type)
	assert.Equal(t, "Firefox", event.Device.Browser)
}
