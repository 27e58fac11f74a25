package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MinuteLayout renders a bucket key as an ISO timestamp truncated to the minute.
const MinuteLayout = "2006-01-02T15:04"

// MinuteBucket holds the counters for one UTC minute.
type MinuteBucket struct {
	Minute      time.Time
	Impressions int64
	Clicks      int64
}

type minuteBucketJSON struct {
	Minute      string `json:"minute"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks"`
}

func (b MinuteBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(minuteBucketJSON{
		Minute:      b.Minute.UTC().Format(MinuteLayout),
		Impressions: b.Impressions,
		Clicks:      b.Clicks,
	})
}

func (b *MinuteBucket) UnmarshalJSON(data []byte) error {
	var raw minuteBucketJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	minute, err := time.Parse(MinuteLayout, raw.Minute)
	if err != nil {
		return fmt.Errorf("parse bucket minute: %w", err)
	}
	*b = MinuteBucket{Minute: minute, Impressions: raw.Impressions, Clicks: raw.Clicks}
	return nil
}
