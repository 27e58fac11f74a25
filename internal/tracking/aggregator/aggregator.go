// Package aggregator keeps per-minute impression and click counters for the
// most recent minutes.
package aggregator

import (
	"slices"
	"sync"
	"time"

	"adpulse/internal/tracking/metrics"
	"adpulse/internal/tracking/models"
)

// DefaultCapacity is the number of minute buckets retained.
const DefaultCapacity = 60

// Aggregator is safe for concurrent use. One mutex guards the buckets and
// their ordered keys so an increment and any eviction it causes are atomic.
type Aggregator struct {
	mu       sync.Mutex
	buckets  map[int64]*models.MinuteBucket
	keys     []int64 // unix seconds of each minute, ascending
	capacity int
	metrics  *metrics.Metrics
}

type Option func(*Aggregator)

func WithCapacity(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.capacity = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		buckets:  make(map[int64]*models.MinuteBucket),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Increment counts one event in the bucket for the UTC minute containing ts
// and returns a copy of that bucket. Kinds other than impression and click
// are ignored. When the aggregator is full, a minute older than every
// retained bucket is dropped. ok is false whenever nothing was counted.
func (a *Aggregator) Increment(kind models.EventType, ts time.Time) (bucket models.MinuteBucket, ok bool) {
	if !kind.Counted() {
		return models.MinuteBucket{}, false
	}
	minute := ts.UTC().Truncate(time.Minute)
	key := minute.Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	b, exists := a.buckets[key]
	if !exists {
		if len(a.keys) >= a.capacity && key < a.keys[0] {
			return models.MinuteBucket{}, false
		}
		b = &models.MinuteBucket{Minute: minute}
		a.buckets[key] = b
		idx, _ := slices.BinarySearch(a.keys, key)
		a.keys = slices.Insert(a.keys, idx, key)
		a.evictLocked()
	}

	switch kind {
	case models.EventImpression:
		b.Impressions++
	case models.EventClick:
		b.Clicks++
	}
	return *b, true
}

func (a *Aggregator) evictLocked() {
	for len(a.keys) > a.capacity {
		delete(a.buckets, a.keys[0])
		a.keys = a.keys[1:]
	}
	if a.metrics != nil {
		a.metrics.SetAggregateBuckets(len(a.keys))
	}
}

// Snapshot returns copies of all retained buckets, oldest first.
func (a *Aggregator) Snapshot() []models.MinuteBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.MinuteBucket, 0, len(a.keys))
	for _, key := range a.keys {
		out = append(out, *a.buckets[key])
	}
	return out
}

// Latest returns the newest bucket, if any.
func (a *Aggregator) Latest() (models.MinuteBucket, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.keys) == 0 {
		return models.MinuteBucket{}, false
	}
	return *a.buckets[a.keys[len(a.keys)-1]], true
}

// Len returns the number of retained buckets.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}
