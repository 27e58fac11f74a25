package bucket

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"adpulse/internal/ratelimit/models"
)

const shardCount = 32

// InMemoryBucketStore implements BucketStore with a sliding window per key.
// Keys are spread over shards so unrelated clients never contend on one lock.
// Not shared across processes; use RedisBucketStore for that.
type InMemoryBucketStore struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

// slidingWindow holds admission timestamps in a fixed-capacity ring, oldest
// at head. Capacity equals the limit, so a full ring means the client is at
// its limit and pruning only ever advances head.
type slidingWindow struct {
	ring   []time.Time
	head   int
	size   int
	window time.Duration
}

// New creates an empty in-memory bucket store.
func New() *InMemoryBucketStore {
	s := &InMemoryBucketStore{}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]*slidingWindow)}
	}
	return s
}

// Allow prunes entries at or beyond the window edge and admits the request
// when fewer than limit admissions remain inside it.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (*models.RateLimitResult, error) {
	if limit <= 0 {
		resetAt := now.Add(window)
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    resetAt,
			RetryAfter: models.RetryAfterSeconds(now, resetAt),
		}, nil
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sw := sh.windows[key]
	if sw == nil {
		sw = &slidingWindow{ring: make([]time.Time, limit), window: window}
		sh.windows[key] = sw
	}
	sw.window = window
	sw.resize(limit)
	sw.prune(now)

	if sw.size < limit {
		sw.push(now)
		return &models.RateLimitResult{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - sw.size,
			ResetAt:   sw.oldest().Add(window),
		}, nil
	}

	resetAt := sw.oldest().Add(window)
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: models.RetryAfterSeconds(now, resetAt),
	}, nil
}

// Sweep prunes every window and forgets keys that no longer hold admissions.
// Returns the number of keys still tracked.
func (s *InMemoryBucketStore) Sweep(now time.Time) int {
	tracked := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, sw := range sh.windows {
			sw.prune(now)
			if sw.size == 0 {
				delete(sh.windows, key)
			}
		}
		tracked += len(sh.windows)
		sh.mu.Unlock()
	}
	return tracked
}

// StartCleanup sweeps idle keys every interval until ctx is done.
// onSweep, when non-nil, receives the tracked key count after each pass.
func (s *InMemoryBucketStore) StartCleanup(ctx context.Context, interval time.Duration, onSweep func(tracked int)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			tracked := s.Sweep(now)
			if onSweep != nil {
				onSweep(tracked)
			}
		}
	}
}

func (s *InMemoryBucketStore) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%shardCount]
}

func (sw *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	for sw.size > 0 && !sw.ring[sw.head].After(cutoff) {
		sw.ring[sw.head] = time.Time{}
		sw.head = (sw.head + 1) % len(sw.ring)
		sw.size--
	}
}

func (sw *slidingWindow) push(t time.Time) {
	sw.ring[(sw.head+sw.size)%len(sw.ring)] = t
	sw.size++
}

func (sw *slidingWindow) oldest() time.Time {
	return sw.ring[sw.head]
}

// resize changes capacity when the configured limit changes, keeping the
// newest admissions.
func (sw *slidingWindow) resize(limit int) {
	if len(sw.ring) == limit {
		return
	}
	keep := min(sw.size, limit)
	ring := make([]time.Time, limit)
	skip := sw.size - keep
	for i := range keep {
		ring[i] = sw.ring[(sw.head+skip+i)%len(sw.ring)]
	}
	sw.ring, sw.head, sw.size = ring, 0, keep
}
