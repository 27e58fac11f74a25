// Package ports defines the store contract shared by the rate limiter and its
// fallback path.
package ports

import (
	"context"
	"time"

	"adpulse/internal/ratelimit/models"
)

// BucketStore manages sliding window admission records.
type BucketStore interface {
	// Allow admits one request at now when fewer than limit admissions fall
	// inside (now-window, now], recording now on admission.
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*models.RateLimitResult, error)
}
