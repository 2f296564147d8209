package domain

import (
	"context"
	"time"
)

// RateLimiter throttles requests per key.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the limit
	// of `limit` requests per `window`, counting the request if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
