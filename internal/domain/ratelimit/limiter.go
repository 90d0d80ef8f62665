package ratelimit

import "context"

// RateLimiter admits or rejects events identified by key.
type RateLimiter interface {
	// Allow records one event for key and reports whether it fits within
	// config. Rejected events are not recorded.
	Allow(ctx context.Context, key string, config Config) (Result, error)
}
