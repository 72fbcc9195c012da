// Package cache is an advisory caching layer: every method degrades to a
// miss on error rather than failing the caller, matching the policy that no
// correctness in this system depends on a cache read succeeding.
package cache

import (
	"context"
	"time"
)

// Cache is the contract the rest of the codebase depends on. Both the Redis
// and in-process backends satisfy it identically.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Exists(ctx context.Context, key string) bool
	// Incr increments key by delta, creating it at delta if absent, and
	// returns the new value. Best-effort: a cache failure returns 0, false.
	Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, bool)
}
