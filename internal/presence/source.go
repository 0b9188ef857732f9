package presence

import (
	"context"
	"time"
)

type lastSeenCache interface {
	GetLastSeen(ctx context.Context, userID string) (time.Time, error)
}

// CachedLastSeen reads last seen from redis and falls back to the user
// record in mongo on a miss. Both sources are written on disconnect, so
// the cache only trims latency, never correctness.
type CachedLastSeen struct {
	cache    lastSeenCache
	fallback LastSeenSource
}

func NewCachedLastSeen(cache lastSeenCache, fallback LastSeenSource) *CachedLastSeen {
	return &CachedLastSeen{cache: cache, fallback: fallback}
}

func (c *CachedLastSeen) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	if c.cache != nil {
		if t, err := c.cache.GetLastSeen(ctx, userID); err == nil && !t.IsZero() {
			return t, nil
		}
	}
	return c.fallback.LastSeen(ctx, userID)
}
