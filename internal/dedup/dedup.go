// Package dedup provides a best-effort duplicate filter for webhook status
// events. The monotonic merge already makes duplicates harmless; this cache
// only sheds the redundant store work the provider's retry storms would
// otherwise cause.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache remembers recently seen event keys in Redis. A nil client disables
// deduplication entirely; Redis errors fail open so a cache outage never
// drops events.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// New creates a dedup cache. client may be nil to disable deduplication.
func New(client *redis.Client, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, log: log}
}

// Seen reports whether the key was recently recorded.
func (c *Cache) Seen(ctx context.Context, key string) bool {
	if c == nil || c.client == nil {
		return false
	}

	n, err := c.client.Exists(ctx, "webhook:event:"+key).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("dedup cache unavailable, processing event anyway")
		return false
	}

	return n > 0
}

// Mark records the key so later duplicates can be shed. Callers mark only
// after the event has actually been applied; marking earlier would let a
// failed apply suppress the provider's retry of the same event.
func (c *Cache) Mark(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Set(ctx, "webhook:event:"+key, 1, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("dedup cache unavailable, event not recorded")
	}
}
