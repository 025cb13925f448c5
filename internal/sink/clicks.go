package sink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/muandane/slugcache/internal/event"
)

const DefaultClicksPrefix = "clicks:"

// Incrementer is the slice of the Redis client the click counter needs.
type Incrementer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Clicks counts redirects per slug in Redis. Cache hits never reach the
// url-service, so this is where clicks are accounted once the cache fronts it.
type Clicks struct {
	client Incrementer
	prefix string
}

func NewClicks(client Incrementer, prefix string) *Clicks {
	if prefix == "" {
		prefix = DefaultClicksPrefix
	}
	return &Clicks{client: client, prefix: prefix}
}

// Record increments {prefix}{slug} for hit and resolved events. Misses
// did not redirect and are ignored.
func (c *Clicks) Record(ctx context.Context, e event.Event) error {
	if e.Kind != event.KindHit && e.Kind != event.KindResolved {
		return nil
	}
	if err := c.client.Incr(ctx, c.prefix+e.Slug).Err(); err != nil {
		return fmt.Errorf("increment clicks for %q: %w", e.Slug, err)
	}
	return nil
}
