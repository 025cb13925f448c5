package cache

import (
	"errors"
	"time"

	"github.com/muandane/slugcache/internal/clock"
)

// CacheEntry is a cached slug resolution.
type CacheEntry struct {
	Slug        string
	Destination string
	InsertedAt  time.Time
}

// live reports whether the entry may still be served at now.
func (e *CacheEntry) live(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.InsertedAt) < ttl
}

// Cache configuration defaults
const (
	DefaultMaxEntries    = 10000
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 1 * time.Minute
)

var ErrInvalidOptions = errors.New("invalid cache options")

type Options struct {
	MaxEntries int
	TTL        time.Duration
	// Clock defaults to clock.System.
	Clock clock.Clock
}
