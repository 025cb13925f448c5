// Package event defines the notifications emitted after a slug resolution.
package event

import (
	"context"
	"time"
)

type Kind string

const (
	// KindHit is a resolution served from the cache.
	KindHit Kind = "hit"
	// KindResolved is a resolution served by the origin after a cache miss.
	KindResolved Kind = "resolved"
	// KindMiss is a resolution that produced no destination.
	KindMiss Kind = "miss"
)

type Event struct {
	Slug      string    `json:"slug"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referer   string    `json:"referer,omitempty"`
}

// Sink receives events. Delivery is best effort: callers may drop or
// reorder events and never act on a returned error beyond counting it.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Record(ctx context.Context, e Event) error {
	return f(ctx, e)
}
