// Package resolver implements read-through slug resolution in front of an
// authoritative origin.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/sync/singleflight"

	"github.com/muandane/slugcache/internal/clock"
	"github.com/muandane/slugcache/internal/event"
)

const DefaultOriginTimeout = 2 * time.Second

var (
	hitsCounter        = metrics.GetOrCreateCounter("slugcache_cache_hits_total")
	missesCounter      = metrics.GetOrCreateCounter("slugcache_cache_misses_total")
	notFoundCounter    = metrics.GetOrCreateCounter("slugcache_origin_not_found_total")
	unavailableCounter = metrics.GetOrCreateCounter("slugcache_origin_unavailable_total")
	rejectedCounter    = metrics.GetOrCreateCounter("slugcache_invalid_slugs_total")
	originLatency      = metrics.GetOrCreateHistogram("slugcache_origin_lookup_seconds")
)

// Origin is the authoritative slug store. Lookup returns an error wrapping
// ErrNotFound when the slug does not exist.
type Origin interface {
	Lookup(ctx context.Context, slug string) (string, error)
}

// Cache is the store consulted before the origin.
type Cache interface {
	Get(slug string) (string, bool)
	Put(slug, destination string)
}

// Notifier receives resolution events. It must not block.
type Notifier interface {
	Notify(e event.Event)
}

type Options struct {
	OriginTimeout time.Duration
	// SingleFlight collapses concurrent origin lookups for the same slug
	// into one call.
	SingleFlight bool
	Clock        clock.Clock
	Logger       *slog.Logger
}

type Stats struct {
	Hits        uint64 `json:"hits"`
	Resolved    uint64 `json:"resolved"`
	NotFound    uint64 `json:"not_found"`
	Unavailable uint64 `json:"unavailable"`
	Rejected    uint64 `json:"rejected"`
}

type Resolver struct {
	cache    Cache
	origin   Origin
	notifier Notifier

	timeout time.Duration
	group   *singleflight.Group
	clock   clock.Clock
	logger  *slog.Logger

	hits        atomic.Uint64
	resolved    atomic.Uint64
	notFound    atomic.Uint64
	unavailable atomic.Uint64
	rejected    atomic.Uint64
}

func New(c Cache, origin Origin, notifier Notifier, opts Options) (*Resolver, error) {
	if c == nil || origin == nil {
		return nil, fmt.Errorf("resolver: cache and origin are required")
	}
	if opts.OriginTimeout <= 0 {
		opts.OriginTimeout = DefaultOriginTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if notifier == nil {
		notifier = discardNotifier{}
	}

	r := &Resolver{
		cache:    c,
		origin:   origin,
		notifier: notifier,
		timeout:  opts.OriginTimeout,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if opts.SingleFlight {
		r.group = &singleflight.Group{}
	}
	return r, nil
}

// Resolve maps slug to its destination, consulting the origin only when the
// cache has no live entry. Negative and failed lookups are never cached.
// Every path notifies: rejected slugs and origin failures report a miss.
func (r *Resolver) Resolve(ctx context.Context, slug string) Result {
	if !ValidSlug(slug) {
		r.rejected.Add(1)
		rejectedCounter.Inc()
		r.notify(ctx, slug, event.KindMiss)
		return Result{Status: NotFound}
	}

	if dest, ok := r.cache.Get(slug); ok {
		r.hits.Add(1)
		hitsCounter.Inc()
		r.notify(ctx, slug, event.KindHit)
		return Result{Status: Found, Destination: dest, Cached: true}
	}
	missesCounter.Inc()

	dest, err := r.lookup(ctx, slug)
	switch {
	case err == nil:
		r.cache.Put(slug, dest)
		r.resolved.Add(1)
		r.notify(ctx, slug, event.KindResolved)
		return Result{Status: Found, Destination: dest}

	case errors.Is(err, ErrNotFound):
		r.notFound.Add(1)
		notFoundCounter.Inc()
		r.notify(ctx, slug, event.KindMiss)
		return Result{Status: NotFound}

	default:
		r.unavailable.Add(1)
		unavailableCounter.Inc()
		r.logger.Warn("origin lookup failed", "slug", slug, "error", err)
		r.notify(ctx, slug, event.KindMiss)
		return Result{Status: OriginUnavailable, Err: err}
	}
}

func (r *Resolver) lookup(ctx context.Context, slug string) (string, error) {
	if r.group == nil {
		return r.lookupOrigin(ctx, slug)
	}

	// The shared call must outlive any one waiter's cancellation; it is
	// still bounded by the origin timeout.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(slug, func() (interface{}, error) {
		return r.lookupOrigin(shared, slug)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for origin: %w", ctx.Err())
	}
}

func (r *Resolver) lookupOrigin(ctx context.Context, slug string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	dest, err := r.origin.Lookup(ctx, slug)
	originLatency.UpdateDuration(start)
	if err != nil {
		return "", err
	}
	if dest == "" {
		return "", fmt.Errorf("origin returned empty destination for %q", slug)
	}
	return dest, nil
}

func (r *Resolver) notify(ctx context.Context, slug string, kind event.Kind) {
	client := ClientFrom(ctx)
	r.notifier.Notify(event.Event{
		Slug:      slug,
		Kind:      kind,
		Timestamp: r.clock.Now(),
		UserAgent: client.UserAgent,
		Referer:   client.Referer,
	})
}

func (r *Resolver) Stats() Stats {
	return Stats{
		Hits:        r.hits.Load(),
		Resolved:    r.resolved.Load(),
		NotFound:    r.notFound.Load(),
		Unavailable: r.unavailable.Load(),
		Rejected:    r.rejected.Load(),
	}
}

type discardNotifier struct{}

func (discardNotifier) Notify(event.Event) {}
