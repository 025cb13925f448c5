package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muandane/slugcache/internal/cache"
	"github.com/muandane/slugcache/internal/clock"
	"github.com/muandane/slugcache/internal/event"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeOrigin struct {
	mu    sync.Mutex
	urls  map[string]string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (o *fakeOrigin) Lookup(ctx context.Context, slug string) (string, error) {
	o.calls.Add(1)
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	dest, ok := o.urls[slug]
	if !ok {
		return "", fmt.Errorf("lookup %q: %w", slug, ErrNotFound)
	}
	return dest, nil
}

func (o *fakeOrigin) set(slug, dest string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.urls == nil {
		o.urls = make(map[string]string)
	}
	o.urls[slug] = dest
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event.Event
}

func (n *recordingNotifier) Notify(e event.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) kinds() []event.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]event.Kind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	resolver *Resolver
	store    *cache.Store
	origin   *fakeOrigin
	notifier *recordingNotifier
	clock    *clock.Manual
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	store, err := cache.New(cache.Options{MaxEntries: 100, TTL: time.Minute, Clock: clk})
	require.NoError(t, err)

	origin := &fakeOrigin{}
	notifier := &recordingNotifier{}
	opts.Clock = clk
	opts.Logger = discard
	r, err := New(store, origin, notifier, opts)
	require.NoError(t, err)

	return &fixture{resolver: r, store: store, origin: origin, notifier: notifier, clock: clk}
}

func TestResolveMissThenHit(t *testing.T) {
	f := newFixture(t, Options{})
	f.origin.set("abc", "https://example.com/abc")

	res := f.resolver.Resolve(context.Background(), "abc")
	assert.Equal(t, Found, res.Status)
	assert.Equal(t, "https://example.com/abc", res.Destination)
	assert.False(t, res.Cached)

	res = f.resolver.Resolve(context.Background(), "abc")
	assert.Equal(t, Found, res.Status)
	assert.True(t, res.Cached)

	assert.Equal(t, int32(1), f.origin.calls.Load())
	assert.Equal(t, []event.Kind{event.KindResolved, event.KindHit}, f.notifier.kinds())
	assert.Equal(t, Stats{Hits: 1, Resolved: 1}, f.resolver.Stats())
}

func TestResolveExpiredEntryRefetches(t *testing.T) {
	f := newFixture(t, Options{})
	f.origin.set("abc", "https://example.com/v1")

	require.Equal(t, Found, f.resolver.Resolve(context.Background(), "abc").Status)

	f.origin.set("abc", "https://example.com/v2")
	f.clock.Advance(time.Minute)

	res := f.resolver.Resolve(context.Background(), "abc")
	assert.Equal(t, "https://example.com/v2", res.Destination)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), f.origin.calls.Load())
}

func TestResolveInvalidSlug(t *testing.T) {
	f := newFixture(t, Options{})

	for _, slug := range []string{"", strings.Repeat("x", MaxSlugLength+1)} {
		res := f.resolver.Resolve(context.Background(), slug)
		assert.Equal(t, NotFound, res.Status)
	}

	assert.Equal(t, int32(0), f.origin.calls.Load())
	assert.Equal(t, []event.Kind{event.KindMiss, event.KindMiss}, f.notifier.kinds())
	assert.Equal(t, uint64(2), f.resolver.Stats().Rejected)
}

func TestResolveMaxLengthSlug(t *testing.T) {
	f := newFixture(t, Options{})
	slug := strings.Repeat("x", MaxSlugLength)
	f.origin.set(slug, "https://example.com/long")

	assert.Equal(t, Found, f.resolver.Resolve(context.Background(), slug).Status)
}

func TestNegativeResultsNotCached(t *testing.T) {
	f := newFixture(t, Options{})

	res := f.resolver.Resolve(context.Background(), "x")
	assert.Equal(t, NotFound, res.Status)

	f.origin.set("x", "https://example.com/x")
	res = f.resolver.Resolve(context.Background(), "x")
	assert.Equal(t, Found, res.Status)
	assert.Equal(t, "https://example.com/x", res.Destination)

	assert.Equal(t, []event.Kind{event.KindMiss, event.KindResolved}, f.notifier.kinds())
}

func TestOriginUnavailableNotCached(t *testing.T) {
	f := newFixture(t, Options{})
	f.origin.err = errors.New("connection refused")

	res := f.resolver.Resolve(context.Background(), "z")
	assert.Equal(t, OriginUnavailable, res.Status)
	assert.Error(t, res.Err)

	_, ok := f.store.Get("z")
	assert.False(t, ok)
	assert.Equal(t, []event.Kind{event.KindMiss}, f.notifier.kinds())
	assert.Equal(t, uint64(1), f.resolver.Stats().Unavailable)
}

func TestOriginTimeout(t *testing.T) {
	f := newFixture(t, Options{OriginTimeout: 10 * time.Millisecond})
	f.origin.set("slow", "https://example.com/slow")
	f.origin.delay = time.Second

	start := time.Now()
	res := f.resolver.Resolve(context.Background(), "slow")
	assert.Equal(t, OriginUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	_, ok := f.store.Get("slow")
	assert.False(t, ok)
}

func TestEmptyDestinationIsUnavailable(t *testing.T) {
	f := newFixture(t, Options{})
	f.origin.set("blank", "")

	assert.Equal(t, OriginUnavailable, f.resolver.Resolve(context.Background(), "blank").Status)
	assert.Equal(t, 0, f.store.Len())
}

func TestEventsCarryClient(t *testing.T) {
	f := newFixture(t, Options{})
	f.origin.set("abc", "https://example.com/abc")

	ctx := WithClient(context.Background(), Client{UserAgent: "curl/8.0", Referer: "https://ref.example"})
	f.resolver.Resolve(ctx, "abc")

	require.Len(t, f.notifier.events, 1)
	e := f.notifier.events[0]
	assert.Equal(t, "abc", e.Slug)
	assert.Equal(t, "curl/8.0", e.UserAgent)
	assert.Equal(t, "https://ref.example", e.Referer)
	assert.Equal(t, f.clock.Now(), e.Timestamp)
}

func TestSingleFlightSharesOriginCall(t *testing.T) {
	f := newFixture(t, Options{SingleFlight: true})
	f.origin.set("hot", "https://example.com/hot")
	f.origin.delay = 50 * time.Millisecond

	const callers = 10
	var wg sync.WaitGroup
	results := make([]Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.resolver.Resolve(context.Background(), "hot")
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, Found, res.Status)
		assert.Equal(t, "https://example.com/hot", res.Destination)
	}
	assert.Less(t, f.origin.calls.Load(), int32(callers))
}

func TestSingleFlightCallerCancellation(t *testing.T) {
	f := newFixture(t, Options{SingleFlight: true})
	f.origin.set("hot", "https://example.com/hot")
	f.origin.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.resolver.Resolve(ctx, "hot")
	assert.Equal(t, OriginUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestMissDoesNotBlockOtherSlugs(t *testing.T) {
	f := newFixture(t, Options{OriginTimeout: time.Second})
	f.store.Put("cached", "https://example.com/cached")
	f.origin.delay = 200 * time.Millisecond
	f.origin.set("slow", "https://example.com/slow")

	go f.resolver.Resolve(context.Background(), "slow")
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	res := f.resolver.Resolve(context.Background(), "cached")
	assert.Equal(t, Found, res.Status)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestValidSlug(t *testing.T) {
	assert.False(t, ValidSlug(""))
	assert.True(t, ValidSlug("a"))
	assert.True(t, ValidSlug(strings.Repeat("a", 50)))
	assert.False(t, ValidSlug(strings.Repeat("a", 51)))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, &fakeOrigin{}, nil, Options{})
	assert.Error(t, err)
}
