package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/muandane/slugcache/internal/clock"
)

var (
	evictionsCounter   = metrics.GetOrCreateCounter("slugcache_cache_evictions_total")
	expirationsCounter = metrics.GetOrCreateCounter("slugcache_cache_expirations_total")
)

// Store maps slugs to destinations. It holds at most MaxEntries entries and
// evicts in insertion order; entries older than TTL are never returned.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	// order holds *CacheEntry, oldest insertion at the front.
	order *list.List

	maxEntries int
	ttl        time.Duration
	clock      clock.Clock

	evictions   uint64
	expirations uint64
	lastSweep   time.Time
}

func New(opts Options) (*Store, error) {
	if opts.MaxEntries <= 0 {
		return nil, fmt.Errorf("%w: max entries must be positive, got %d", ErrInvalidOptions, opts.MaxEntries)
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidOptions, opts.TTL)
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	return &Store{
		entries:    make(map[string]*list.Element, opts.MaxEntries),
		order:      list.New(),
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		clock:      opts.Clock,
	}, nil
}

// Get returns the destination for slug if a live entry exists.
func (s *Store) Get(slug string) (string, bool) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.entries[slug]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*CacheEntry)
	if !entry.live(now, s.ttl) {
		return "", false
	}
	return entry.Destination, true
}

// Put inserts or replaces the entry for slug. Replacing resets its age and
// makes it the most recently inserted; inserting a new slug into a full
// store first evicts the oldest insertion.
func (s *Store) Put(slug, destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if elem, ok := s.entries[slug]; ok {
		entry := elem.Value.(*CacheEntry)
		entry.Destination = destination
		entry.InsertedAt = now
		s.order.MoveToBack(elem)
		return
	}

	for len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}

	s.entries[slug] = s.order.PushBack(&CacheEntry{
		Slug:        slug,
		Destination: destination,
		InsertedAt:  now,
	})
}

func (s *Store) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	s.removeElement(front)
	s.evictions++
	evictionsCounter.Inc()
}

func (s *Store) removeElement(elem *list.Element) {
	entry := s.order.Remove(elem).(*CacheEntry)
	delete(s.entries, entry.Slug)
}

// Delete removes slug from the store and reports whether it was present.
func (s *Store) Delete(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[slug]
	if !ok {
		return false
	}
	s.removeElement(elem)
	return true
}

// Sweep removes every entry that is expired at now and returns how many
// were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		if !elem.Value.(*CacheEntry).live(now, s.ttl) {
			s.removeElement(elem)
			removed++
		}
		elem = next
	}

	s.expirations += uint64(removed)
	s.lastSweep = now
	expirationsCounter.Add(removed)
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}
