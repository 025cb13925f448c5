package cache

import "time"

type Stats struct {
	EntryCount    int           `json:"entry_count"`
	MaxEntries    int           `json:"max_entries"`
	TTL           time.Duration `json:"ttl_ns"`
	Evictions     uint64        `json:"evictions"`
	Expirations   uint64        `json:"expirations"`
	LastSweepTime time.Time     `json:"last_sweep_time"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		EntryCount:    len(s.entries),
		MaxEntries:    s.maxEntries,
		TTL:           s.ttl,
		Evictions:     s.evictions,
		Expirations:   s.expirations,
		LastSweepTime: s.lastSweep,
	}
}
