// Package sweep runs periodic expiry sweeps over the cache store.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/muandane/slugcache/internal/clock"
)

var (
	sweepsCounter  = metrics.GetOrCreateCounter("slugcache_sweeps_total")
	skippedCounter = metrics.GetOrCreateCounter("slugcache_sweeps_skipped_total")
	removedCounter = metrics.GetOrCreateCounter("slugcache_sweep_removed_total")
	sweepDuration  = metrics.GetOrCreateHistogram("slugcache_sweep_duration_seconds")
)

// Sweeper removes entries expired at now and reports how many it removed.
type Sweeper interface {
	Sweep(now time.Time) int
}

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

type Stats struct {
	State   string `json:"state"`
	Sweeps  uint64 `json:"sweeps"`
	Skipped uint64 `json:"skipped"`
	Removed uint64 `json:"removed"`
}

// Scheduler triggers a sweep every Interval. Sweeps never overlap: a tick
// that fires while a sweep is running is skipped rather than queued.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	inflight chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	loopDone  chan struct{}

	sweeps  atomic.Uint64
	skipped atomic.Uint64
	removed atomic.Uint64
}

func New(sweeper Sweeper, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		state:    Idle,
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start begins ticking. A non-positive interval disables the periodic loop;
// Trigger still works.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		if s.interval <= 0 {
			close(s.loopDone)
			s.logger.Info("periodic cache sweep disabled")
			return
		}
		go s.run()
	})
}

func (s *Scheduler) run() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Trigger()
		}
	}
}

// Trigger starts a sweep in the background unless one is already running
// or the scheduler is stopped. It reports whether a sweep was started.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		if state == Running {
			s.skipped.Add(1)
			skippedCounter.Inc()
			s.logger.Debug("sweep skipped, previous sweep still running")
		}
		return false
	}
	s.state = Running
	done := make(chan struct{})
	s.inflight = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sweep()

		s.mu.Lock()
		s.state = Idle
		s.mu.Unlock()
	}()
	return true
}

func (s *Scheduler) sweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cache sweep panicked", "panic", r)
		}
	}()

	start := time.Now()
	removed := s.sweeper.Sweep(s.clock.Now())
	sweepDuration.UpdateDuration(start)

	s.sweeps.Add(1)
	s.removed.Add(uint64(removed))
	sweepsCounter.Inc()
	removedCounter.Add(removed)

	s.logger.Debug("cache sweep completed",
		"removed", removed,
		"duration", time.Since(start).String(),
	)
}

// Stop halts the ticker and waits for an in-flight sweep to finish. The
// scheduler only enters Stopped from Idle.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.Start() // so loopDone is closed even if Start was never called

	select {
	case <-s.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		s.mu.Lock()
		if s.state != Running {
			s.state = Stopped
			s.mu.Unlock()
			return nil
		}
		inflight := s.inflight
		s.mu.Unlock()

		select {
		case <-inflight:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		State:   s.State().String(),
		Sweeps:  s.sweeps.Load(),
		Skipped: s.skipped.Load(),
		Removed: s.removed.Load(),
	}
}
