// Package dispatch forwards resolution events to a sink without ever
// blocking or failing the caller.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/muandane/slugcache/internal/event"
)

const (
	DefaultQueueSize   = 1024
	DefaultWorkers     = 2
	DefaultSinkTimeout = 5 * time.Second
)

var (
	deliveredCounter = metrics.GetOrCreateCounter("slugcache_events_delivered_total")
	failedCounter    = metrics.GetOrCreateCounter("slugcache_events_failed_total")
	droppedCounter   = metrics.GetOrCreateCounter("slugcache_events_dropped_total")
)

type Options struct {
	QueueSize   int
	Workers     int
	SinkTimeout time.Duration
	Logger      *slog.Logger
}

type Stats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

// Dispatcher owns a bounded queue drained by a fixed pool of workers.
// Notify never waits: when the queue is full or the dispatcher is stopped
// the event is dropped and counted.
type Dispatcher struct {
	sink        event.Sink
	queue       chan event.Event
	workers     int
	sinkTimeout time.Duration
	logger      *slog.Logger

	// mu guards closed and the close of queue against concurrent Notify.
	mu     sync.RWMutex
	closed bool
	start  sync.Once
	wg     sync.WaitGroup

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func New(sink event.Sink, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = DefaultSinkTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		sink:        sink,
		queue:       make(chan event.Event, opts.QueueSize),
		workers:     opts.Workers,
		sinkTimeout: opts.SinkTimeout,
		logger:      opts.Logger,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	})
}

// Notify hands e to the workers and returns immediately.
func (d *Dispatcher) Notify(e event.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(e, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- e:
	default:
		d.drop(e, "queue full")
	}
}

func (d *Dispatcher) drop(e event.Event, reason string) {
	d.dropped.Add(1)
	droppedCounter.Inc()
	d.logger.Debug("event dropped", "slug", e.Slug, "kind", e.Kind, "reason", reason)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for e := range d.queue {
		d.deliver(e)
	}
}

func (d *Dispatcher) deliver(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sinkTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			failedCounter.Inc()
			d.logger.Error("sink panicked", "slug", e.Slug, "kind", e.Kind, "panic", r)
		}
	}()

	if err := d.sink.Record(ctx, e); err != nil {
		d.failed.Add(1)
		failedCounter.Inc()
		d.logger.Debug("sink record failed", "slug", e.Slug, "kind", e.Kind, "error", err)
		return
	}
	d.delivered.Add(1)
	deliveredCounter.Inc()
}

// Stop refuses further events and waits until queued events are delivered
// or ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	// workers never started: nothing will drain the queue
	d.start.Do(func() {})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Queued:    len(d.queue),
	}
}
