package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/slacker/internal/domain"
)

// Processor runs one message to completion.
type Processor interface {
	Process(ctx context.Context, m *domain.InboundMessage) Outcome
}

// Dispatcher runs a Processor on a fixed pool of workers fed by a bounded
// queue. Submit never blocks; a full queue is reported as ErrQueueFull.
type Dispatcher struct {
	proc    Processor
	workers int
	queue   chan *domain.InboundMessage

	mu      sync.RWMutex
	stopped bool
	started bool
	g       errgroup.Group

	// OnDone, when set, observes every finished run (tests, metrics hooks).
	OnDone func(Outcome)
}

// NewDispatcher sizes the pool. Values below 1 are raised to 1.
func NewDispatcher(p Processor, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		proc:    p,
		workers: workers,
		queue:   make(chan *domain.InboundMessage, queueSize),
	}
}

// Start launches the workers. Runs inherit ctx values but not its
// cancellation: a dispatched run always finishes. Calling Start twice is a
// no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		worker := i
		d.g.Go(func() error {
			for m := range d.queue {
				queueDepth.Dec()
				d.run(runCtx, worker, m)
			}
			return nil
		})
	}
	log.Info().Int("workers", d.workers).Int("queue_size", cap(d.queue)).Msg("dispatcher started")
}

// Submit enqueues m for processing.
func (d *Dispatcher) Submit(m *domain.InboundMessage) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	// count before the send so a worker's Dec never runs first
	queueDepth.Inc()
	select {
	case d.queue <- m:
		return nil
	default:
		queueDepth.Dec()
		return ErrQueueFull
	}
}

// Stop refuses new work, lets the workers drain the queue and waits for them.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		// nobody will drain; drop what was buffered
		for range d.queue {
			queueDepth.Dec()
		}
		return nil
	}
	err := d.g.Wait()
	log.Info().Msg("dispatcher stopped")
	return err
}

// Pending reports how many messages wait for a worker.
func (d *Dispatcher) Pending() int { return len(d.queue) }

func (d *Dispatcher) run(ctx context.Context, worker int, m *domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Int("worker", worker).
				Str("event_id", m.EventID).
				Msg("pipeline run panicked")
		}
	}()
	out := d.proc.Process(ctx, m)
	if d.OnDone != nil {
		d.OnDone(out)
	}
}
