package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// ErrQueueFull is returned when the dispatcher cannot accept another event.
var ErrQueueFull = errors.New("notification queue full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("notification dispatcher closed")

// Dispatcher is a Sink that queues events and delivers them to an inner
// sink on a single background worker, so delivery never runs on the
// mutation path.
type Dispatcher struct {
	sink  Sink
	queue chan Event

	mu     sync.RWMutex
	closed bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewDispatcher creates a dispatcher with a queue of size events.
func NewDispatcher(sink Sink, size int) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{sink: sink, queue: make(chan Event, size)}
}

// Start launches the delivery worker. Deliveries use ctx until Close gives
// up on the backlog.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range d.queue {
			if err := d.sink.Notify(ctx, ev.Target, ev.Kind, ev.Payload); err != nil {
				d.failed.Add(1)
				log.Warn().
					Err(err).
					Str("target", ev.Target).
					Str("kind", string(ev.Kind)).
					Msg("Notification delivery failed")
			}
		}
	}()
}

// Notify enqueues an event without blocking.
func (d *Dispatcher) Notify(_ context.Context, target string, kind Kind, payload Payload) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- Event{Target: target, Kind: kind, Payload: payload}:
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until queued ones are delivered.
// When ctx ends first, in-flight and remaining deliveries are cancelled and
// counted as failed.
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Warn().Int("pending", len(d.queue)).Msg("Notification backlog abandoned at shutdown")
		if d.cancel != nil {
			d.cancel()
		}
		<-drained
	}
	if d.cancel != nil {
		d.cancel()
	}
}

// Dropped is the number of events rejected because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Failed is the number of events the inner sink failed to deliver.
func (d *Dispatcher) Failed() int64 {
	return d.failed.Load()
}
