// Package scheduler drives the time-based DECLARED -> ACTIVE war transition.
// Declarations register their due time; a timer fires on the earliest one
// and a periodic poll catches anything missed, such as wars declared before
// a restart.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"claims-engine/internal/pkg/clock"
)

// Activator commits war activations. Both calls are safe to repeat.
type Activator interface {
	TryActivate(ctx context.Context, warID string) (bool, error)
	ActivateDue(ctx context.Context) (int, error)
}

type entry struct {
	warID string
	at    time.Time
}

type queue []entry

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].warID < q[j].warID
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(entry)) }
func (q *queue) Pop() any {
	old := *q
	e := old[len(old)-1]
	*q = old[:len(old)-1]
	return e
}

// Scheduler queues activation times and triggers the Activator when due.
type Scheduler struct {
	activator Activator
	clock     clock.Clock
	poll      time.Duration

	mu    sync.Mutex
	queue queue
	wake  chan struct{}
}

// New creates a Scheduler polling every poll interval.
func New(activator Activator, clk clock.Clock, poll time.Duration) *Scheduler {
	if poll <= 0 {
		poll = time.Minute
	}
	return &Scheduler{
		activator: activator,
		clock:     clk,
		poll:      poll,
		wake:      make(chan struct{}, 1),
	}
}

// ScheduleAt queues warID for activation at at.
func (s *Scheduler) ScheduleAt(warID string, at time.Time) {
	s.mu.Lock()
	heap.Push(&s.queue, entry{warID: warID, at: at})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued activations.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// next returns the earliest due time, false when the queue is empty.
func (s *Scheduler) next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return s.queue[0].at, true
}

func (s *Scheduler) popDue(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []string
	for s.queue.Len() > 0 && !now.Before(s.queue[0].at) {
		due = append(due, heap.Pop(&s.queue).(entry).warID)
	}
	return due
}

// Tick activates every queued war that is due and returns how many were
// activated by this call.
func (s *Scheduler) Tick(ctx context.Context) int {
	activated := 0
	for _, id := range s.popDue(s.clock.Now()) {
		ok, err := s.activator.TryActivate(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("war", id).Msg("War activation failed")
			continue
		}
		if ok {
			activated++
		}
	}
	return activated
}

// Poll activates every due war known to storage.
func (s *Scheduler) Poll(ctx context.Context) int {
	n, err := s.activator.ActivateDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("War activation poll failed")
	}
	if n > 0 {
		log.Info().Int("activated", n).Msg("Activated due wars")
	}
	return n
}

// Run drives activations until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	timer := time.NewTimer(s.poll)
	defer timer.Stop()

	s.Poll(ctx)
	for {
		s.Tick(ctx)
		s.reset(timer)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-timer.C:
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// reset arms timer for the earliest queued entry, or the poll interval.
func (s *Scheduler) reset(timer *time.Timer) {
	wait := s.poll
	if at, ok := s.next(); ok {
		wait = min(max(at.Sub(s.clock.Now()), 0), s.poll)
	}
	timer.Reset(wait)
}
