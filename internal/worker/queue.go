package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/events"
)

var (
	ErrQueueFull   = errors.New("worker: event queue full")
	ErrQueueClosed = errors.New("worker: event queue closed")
)

type job struct {
	ctx   context.Context
	event events.Event
}

// Queue is an events.Dispatcher that hands events to background workers, so
// subscriber latency and failures never reach the publishing request.
type Queue struct {
	inner   events.Dispatcher
	jobs    chan job
	logger  *zap.Logger
	workers int
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  *atomic.Bool
}

// NewQueue starts workers goroutines draining a buffer of size events into
// inner.
func NewQueue(inner events.Dispatcher, size, workers int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		inner:   inner,
		jobs:    make(chan job, size),
		logger:  logger,
		workers: workers,
		closed:  atomic.NewBool(false),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	return q
}

// Publish enqueues the event without blocking. The request context is
// detached so handlers outlive the request.
func (q *Queue) Publish(ctx context.Context, event events.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		q.logger.Warn("event queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
		return ErrQueueFull
	}
}

// Subscribe registers a handler on the wrapped dispatcher.
func (q *Queue) Subscribe(eventType events.EventType, handler events.EventHandler) {
	q.inner.Subscribe(eventType, handler)
}

// Shutdown stops accepting events and waits for queued ones to finish.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed.Swap(true) {
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for j := range q.jobs {
		if err := q.inner.Publish(j.ctx, j.event); err != nil {
			q.logger.Error("event handler failed",
				zap.String("event_type", string(j.event.Type)),
				zap.String("ticket_id", j.event.TicketID),
				zap.Error(err))
		}
	}
}

var _ events.Dispatcher = (*Queue)(nil)
