// Package queue provides the bounded, backpressured FIFO of rendering
// tasks. Submissions block while the queue is full, identities collapse
// onto the pending task, and shutdown drains admitted work instead of
// discarding it.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smazurov/pdfnode/internal/events"
	"github.com/smazurov/pdfnode/internal/logging"
	"github.com/smazurov/pdfnode/internal/metrics"
)

// ErrClosed is returned by Submit once shutdown has begun and by Next
// once the queue is closed and fully drained. Callers must not retry
// against this instance.
var ErrClosed = errors.New("queue closed")

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 30

// Queue is a bounded FIFO of tasks, generic over payload and result.
// An identity is pending from admission until its task resolves; while
// pending, re-submissions return the existing completion handle.
//
// Admission happens under the queue lock, so a task is either admitted
// before Close and guaranteed to drain, or rejected with ErrClosed.
type Queue[P, R any] struct {
	capacity int
	items    chan *Task[P, R]

	mu      sync.Mutex
	pending map[string]*Task[P, R]
	closed  bool
	space   chan struct{} // closed and replaced whenever a slot frees

	closeCh chan struct{}

	bus    *events.Bus
	logger logging.Logger
}

// Options configures a Queue.
type Options struct {
	// Capacity bounds the number of buffered tasks. Zero or negative
	// falls back to DefaultCapacity.
	Capacity int

	// Bus receives task lifecycle events (optional).
	Bus *events.Bus

	// Logger for queue operations. If nil, the "queue" module logger
	// is used.
	Logger logging.Logger
}

// New creates an open queue.
func New[P, R any](opts Options) *Queue[P, R] {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("queue")
	}

	metrics.SetQueueCapacity(capacity)
	return &Queue[P, R]{
		capacity: capacity,
		items:    make(chan *Task[P, R], capacity),
		pending:  make(map[string]*Task[P, R]),
		space:    make(chan struct{}),
		closeCh:  make(chan struct{}),
		bus:      opts.Bus,
		logger:   logger,
	}
}

// Capacity returns the configured bound.
func (q *Queue[P, R]) Capacity() int {
	return q.capacity
}

// Len returns the number of buffered tasks.
func (q *Queue[P, R]) Len() int {
	return len(q.items)
}

// Pending returns the number of identities that are enqueued or
// in-flight.
func (q *Queue[P, R]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Submit admits a task, blocking while the queue is at capacity. A
// submission whose identity is already pending is a no-op returning the
// existing handle. Returns ErrClosed once shutdown has begun.
func (q *Queue[P, R]) Submit(ctx context.Context, identity string, payload P) (*Handle[R], error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if existing, ok := q.pending[identity]; ok {
		q.mu.Unlock()
		q.logger.Debug("Duplicate submission collapsed", "identity", identity)
		metrics.IncDeduplicated()
		return existing.handle, nil
	}

	task := &Task[P, R]{
		Identity:   identity,
		Payload:    payload,
		EnqueuedAt: time.Now(),
		handle:     newHandle[R](),
		forget:     func() { q.forget(identity) },
	}
	q.pending[identity] = task

	for {
		if q.closed {
			q.mu.Unlock()
			// Duplicates may already hold this task's handle, so the
			// task must resolve even though it was never admitted.
			task.Fail(ErrClosed)
			return nil, ErrClosed
		}

		// Non-blocking admission attempt under the lock.
		select {
		case q.items <- task:
			depth := len(q.items)
			q.mu.Unlock()

			metrics.IncSubmitted()
			metrics.SetQueueDepth(depth)
			q.bus.Publish(events.TaskEnqueuedEvent{
				Identity: identity,
				Depth:    depth,
				At:       task.EnqueuedAt,
			})
			q.logger.Debug("Task enqueued", "identity", identity, "depth", depth)
			return task.handle, nil
		default:
		}

		// Queue is at capacity: wait for a slot, the close signal, or
		// caller cancellation, then retry.
		space := q.space
		q.mu.Unlock()

		select {
		case <-space:
		case <-q.closeCh:
			task.Fail(ErrClosed)
			return nil, ErrClosed
		case <-ctx.Done():
			task.Fail(ctx.Err())
			return nil, ctx.Err()
		}

		q.mu.Lock()
	}
}

// Next returns the oldest buffered task, blocking while the queue is
// empty and still open. Once the queue is closed and drained it
// returns ErrClosed, which is the workers' signal to exit.
func (q *Queue[P, R]) Next(ctx context.Context) (*Task[P, R], error) {
	for {
		select {
		case task := <-q.items:
			q.signalSpace()
			return task, nil
		default:
		}

		select {
		case task := <-q.items:
			q.signalSpace()
			return task, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closeCh:
			// No sends can happen after Close, so a final non-blocking
			// receive decides between draining and exiting.
			select {
			case task := <-q.items:
				q.signalSpace()
				return task, nil
			default:
				return nil, ErrClosed
			}
		}
	}
}

// Close stops intake. Already-buffered tasks remain available to Next
// until drained. Safe to call more than once.
func (q *Queue[P, R]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	buffered := len(q.items)
	q.mu.Unlock()

	close(q.closeCh)
	q.logger.Info("Queue closed", "buffered", buffered)
}

// signalSpace wakes all submitters blocked on a full queue.
func (q *Queue[P, R]) signalSpace() {
	q.mu.Lock()
	close(q.space)
	q.space = make(chan struct{})
	q.mu.Unlock()
	metrics.SetQueueDepth(len(q.items))
}

// forget releases an identity so it can be submitted again.
func (q *Queue[P, R]) forget(identity string) {
	q.mu.Lock()
	delete(q.pending, identity)
	q.mu.Unlock()
}
