// Package service wires the supervisor, the task queue and the worker
// pool into one renderer facade with a single ordered shutdown path.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/pdfnode/internal/browser"
	"github.com/smazurov/pdfnode/internal/events"
	"github.com/smazurov/pdfnode/internal/logging"
	"github.com/smazurov/pdfnode/internal/queue"
	"github.com/smazurov/pdfnode/internal/supervise"
	"github.com/smazurov/pdfnode/internal/worker"
)

// Options configures a Service.
type Options[P, R any] struct {
	// Driver spawns the rendering backend (required).
	Driver browser.Driver

	// Executor performs one task against a live endpoint (required).
	Executor worker.Executor[P, R]

	// Backoff parameters for backend restarts. Zero values use the
	// browser package defaults.
	Backoff browser.Backoff

	// QueueCapacity bounds the task queue. Zero uses the queue default.
	QueueCapacity int

	// Workers is the pool size. Zero resolves automatically.
	Workers int

	// EndpointWait bounds the per-task wait for a live backend.
	EndpointWait time.Duration

	// Size reports result sizes for observability (optional).
	Size func(R) int

	// Bus receives all lifecycle events (optional).
	Bus *events.Bus

	// Logger for service operations. If nil, the "service" module
	// logger is used.
	Logger logging.Logger
}

// Service is the operational core: one supervised backend, one bounded
// queue, one fixed worker pool.
type Service[P, R any] struct {
	supervisor *supervise.Supervisor
	queue      *queue.Queue[P, R]
	pool       *worker.Pool[P, R]
	bus        *events.Bus
	logger     logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// New assembles a Service. Call Start to bring the backend up.
func New[P, R any](opts Options[P, R]) *Service[P, R] {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("service")
	}

	supervisor := supervise.New(supervise.Options{
		Driver:  opts.Driver,
		Backoff: opts.Backoff,
		Bus:     opts.Bus,
	})
	q := queue.New[P, R](queue.Options{
		Capacity: opts.QueueCapacity,
		Bus:      opts.Bus,
	})
	pool := worker.New(worker.Options[P, R]{
		Workers:      opts.Workers,
		Queue:        q,
		Source:       supervisor,
		Executor:     opts.Executor,
		EndpointWait: opts.EndpointWait,
		Size:         opts.Size,
		Bus:          opts.Bus,
	})

	return &Service[P, R]{
		supervisor: supervisor,
		queue:      q,
		pool:       pool,
		bus:        opts.Bus,
		logger:     logger,
	}
}

// Start launches the supervisor and the worker pool. Subsequent calls
// are no-ops. Start returns immediately; the backend comes up in the
// background.
func (s *Service[P, R]) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("Service starting", "workers", s.pool.Workers(), "queue_capacity", s.queue.Capacity())
		s.supervisor.Start()
		s.pool.Start()
	})
}

// Submit admits a task and returns its completion handle. Blocks while
// the queue is full. Submissions with a pending identity return the
// existing handle.
func (s *Service[P, R]) Submit(ctx context.Context, identity string, payload P) (*queue.Handle[R], error) {
	return s.queue.Submit(ctx, identity, payload)
}

// Render is the synchronous convenience path: submit, then wait for the
// result.
func (s *Service[P, R]) Render(ctx context.Context, identity string, payload P) (R, error) {
	h, err := s.Submit(ctx, identity, payload)
	if err != nil {
		var zero R
		return zero, err
	}
	return h.Result(ctx)
}

// Status reports the backend's supervision state.
func (s *Service[P, R]) Status() supervise.Status {
	return s.supervisor.Status()
}

// QueueDepth reports the number of buffered tasks.
func (s *Service[P, R]) QueueDepth() int {
	return s.queue.Len()
}

// Shutdown drains and stops everything in order: intake closes first,
// admitted tasks finish, then the backend goes down for good. If the
// context expires mid-drain, in-flight work is aborted before the
// backend stops. Safe to call more than once; later calls return the
// first outcome.
func (s *Service[P, R]) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		pending := s.queue.Pending()
		s.logger.Info("Shutdown initiated", "pending", pending)
		s.bus.Publish(events.ShutdownInitiatedEvent{Pending: pending, At: time.Now()})

		s.queue.Close()

		if err := s.pool.Wait(ctx); err != nil {
			s.logger.Warn("Drain deadline hit, aborting in-flight tasks", "error", err)
			s.pool.Abort()
			s.stopErr = err

			// Workers fail their tasks and exit promptly after Abort;
			// bound the wait anyway.
			waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.pool.Wait(waitCtx)
			cancel()
		}

		if err := s.supervisor.Shutdown(ctx); err != nil && s.stopErr == nil {
			s.stopErr = err
		}

		s.bus.Publish(events.ShutdownCompletedEvent{At: time.Now()})
		s.logger.Info("Shutdown complete")
	})
	return s.stopErr
}
