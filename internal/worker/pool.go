// Package worker runs the fixed pool of goroutines that pull tasks off
// the queue and execute them against the supervised backend. Pool size
// is fixed at startup; concurrency never exceeds it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/smazurov/pdfnode/internal/browser"
	"github.com/smazurov/pdfnode/internal/events"
	"github.com/smazurov/pdfnode/internal/logging"
	"github.com/smazurov/pdfnode/internal/metrics"
	"github.com/smazurov/pdfnode/internal/queue"
)

// ErrBackendUnavailable means the backend did not become ready within
// the endpoint wait budget. The task fails; it is not retried.
var ErrBackendUnavailable = errors.New("backend unavailable")

// DefaultEndpointWait bounds how long a worker waits for a live
// endpoint before failing the task.
const DefaultEndpointWait = 15 * time.Second

const maxAutoWorkers = 8

// Executor performs one unit of work against a live backend endpoint.
// Implementations must be safe for concurrent use.
type Executor[P, R any] interface {
	Execute(ctx context.Context, endpoint browser.Endpoint, payload P) (R, error)
}

// EndpointSource yields the backend's current endpoint, blocking until
// one is available. The supervisor implements this.
type EndpointSource interface {
	Endpoint(ctx context.Context) (browser.Endpoint, error)
}

// ResolvePoolSize returns the configured worker count, or an automatic
// size derived from available CPUs when configured is zero or negative.
func ResolvePoolSize(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.GOMAXPROCS(0) / 2
	if n < 1 {
		n = 1
	}
	if n > maxAutoWorkers {
		n = maxAutoWorkers
	}
	return n
}

// Options configures a Pool.
type Options[P, R any] struct {
	// Workers is the pool size. Zero or negative resolves automatically
	// via ResolvePoolSize.
	Workers int

	// Queue the pool consumes from (required).
	Queue *queue.Queue[P, R]

	// Source yields live endpoints (required).
	Source EndpointSource

	// Executor performs the work (required).
	Executor Executor[P, R]

	// EndpointWait bounds the per-task wait for a live endpoint. Zero
	// falls back to DefaultEndpointWait.
	EndpointWait time.Duration

	// Size reports the result size in bytes for observability
	// (optional).
	Size func(R) int

	// Bus receives task lifecycle events (optional).
	Bus *events.Bus

	// Logger for pool operations. If nil, the "worker" module logger is
	// used.
	Logger logging.Logger
}

// Pool is a fixed set of workers draining one queue.
type Pool[P, R any] struct {
	workers      int
	queue        *queue.Queue[P, R]
	source       EndpointSource
	executor     Executor[P, R]
	endpointWait time.Duration
	size         func(R) int
	bus          *events.Bus
	logger       logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	startOnce sync.Once
}

// New creates a Pool. Call Start to launch the workers.
func New[P, R any](opts Options[P, R]) *Pool[P, R] {
	if opts.Queue == nil || opts.Source == nil || opts.Executor == nil {
		panic("worker: Queue, Source and Executor are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("worker")
	}
	wait := opts.EndpointWait
	if wait <= 0 {
		wait = DefaultEndpointWait
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool[P, R]{
		workers:      ResolvePoolSize(opts.Workers),
		queue:        opts.Queue,
		source:       opts.Source,
		executor:     opts.Executor,
		endpointWait: wait,
		size:         opts.Size,
		bus:          opts.Bus,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Workers returns the pool size.
func (p *Pool[P, R]) Workers() int {
	return p.workers
}

// Start launches the workers. Subsequent calls are no-ops.
func (p *Pool[P, R]) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("Worker pool starting", "workers", p.workers)
		p.wg.Add(p.workers)
		for i := 0; i < p.workers; i++ {
			go p.run(i)
		}
	})
}

// Wait blocks until every worker has exited, which happens once the
// queue is closed and drained, or until the context expires.
func (p *Pool[P, R]) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort cancels in-flight work. Tasks being executed fail; workers exit
// without draining the queue. Used when graceful drain runs out of time.
func (p *Pool[P, R]) Abort() {
	p.cancel()
}

// run is one worker's loop: dequeue, execute, resolve, repeat.
func (p *Pool[P, R]) run(id int) {
	defer p.wg.Done()

	for {
		task, err := p.queue.Next(p.ctx)
		if err != nil {
			p.logger.Debug("Worker exiting", "worker", id, "reason", err)
			return
		}
		p.execute(id, task)
	}
}

func (p *Pool[P, R]) execute(id int, task *queue.Task[P, R]) {
	start := time.Now()
	p.bus.Publish(events.TaskStartedEvent{
		Identity: task.Identity,
		Worker:   id,
		At:       start,
	})

	// A restart may be in progress; wait a bounded time for a live
	// endpoint rather than failing immediately.
	epCtx, cancel := context.WithTimeout(p.ctx, p.endpointWait)
	endpoint, err := p.source.Endpoint(epCtx)
	cancel()
	if err != nil {
		p.fail(id, task, start, fmt.Errorf("%w: %v", ErrBackendUnavailable, err))
		return
	}

	result, err := p.executor.Execute(p.ctx, endpoint, task.Payload)
	if err != nil {
		p.fail(id, task, start, err)
		return
	}

	task.Complete(result)

	elapsed := time.Since(start)
	bytes := 0
	if p.size != nil {
		bytes = p.size(result)
	}
	metrics.ObserveCompleted(elapsed.Seconds())
	p.bus.Publish(events.TaskCompletedEvent{
		Identity: task.Identity,
		Worker:   id,
		Duration: elapsed,
		Bytes:    bytes,
		At:       time.Now(),
	})
	p.logger.Debug("Task completed", "identity", task.Identity, "worker", id, "duration", elapsed, "bytes", bytes)
}

func (p *Pool[P, R]) fail(id int, task *queue.Task[P, R], start time.Time, err error) {
	task.Fail(err)

	elapsed := time.Since(start)
	metrics.ObserveFailed(failReason(err), elapsed.Seconds())
	p.bus.Publish(events.TaskFailedEvent{
		Identity: task.Identity,
		Worker:   id,
		Duration: elapsed,
		Reason:   err.Error(),
		At:       time.Now(),
	})
	p.logger.Warn("Task failed", "identity", task.Identity, "worker", id, "error", err)
}

// failReason buckets errors into stable metric label values.
func failReason(err error) string {
	switch {
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
