// Package supervise owns the lifecycle of the single rendering backend
// process: start it, watch for unexpected exits, restart with
// exponential backoff, and stop it permanently on shutdown.
package supervise

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smazurov/pdfnode/internal/browser"
	"github.com/smazurov/pdfnode/internal/events"
	"github.com/smazurov/pdfnode/internal/logging"
	"github.com/smazurov/pdfnode/internal/metrics"
)

// ErrStopped is returned by Endpoint once the supervisor has reached
// its terminal state; the backend will never come back on this instance.
var ErrStopped = errors.New("supervisor stopped")

// Options configures a Supervisor.
type Options struct {
	// Driver spawns the backend (required).
	Driver browser.Driver

	// Backoff parameters for restart scheduling. Zero values are
	// replaced by the browser package defaults.
	Backoff browser.Backoff

	// Bus receives lifecycle events (optional).
	Bus *events.Bus

	// Logger for supervisor operations. If nil, the "supervise" module
	// logger is used.
	Logger logging.Logger
}

// Supervisor owns exactly one supervised process slot. Restart retries
// are unbounded; only the shutdown signal ends the loop.
type Supervisor struct {
	driver  browser.Driver
	backoff browser.Backoff
	bus     *events.Bus
	logger  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	status  Status
	changed chan struct{} // closed and replaced on every status change

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Supervisor in the Starting state. Call Start to begin
// supervising.
func New(opts Options) *Supervisor {
	if opts.Driver == nil {
		panic("supervise: Options.Driver is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("supervise")
	}

	backoff := opts.Backoff
	if backoff.Initial <= 0 {
		backoff.Initial = browser.DefaultBackoffInitial
	}
	if backoff.Max <= 0 {
		backoff.Max = browser.DefaultBackoffMax
	}
	if backoff.Multiplier < 1 {
		backoff.Multiplier = browser.DefaultBackoffMult
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		driver:  opts.Driver,
		backoff: backoff,
		bus:     opts.Bus,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  Status{State: StateStarting},
		changed: make(chan struct{}),
	}
}

// Start launches the supervision loop. Subsequent calls are no-ops.
func (s *Supervisor) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Shutdown signals the supervision loop to stop the backend and waits
// for the loop to finish or the context to expire. Safe to call more
// than once.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.logger.Info("Supervisor shutdown requested")
		s.cancel()
	})

	// If Start was never called, the loop will never close done.
	s.startOnce.Do(func() {
		s.setStatus(func(st *Status) { st.State = StateStopped })
		close(s.done)
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the supervised slot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Endpoint blocks until the backend is Running and returns its live
// endpoint. Returns ErrStopped once the supervisor is terminal, or the
// context error on cancellation. Callers must not cache the endpoint
// beyond a single task.
func (s *Supervisor) Endpoint(ctx context.Context) (browser.Endpoint, error) {
	for {
		s.mu.Lock()
		st := s.status
		ch := s.changed
		s.mu.Unlock()

		switch st.State {
		case StateRunning:
			return st.Endpoint, nil
		case StateStopped:
			return browser.Endpoint{}, ErrStopped
		}

		select {
		case <-ctx.Done():
			return browser.Endpoint{}, ctx.Err()
		case <-ch:
		}
	}
}

// run is the supervision loop. It is the only goroutine that touches
// the process handle, so start attempts can never race.
func (s *Supervisor) run() {
	defer close(s.done)

	attempt := 0
	for {
		if s.ctx.Err() != nil {
			s.enterStopped()
			return
		}

		s.setStatus(func(st *Status) {
			st.State = StateStarting
			st.Endpoint = browser.Endpoint{}
			st.PID = 0
		})
		metrics.SetSupervisorState(string(StateStarting))

		proc, endpoint, err := s.driver.Start(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				s.enterStopped()
				return
			}
			s.logger.Error("Backend start failed", "error", err, "attempt", attempt)
			if !s.waitBackoff(attempt, err) {
				s.enterStopped()
				return
			}
			attempt++
			continue
		}

		s.logger.Info("Backend running", "pid", proc.PID(), "endpoint", endpoint.URL)
		s.bus.Publish(events.ProcessSpawnedEvent{
			PID:      proc.PID(),
			Endpoint: endpoint.URL,
			Attempt:  attempt,
			At:       time.Now(),
		})
		s.setStatus(func(st *Status) {
			st.State = StateRunning
			st.Endpoint = endpoint
			st.PID = proc.PID()
			st.Attempt = 0
			st.LastErr = nil
		})
		metrics.SetSupervisorState(string(StateRunning))
		attempt = 0

		code, waitErr := proc.Wait(s.ctx)
		if waitErr != nil {
			// Context cancelled: shutdown path. Stop the live process
			// and leave for good.
			_ = proc.Stop()
			s.bus.Publish(events.ProcessExitedEvent{
				PID:      proc.PID(),
				Expected: true,
				At:       time.Now(),
			})
			s.enterStopped()
			return
		}

		// Unexpected exit while running.
		s.logger.Warn("Backend exited unexpectedly", "pid", proc.PID(), "exit_code", code)
		s.bus.Publish(events.ProcessExitedEvent{
			PID:      proc.PID(),
			ExitCode: code,
			Expected: false,
			At:       time.Now(),
		})

		if !s.waitBackoff(attempt, errors.New("backend exited unexpectedly")) {
			s.enterStopped()
			return
		}
		attempt++
	}
}

// waitBackoff schedules a restart and sleeps out the backoff delay.
// Returns false when shutdown interrupted the wait.
func (s *Supervisor) waitBackoff(attempt int, cause error) bool {
	delay := s.backoff.Delay(attempt)

	s.logger.Info("Restart scheduled", "attempt", attempt+1, "delay", delay)
	s.bus.Publish(events.RestartScheduledEvent{
		Attempt: attempt + 1,
		Delay:   delay,
		Reason:  cause.Error(),
		At:      time.Now(),
	})
	metrics.IncRestarts()

	s.setStatus(func(st *Status) {
		st.State = StateRestarting
		st.Endpoint = browser.Endpoint{}
		st.PID = 0
		st.Attempt = attempt + 1
		st.Delay = delay
		st.Restarts++
		st.LastErr = cause
	})
	metrics.SetSupervisorState(string(StateRestarting))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// enterStopped transitions to the terminal state exactly once.
func (s *Supervisor) enterStopped() {
	s.setStatus(func(st *Status) {
		st.State = StateStopped
		st.Endpoint = browser.Endpoint{}
		st.PID = 0
		st.Delay = 0
	})
	metrics.SetSupervisorState(string(StateStopped))
	s.bus.Publish(events.SupervisorStoppedEvent{At: time.Now()})
	s.logger.Info("Supervisor stopped")
}

// setStatus mutates the status under lock and wakes all Endpoint waiters.
func (s *Supervisor) setStatus(mutate func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State == StateStopped {
		// Stopped is terminal, nothing may leave it.
		return
	}
	mutate(&s.status)
	close(s.changed)
	s.changed = make(chan struct{})
}
