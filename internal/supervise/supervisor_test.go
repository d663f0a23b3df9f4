package supervise

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/pdfnode/internal/browser"
	"github.com/smazurov/pdfnode/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProc is a controllable stand-in for a backend process.
type fakeProc struct {
	pid      int
	exitCode int
	exited   chan struct{}
	once     sync.Once
}

func newFakeProc(pid int) *fakeProc {
	return &fakeProc{pid: pid, exited: make(chan struct{})}
}

func (p *fakeProc) PID() int { return p.pid }

func (p *fakeProc) Wait(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.exited:
		return p.exitCode, nil
	}
}

func (p *fakeProc) Stop() error {
	p.kill(0)
	return nil
}

func (p *fakeProc) kill(code int) {
	p.once.Do(func() {
		p.exitCode = code
		close(p.exited)
	})
}

// scriptDriver returns scripted outcomes for successive Start calls.
// After the script runs out, every Start succeeds.
type scriptDriver struct {
	mu     sync.Mutex
	script []error // nil entry = successful start
	procs  []*fakeProc
	starts int
}

func (d *scriptDriver) Start(context.Context) (browser.Process, browser.Endpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.starts++
	if len(d.script) > 0 {
		err := d.script[0]
		d.script = d.script[1:]
		if err != nil {
			return nil, browser.Endpoint{}, err
		}
	}

	proc := newFakeProc(1000 + d.starts)
	d.procs = append(d.procs, proc)
	ep := browser.Endpoint{URL: fmt.Sprintf("http://127.0.0.1:%d", 9000+d.starts)}
	return proc, ep, nil
}

func (d *scriptDriver) lastProc() *fakeProc {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.procs) == 0 {
		return nil
	}
	return d.procs[len(d.procs)-1]
}

func (d *scriptDriver) startCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

func newTestSupervisor(driver browser.Driver) *Supervisor {
	return New(Options{
		Driver: driver,
		Backoff: browser.Backoff{
			Initial:    20 * time.Millisecond,
			Max:        100 * time.Millisecond,
			Multiplier: 2,
		},
		Logger: testLogger(),
	})
}

func waitForState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if s.Status().State == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %q, at %q", want, s.Status().State)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSupervisorReachesRunning(t *testing.T) {
	driver := &scriptDriver{}
	s := newTestSupervisor(driver)
	s.Start()
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ep, err := s.Endpoint(ctx)
	if err != nil {
		t.Fatalf("Endpoint: %v", err)
	}
	if ep.URL == "" {
		t.Error("expected a non-empty endpoint")
	}
	if got := s.Status().State; got != StateRunning {
		t.Errorf("state = %q, want running", got)
	}
}

func TestSupervisorRestartsAfterCrash(t *testing.T) {
	driver := &scriptDriver{}
	s := newTestSupervisor(driver)
	s.Start()
	defer func() { _ = s.Shutdown(context.Background()) }()

	waitForState(t, s, StateRunning)
	first := s.Status().Endpoint

	// Crash the backend.
	driver.lastProc().kill(1)

	waitForState(t, s, StateRestarting)
	waitForState(t, s, StateRunning)

	second := s.Status().Endpoint
	if first.URL == second.URL {
		t.Error("expected a fresh endpoint after restart")
	}
	if driver.startCount() != 2 {
		t.Errorf("start count = %d, want 2", driver.startCount())
	}
	if s.Status().Restarts != 1 {
		t.Errorf("restarts = %d, want 1", s.Status().Restarts)
	}
}

func TestSupervisorRetriesSpawnFailure(t *testing.T) {
	spawnErr := fmt.Errorf("%w: no such file", browser.ErrSpawn)
	driver := &scriptDriver{script: []error{spawnErr, spawnErr}}
	s := newTestSupervisor(driver)
	s.Start()
	defer func() { _ = s.Shutdown(context.Background()) }()

	waitForState(t, s, StateRunning)

	if driver.startCount() != 3 {
		t.Errorf("start count = %d, want 3 (two failures, one success)", driver.startCount())
	}
	if s.Status().Restarts != 2 {
		t.Errorf("restarts = %d, want 2", s.Status().Restarts)
	}
}

func TestSupervisorBackoffGrows(t *testing.T) {
	spawnErr := errors.New("boom")
	driver := &scriptDriver{script: []error{spawnErr, spawnErr, spawnErr}}
	s := New(Options{
		Driver: driver,
		Backoff: browser.Backoff{
			Initial:    10 * time.Millisecond,
			Max:        40 * time.Millisecond,
			Multiplier: 2,
		},
		Logger: testLogger(),
		Bus:    events.New(),
	})

	var mu sync.Mutex
	var delays []time.Duration
	unsub := s.bus.Subscribe(func(e events.RestartScheduledEvent) {
		mu.Lock()
		delays = append(delays, e.Delay)
		mu.Unlock()
	})
	defer unsub()

	s.Start()
	defer func() { _ = s.Shutdown(context.Background()) }()
	waitForState(t, s, StateRunning)

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("got %d scheduled restarts, want %d", len(delays), len(want))
	}
	for i, w := range want {
		if delays[i] != w {
			t.Errorf("delay %d = %v, want %v", i, delays[i], w)
		}
	}
}

func TestSupervisorShutdownStopsProcess(t *testing.T) {
	driver := &scriptDriver{}
	s := newTestSupervisor(driver)
	s.Start()
	waitForState(t, s, StateRunning)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	proc := driver.lastProc()
	select {
	case <-proc.exited:
	default:
		t.Error("live process was not stopped on shutdown")
	}
	if got := s.Status().State; got != StateStopped {
		t.Errorf("state = %q, want stopped", got)
	}
}

func TestSupervisorShutdownCancelsBackoff(t *testing.T) {
	// Driver that always fails; supervisor will sit in long backoff.
	driver := &scriptDriver{script: []error{
		errors.New("a"), errors.New("b"), errors.New("c"),
		errors.New("d"), errors.New("e"), errors.New("f"),
	}}
	s := New(Options{
		Driver: driver,
		Backoff: browser.Backoff{
			Initial:    10 * time.Second,
			Max:        10 * time.Second,
			Multiplier: 2,
		},
		Logger: testLogger(),
	})
	s.Start()
	waitForState(t, s, StateRestarting)

	start := time.Now()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown waited out the backoff: %v", elapsed)
	}
}

func TestSupervisorStoppedIsTerminal(t *testing.T) {
	driver := &scriptDriver{}
	s := newTestSupervisor(driver)
	s.Start()
	waitForState(t, s, StateRunning)

	_ = s.Shutdown(context.Background())
	starts := driver.startCount()

	// No restart may happen after shutdown.
	time.Sleep(100 * time.Millisecond)
	if driver.startCount() != starts {
		t.Error("supervisor started a process after shutdown")
	}

	if _, err := s.Endpoint(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Endpoint error = %v, want ErrStopped", err)
	}
}

func TestSupervisorEndpointTimesOutWhileDown(t *testing.T) {
	driver := &scriptDriver{script: []error{errors.New("down")}}
	s := New(Options{
		Driver: driver,
		Backoff: browser.Backoff{
			Initial:    time.Second,
			Max:        time.Second,
			Multiplier: 2,
		},
		Logger: testLogger(),
	})
	s.Start()
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := s.Endpoint(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Endpoint error = %v, want deadline exceeded", err)
	}
}

func TestSupervisorShutdownWithoutStart(t *testing.T) {
	s := newTestSupervisor(&scriptDriver{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown without Start: %v", err)
	}
	if got := s.Status().State; got != StateStopped {
		t.Errorf("state = %q, want stopped", got)
	}
}
