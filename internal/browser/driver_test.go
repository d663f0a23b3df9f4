package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// listenPort opens a TCP listener on a free port and returns the port.
// The listener stands in for a backend that is already serving.
func listenPort(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return ln, ln.Addr().(*net.TCPAddr).Port
}

// freePort returns a port that nothing listens on.
func freePort(t *testing.T) int {
	t.Helper()
	ln, port := listenPort(t)
	_ = ln.Close()
	return port
}

func testDriver(t *testing.T, spec Spec) *ChromeDriver {
	t.Helper()
	d, err := NewChromeDriver(spec, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDriverStartReachesReadyEndpoint(t *testing.T) {
	ln, port := listenPort(t)
	defer func() { _ = ln.Close() }()

	d := testDriver(t, Spec{
		Command:   "sleep",
		Args:      []string{"10"},
		Readiness: Readiness{Port: port, Timeout: 2 * time.Second},
	})

	handle, endpoint, err := d.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = handle.Stop() }()

	want := fmt.Sprintf("http://127.0.0.1:%d", port)
	if endpoint.URL != want {
		t.Errorf("endpoint = %q, want %q", endpoint.URL, want)
	}
	if handle.PID() == 0 {
		t.Error("expected a live PID")
	}
}

func TestDriverSpawnErrorForMissingBinary(t *testing.T) {
	d := testDriver(t, Spec{
		Command:   "/nonexistent/browser/binary",
		Readiness: Readiness{Port: freePort(t), Timeout: time.Second},
	})

	_, _, err := d.Start(context.Background())
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("Start error = %v, want ErrSpawn", err)
	}
}

func TestDriverReadinessTimeout(t *testing.T) {
	d := testDriver(t, Spec{
		Command:         "sleep",
		Args:            []string{"10"},
		Readiness:       Readiness{Port: freePort(t), Timeout: 300 * time.Millisecond},
		GracefulTimeout: 100 * time.Millisecond,
		KillTimeout:     100 * time.Millisecond,
	})

	_, _, err := d.Start(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Start error = %v, want ErrNotReady", err)
	}
}

func TestDriverProcessExitBeforeReady(t *testing.T) {
	d := testDriver(t, Spec{
		Command:   "true",
		Readiness: Readiness{Port: freePort(t), Timeout: 5 * time.Second},
	})

	start := time.Now()
	_, _, err := d.Start(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Start error = %v, want ErrNotReady", err)
	}
	// Must fail on process exit, not wait out the full probe timeout.
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("failure took %v, should react to process exit", elapsed)
	}
}

func TestDriverStartCancelled(t *testing.T) {
	d := testDriver(t, Spec{
		Command:         "sleep",
		Args:            []string{"10"},
		Readiness:       Readiness{Port: freePort(t), Timeout: 10 * time.Second},
		GracefulTimeout: 100 * time.Millisecond,
		KillTimeout:     100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, _, err := d.Start(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Start error = %v, want context.Canceled", err)
	}
}

func TestNewChromeDriverValidation(t *testing.T) {
	if _, err := NewChromeDriver(Spec{Readiness: Readiness{Port: 9222}}, testLogger()); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := NewChromeDriver(Spec{Command: "chromium", Readiness: Readiness{Port: 0}}, testLogger()); err == nil {
		t.Error("expected error for port 0")
	}
	if _, err := NewChromeDriver(Spec{Command: "chromium", Readiness: Readiness{Port: 70000}}, testLogger()); err == nil {
		t.Error("expected error for out-of-range port")
	}
}

func TestExpandArgs(t *testing.T) {
	got := expandArgs([]string{"--port={port}", "--headless"}, 4444)
	if got[0] != "--port=4444" {
		t.Errorf("placeholder not substituted: %v", got)
	}
	if len(got) != 2 {
		t.Errorf("no flag should be appended when placeholder present: %v", got)
	}

	got = expandArgs([]string{"--headless"}, 9222)
	if len(got) != 2 || !strings.Contains(got[1], "9222") {
		t.Errorf("expected appended debugging port flag, got %v", got)
	}
}

func TestBackoffDelaySequence(t *testing.T) {
	b := Backoff{Initial: 500 * time.Millisecond, Max: 4 * time.Second, Multiplier: 2}

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second, // capped
	}
	for attempt, w := range want {
		if got := b.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestSpecWithDefaults(t *testing.T) {
	s := Spec{Command: "chromium", Readiness: Readiness{Port: 9222}}.WithDefaults()
	if s.Readiness.Timeout != DefaultReadinessTimeout {
		t.Errorf("readiness timeout = %v", s.Readiness.Timeout)
	}
	if s.Backoff.Initial != DefaultBackoffInitial || s.Backoff.Max != DefaultBackoffMax {
		t.Errorf("backoff defaults not applied: %+v", s.Backoff)
	}
	if s.Backoff.Multiplier != DefaultBackoffMult {
		t.Errorf("multiplier = %v", s.Backoff.Multiplier)
	}
}
