package browser

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/smazurov/pdfnode/internal/logging"
)

// readinessPollInterval is how often the driver probes the backend port.
const readinessPollInterval = 100 * time.Millisecond

// Process is the minimal control surface of a spawned backend process.
// *Handle is the production implementation.
type Process interface {
	PID() int
	Wait(ctx context.Context) (int, error)
	Stop() error
}

// Driver knows how to spawn one kind of backend process and hand back
// its handle plus the endpoint it serves on.
type Driver interface {
	Start(ctx context.Context) (Process, Endpoint, error)
}

// ChromeDriver launches a headless Chromium (or chromedriver-style)
// backend that exposes a DevTools endpoint on a local TCP port.
type ChromeDriver struct {
	spec   Spec
	logger logging.Logger
}

// NewChromeDriver creates a driver for the given spec. The spec is
// defaulted and validated once here; Start never mutates it.
func NewChromeDriver(spec Spec, logger logging.Logger) (*ChromeDriver, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &ChromeDriver{spec: spec, logger: logger}, nil
}

// Spec returns the immutable process spec.
func (d *ChromeDriver) Spec() Spec { return d.spec }

// Start spawns the backend and waits for its port to become
// connectable. On readiness failure the spawned process is stopped
// before returning.
func (d *ChromeDriver) Start(ctx context.Context) (Process, Endpoint, error) {
	port := d.spec.Readiness.Port
	args := expandArgs(d.spec.Args, port)

	cmd := exec.Command(d.spec.Command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, Endpoint{}, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, Endpoint{}, fmt.Errorf("%w: stderr pipe: %v", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, Endpoint{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	handle := newHandle(cmd, stdout, stderr, d.spec, d.logger)
	d.logger.Info("Process started", "pid", handle.PID(), "command", d.spec.Command, "port", port)

	endpoint := Endpoint{URL: fmt.Sprintf("http://127.0.0.1:%d", port)}

	if err := d.awaitReady(ctx, handle, port); err != nil {
		_ = handle.Stop()
		return nil, Endpoint{}, err
	}

	d.logger.Info("Backend ready", "endpoint", endpoint.URL)
	return handle, endpoint, nil
}

// awaitReady polls the port until it accepts a TCP connection, the
// process dies, the timeout elapses, or the context is cancelled.
func (d *ChromeDriver) awaitReady(ctx context.Context, handle *Handle, port int) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.After(d.spec.Readiness.Timeout)
	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", addr, readinessPollInterval)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-handle.exited:
			return fmt.Errorf("%w: process exited during readiness probe", ErrNotReady)
		case <-deadline:
			return fmt.Errorf("%w: port %d not connectable within %v", ErrNotReady, port, d.spec.Readiness.Timeout)
		case <-ticker.C:
		}
	}
}

// expandArgs substitutes the port placeholder. When no argument carries
// the placeholder, a DevTools port flag is appended so the backend
// always listens where the readiness probe looks.
func expandArgs(args []string, port int) []string {
	out := make([]string, 0, len(args)+1)
	substituted := false
	for _, a := range args {
		if strings.Contains(a, PortPlaceholder) {
			a = strings.ReplaceAll(a, PortPlaceholder, strconv.Itoa(port))
			substituted = true
		}
		out = append(out, a)
	}
	if !substituted {
		out = append(out, fmt.Sprintf("--remote-debugging-port=%d", port))
	}
	return out
}
