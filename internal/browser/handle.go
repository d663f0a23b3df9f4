package browser

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/pdfnode/internal/logging"
)

// Compile-time interface check.
var _ Process = (*Handle)(nil)

// Handle owns one live backend OS process. At most one Handle exists per
// supervised slot; the supervisor holds it exclusively while running.
type Handle struct {
	cmd        *exec.Cmd
	logger     logging.Logger
	exited     chan struct{} // closed by the reaper goroutine
	outputDone chan struct{} // receives twice, once per output stream

	gracefulTimeout time.Duration
	killTimeout     time.Duration

	mu       sync.Mutex
	exitCode int
	reaped   bool

	drainOnce sync.Once
}

// newHandle wires a started exec.Cmd into a Handle and begins reaping.
func newHandle(cmd *exec.Cmd, stdout, stderr io.ReadCloser, spec Spec, logger logging.Logger) *Handle {
	h := &Handle{
		cmd:             cmd,
		logger:          logger,
		exited:          make(chan struct{}),
		outputDone:      make(chan struct{}, 2),
		gracefulTimeout: spec.GracefulTimeout,
		killTimeout:     spec.KillTimeout,
	}

	go func() {
		h.streamOutput(stdout, "stdout")
		h.outputDone <- struct{}{}
	}()
	go func() {
		h.streamOutput(stderr, "stderr")
		h.outputDone <- struct{}{}
	}()

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exitCode = exitCodeFromError(err)
		h.mu.Unlock()
		close(h.exited)
	}()

	return h
}

// PID returns the OS process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit code. The
// handle may be waited on exactly once; a second call returns
// ErrHandleReaped. Cancelling the context returns early without
// consuming the handle.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	h.mu.Lock()
	if h.reaped {
		h.mu.Unlock()
		return 0, ErrHandleReaped
	}
	h.mu.Unlock()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.exited:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reaped {
		return 0, ErrHandleReaped
	}
	h.reaped = true
	return h.exitCode, nil
}

// Stop requests graceful termination with SIGINT and escalates to
// SIGKILL after the grace period. It returns once the process has
// exited or the kill timeout elapsed.
func (h *Handle) Stop() error {
	select {
	case <-h.exited:
		// Already gone, nothing to signal.
		h.drainOutput()
		return nil
	default:
	}

	h.sendStopSignal()

	select {
	case <-h.exited:
		h.drainOutput()
		return nil
	case <-time.After(h.gracefulTimeout):
	}

	h.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", h.gracefulTimeout)
	if h.cmd.Process != nil {
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.logger.Error("Failed to kill process", "error", err)
		}
	}

	select {
	case <-h.exited:
	case <-time.After(h.killTimeout):
		h.logger.Error("Process did not exit after kill signal")
	}
	h.drainOutput()
	return nil
}

// sendStopSignal sends SIGINT without waiting.
func (h *Handle) sendStopSignal() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	h.logger.Info("Sending SIGINT to process", "pid", h.cmd.Process.Pid)
	if err := h.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// drainOutput waits for both output streams to finish. Safe to call
// more than once; only the first call blocks.
func (h *Handle) drainOutput() {
	h.drainOnce.Do(func() {
		<-h.outputDone
		<-h.outputDone
	})
}

// streamOutput forwards process output lines to the module logger,
// extracting the level from Chrome's stderr format.
func (h *Handle) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()
		level, msg := parseChromeLine(line)
		switch level {
		case "fatal", "error":
			h.logger.Error(msg)
		case "warning":
			h.logger.Warn(msg)
		case "debug", "verbose":
			h.logger.Debug(msg)
		default:
			h.logger.Info(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		h.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// parseChromeLine extracts the log level from Chromium-style output,
// e.g. "[123:456:0101/000000.000000:ERROR:gpu_init.cc(42)] message".
func parseChromeLine(line string) (level, msg string) {
	for _, probe := range []struct{ marker, level string }{
		{":FATAL:", "fatal"},
		{":ERROR:", "error"},
		{":WARNING:", "warning"},
		{":INFO:", "info"},
		{":VERBOSE", "verbose"},
		{"[SEVERE]", "error"},
		{"[WARNING]", "warning"},
	} {
		if strings.Contains(line, probe.marker) {
			return probe.level, line
		}
	}
	return "info", line
}

// exitCodeFromError extracts the exit code from a cmd.Wait error.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
