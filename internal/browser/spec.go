package browser

import (
	"fmt"
	"time"
)

// Default lifecycle timings.
const (
	DefaultReadinessTimeout = 10 * time.Second
	DefaultGracefulTimeout  = 5 * time.Second
	DefaultKillTimeout      = 5 * time.Second
	DefaultBackoffInitial   = 500 * time.Millisecond
	DefaultBackoffMax       = 30 * time.Second
	DefaultBackoffMult      = 2.0
)

// PortPlaceholder in an argument is replaced with the readiness port.
const PortPlaceholder = "{port}"

// Readiness describes how to detect that the backend is serving: the
// given TCP port must become connectable within the timeout.
type Readiness struct {
	Port    int
	Timeout time.Duration
}

// Backoff holds restart backoff parameters.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay returns the backoff delay for the given zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Multiplier)
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Spec is the static configuration for one backend kind. Loaded once at
// startup and immutable thereafter.
type Spec struct {
	Command         string
	Args            []string
	Readiness       Readiness
	Backoff         Backoff
	GracefulTimeout time.Duration
	KillTimeout     time.Duration
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (s Spec) WithDefaults() Spec {
	if s.Readiness.Timeout <= 0 {
		s.Readiness.Timeout = DefaultReadinessTimeout
	}
	if s.GracefulTimeout <= 0 {
		s.GracefulTimeout = DefaultGracefulTimeout
	}
	if s.KillTimeout <= 0 {
		s.KillTimeout = DefaultKillTimeout
	}
	if s.Backoff.Initial <= 0 {
		s.Backoff.Initial = DefaultBackoffInitial
	}
	if s.Backoff.Max <= 0 {
		s.Backoff.Max = DefaultBackoffMax
	}
	if s.Backoff.Multiplier < 1 {
		s.Backoff.Multiplier = DefaultBackoffMult
	}
	return s
}

// Validate reports configuration errors that would make every spawn fail.
func (s Spec) Validate() error {
	if s.Command == "" {
		return fmt.Errorf("backend command must not be empty")
	}
	if s.Readiness.Port <= 0 || s.Readiness.Port > 65535 {
		return fmt.Errorf("readiness port %d out of range", s.Readiness.Port)
	}
	return nil
}

// Endpoint is the live connection target of a running backend. Owned by
// the supervisor; workers borrow it for the duration of one task.
type Endpoint struct {
	URL string
}

// String returns the endpoint URL.
func (e Endpoint) String() string { return e.URL }
