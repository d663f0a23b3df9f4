package supervise

import (
	"time"

	"github.com/smazurov/pdfnode/internal/browser"
)

// State represents the current state of the supervised slot.
type State string

// Supervisor states. Stopped is terminal.
const (
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// Status is a snapshot of the supervised slot.
type Status struct {
	State    State
	Endpoint browser.Endpoint // valid only while Running
	PID      int              // valid only while Running
	Attempt  int              // restart attempts since the last Running
	Delay    time.Duration    // pending backoff delay while Restarting
	Restarts int              // total restarts scheduled over the lifetime
	LastErr  error
}
