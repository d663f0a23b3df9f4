// Package events provides the in-process event bus for lifecycle and
// task observability. External sinks (SSE, log shippers) subscribe here;
// the core only publishes.
package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeProcessSpawned uint32 = iota + 1
	TypeProcessExited
	TypeRestartScheduled
	TypeSupervisorStopped
	TypeTaskEnqueued
	TypeTaskStarted
	TypeTaskCompleted
	TypeTaskFailed
	TypeShutdownInitiated
	TypeShutdownCompleted
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessSpawnedEvent is published when the backend process starts and
// passes its readiness probe.
type ProcessSpawnedEvent struct {
	PID      int       `json:"pid"`
	Endpoint string    `json:"endpoint"`
	Attempt  int       `json:"attempt"`
	At       time.Time `json:"at"`
}

// Type returns the event type identifier for ProcessSpawnedEvent.
func (e ProcessSpawnedEvent) Type() uint32 { return TypeProcessSpawned }

// ProcessExitedEvent is published when the backend process exits,
// expectedly or not.
type ProcessExitedEvent struct {
	PID      int       `json:"pid"`
	ExitCode int       `json:"exit_code"`
	Expected bool      `json:"expected"`
	At       time.Time `json:"at"`
}

// Type returns the event type identifier for ProcessExitedEvent.
func (e ProcessExitedEvent) Type() uint32 { return TypeProcessExited }

// RestartScheduledEvent is published when the supervisor schedules a
// backoff delay before the next start attempt.
type RestartScheduledEvent struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
	Reason  string        `json:"reason"`
	At      time.Time     `json:"at"`
}

// Type returns the event type identifier for RestartScheduledEvent.
func (e RestartScheduledEvent) Type() uint32 { return TypeRestartScheduled }

// SupervisorStoppedEvent is published once when the supervisor reaches
// its terminal state.
type SupervisorStoppedEvent struct {
	At time.Time `json:"at"`
}

// Type returns the event type identifier for SupervisorStoppedEvent.
func (e SupervisorStoppedEvent) Type() uint32 { return TypeSupervisorStopped }

// TaskEnqueuedEvent is published when a task is admitted to the queue.
type TaskEnqueuedEvent struct {
	Identity string    `json:"identity"`
	Depth    int       `json:"depth"`
	At       time.Time `json:"at"`
}

// Type returns the event type identifier for TaskEnqueuedEvent.
func (e TaskEnqueuedEvent) Type() uint32 { return TypeTaskEnqueued }

// TaskStartedEvent is published when a worker begins executing a task.
type TaskStartedEvent struct {
	Identity string    `json:"identity"`
	Worker   int       `json:"worker"`
	At       time.Time `json:"at"`
}

// Type returns the event type identifier for TaskStartedEvent.
func (e TaskStartedEvent) Type() uint32 { return TypeTaskStarted }

// TaskCompletedEvent is published when a task resolves successfully.
type TaskCompletedEvent struct {
	Identity string        `json:"identity"`
	Worker   int           `json:"worker"`
	Duration time.Duration `json:"duration"`
	Bytes    int           `json:"bytes"`
	At       time.Time     `json:"at"`
}

// Type returns the event type identifier for TaskCompletedEvent.
func (e TaskCompletedEvent) Type() uint32 { return TypeTaskCompleted }

// TaskFailedEvent is published when a task resolves with a failure.
type TaskFailedEvent struct {
	Identity string        `json:"identity"`
	Worker   int           `json:"worker"`
	Duration time.Duration `json:"duration"`
	Reason   string        `json:"reason"`
	At       time.Time     `json:"at"`
}

// Type returns the event type identifier for TaskFailedEvent.
func (e TaskFailedEvent) Type() uint32 { return TypeTaskFailed }

// ShutdownInitiatedEvent is published when process-wide shutdown begins.
type ShutdownInitiatedEvent struct {
	Pending int       `json:"pending"`
	At      time.Time `json:"at"`
}

// Type returns the event type identifier for ShutdownInitiatedEvent.
func (e ShutdownInitiatedEvent) Type() uint32 { return TypeShutdownInitiated }

// ShutdownCompletedEvent is published once the queue has drained and the
// supervisor has stopped.
type ShutdownCompletedEvent struct {
	At time.Time `json:"at"`
}

// Type returns the event type identifier for ShutdownCompletedEvent.
func (e ShutdownCompletedEvent) Type() uint32 { return TypeShutdownCompleted }
