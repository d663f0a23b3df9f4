package browser

import "errors"

// Sentinel errors for backend process control.
var (
	// ErrSpawn wraps launch failures: missing binary, permission
	// denied, bad arguments. The supervisor retries these with backoff.
	ErrSpawn = errors.New("failed to spawn backend process")

	// ErrNotReady means the process started but its endpoint never
	// became connectable within the readiness timeout.
	ErrNotReady = errors.New("backend did not become ready")

	// ErrHandleReaped means Wait was called twice on the same handle.
	// This is a caller bug, not a transient condition.
	ErrHandleReaped = errors.New("process handle already reaped")
)
