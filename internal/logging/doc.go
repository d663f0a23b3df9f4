// Package logging provides module-scoped structured logging on top of
// log/slog.
//
// Each subsystem asks for its own logger via GetLogger("supervise"),
// GetLogger("worker") and so on. Levels are configurable per module and
// can be changed at runtime through LevelVars. Output goes to stdout
// (text or json), to the systemd journal when one is available, and to
// an in-memory ring buffer of recent entries for diagnostics.
package logging
