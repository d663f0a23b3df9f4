// Package browser spawns and controls the external rendering backend
// process (a headless browser exposing a DevTools endpoint).
//
// Driver knows how to launch a specific backend kind and hand back a
// Handle plus the endpoint it listens on. Handle owns exactly one OS
// process: graceful SIGINT with a force-kill escalation, line-wise
// output streaming into the module logger, and a single-use Wait.
package browser
