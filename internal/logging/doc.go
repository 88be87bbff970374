// Package logging assembles structured slog loggers and formatting helpers used
// by the nopg daemon and CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so RPC handlers can tag log lines
// with the command and request id. Daemon logs live next to the control socket
// as <pid>.log and are pruned by CleanupOldLogs once their daemon is gone.
package logging
