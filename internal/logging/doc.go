// Package logging assembles structured slog loggers and formatting helpers used
// across Subservient components.
//
// It owns the configurable console/JSON handlers, routes output to stdout and
// the append-only run log, and exposes context-aware helpers so pipeline code
// can tag log lines with the run ID, video, and language being resolved. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
