// Package logging assembles structured slog loggers and formatting helpers used
// across curator services.
//
// It owns the console and JSON handlers, the rotating log file, and the
// context-aware helpers that tag log lines with scan cycle IDs, source paths,
// and correlation IDs. A no-op logger is provided for tests and wiring code
// that cannot fail.
package logging
