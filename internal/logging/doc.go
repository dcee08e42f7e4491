// Package logging assembles structured slog loggers used across shivuk.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so registry and generation code
// tag log lines with the active identity, generation mode, and correlation
// IDs. A no-op logger is provided for tests and wiring code that cannot fail.
package logging
