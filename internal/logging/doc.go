// Package logging assembles structured slog loggers and formatting helpers used
// by the coordinator, the workers, and the CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so dispatch and worker code can
// tag log lines with batch IDs, task IDs, stages, and worker names. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
