// Package logging assembles structured slog loggers and formatting helpers used
// across dvrestore.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with run IDs, reels, captures, and stages. A restore writes every
// record at debug level into a per-run JSON log file alongside the console
// output. The package also provides a no-op logger for tests and wiring code
// that cannot fail.
package logging
