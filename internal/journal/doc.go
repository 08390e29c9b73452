// Package journal persists restore runs in SQLite.
//
// A run row records the inputs and the final totals of one restore. Per-frame
// audit rows hang off the run: frame summaries, irrecoverable blocks, audio
// corrections, and diagnostics. Writes retry on SQLITE_BUSY so a report can
// read the journal while a restore is writing to it.
package journal
