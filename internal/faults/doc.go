// Package faults defines the restore error markers and the per-frame
// diagnostic values surfaced to callers.
//
// Errors returned from the pipeline are wrapped with Wrap so callers can match
// the marker with errors.Is while still seeing stage context in the message.
// Per-frame defects (malformed, missing, irrecoverable, schedule mismatch) are
// never returned as errors; they travel as Diagnostic values in results.
package faults
