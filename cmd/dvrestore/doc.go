// Package main hosts the dvrestore CLI entrypoint and command graph.
//
// The Cobra command tree exposes the restore pipeline as a whole and its
// stages one at a time: dump and inspect read a single capture, merge writes
// a repaired stream, resync extracts audio from one, restore does all of it
// and records the run, and report reads the run journal back.
//
// Keep this package lean: the pipeline lives in internal/restore and the
// stages below it; commands here only parse flags and render results.
package main
