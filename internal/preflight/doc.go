// Package preflight verifies the filesystem before a restore starts: the
// captures must be readable, and the output and working directories must be
// writable with enough free space for the restored stream.
package preflight
