// Package config loads, normalizes, and validates dvrestore configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// restore pipeline and CLI need: where work files, logs, and the run journal
// live, how captures are aligned and merged, and which concealment policies
// the repair pass may apply.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
