// Package runctx carries run-scoped identifiers through context.Context so
// log records can be correlated without threading them through every call.
package runctx

import "context"

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	stageKey   contextKey = "stage"
	captureKey contextKey = "capture"
	reelKey    contextKey = "reel"
)

// WithRunID annotates context with the restore run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithCapture annotates context with a capture label.
func WithCapture(ctx context.Context, label string) context.Context {
	if label == "" {
		return ctx
	}
	return context.WithValue(ctx, captureKey, label)
}

// CaptureFromContext returns the capture label if present.
func CaptureFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(captureKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithReel annotates context with the tape reel name.
func WithReel(ctx context.Context, reel string) context.Context {
	if reel == "" {
		return ctx
	}
	return context.WithValue(ctx, reelKey, reel)
}

// ReelFromContext returns the reel name if present.
func ReelFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(reelKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
