package logging

import (
	"context"
	"log/slog"

	"dvrestore/internal/runctx"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for restore run identifiers.
	FieldRunID = "run_id"
	// FieldReel is the standardized structured logging key for the tape reel name.
	FieldReel = "reel"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldCapture is the standardized structured logging key for capture labels.
	FieldCapture = "capture"
	// FieldFrameIndex and FieldBlock locate a record inside the tape.
	FieldFrameIndex = "frame_index"
	FieldBlock      = "block"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"

	FieldProgressStage   = "progress_stage"
	FieldProgressPercent = "progress_percent"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := runctx.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if reel, ok := runctx.ReelFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldReel, reel))
	}
	if stage, ok := runctx.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if capture, ok := runctx.CaptureFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCapture, capture))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
