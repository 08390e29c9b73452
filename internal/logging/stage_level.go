package logging

import (
	"context"
	"log/slog"
	"strings"
)

// ForStage tags logger with a pipeline stage and applies the minimum level
// configured for it in overrides (logging.stage_overrides).
func ForStage(logger *slog.Logger, stage string, overrides map[string]string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	logger = logger.With(String(FieldStage, stage))
	level, ok := overrides[stage]
	if !ok {
		return logger
	}
	next := logger.Handler()
	if h, ok := next.(*stageLevelHandler); ok {
		next = h.next
	}
	return slog.New(&stageLevelHandler{next: next, level: parseLevel(level)})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// stageLevelHandler raises or lowers the threshold of one stage. It can only
// admit records the wrapped handler also admits, so a debug override shows
// extra detail in the run log while the console keeps its level.
type stageLevelHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h *stageLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *stageLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *stageLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stageLevelHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h *stageLevelHandler) WithGroup(name string) slog.Handler {
	return &stageLevelHandler{next: h.next.WithGroup(name), level: h.level}
}
