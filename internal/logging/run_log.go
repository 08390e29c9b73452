package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// runLogPattern matches every file RunLogPath produces.
const runLogPattern = "dvrestore-*.log"

// RunLogPath returns the per-run log file location inside dir. Names sort by
// start time and carry the short run ID so a report row maps to its log.
func RunLogPath(dir, runID string, started time.Time) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(dir, fmt.Sprintf("dvrestore-%s-%s.log", started.UTC().Format("20060102T150405"), short))
}

// WithRunLog tees logger into a JSON file at path that records every level.
// The console keeps its own threshold. The returned func closes the file.
func WithRunLog(logger *slog.Logger, path string) (*slog.Logger, func() error, error) {
	if logger == nil {
		logger = NewNop()
	}
	if err := ensureLogDir(path); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	return slog.New(newTeeHandler(logger.Handler(), newJSONHandler(file, slog.LevelDebug, false))), file.Close, nil
}

// PruneRunLogs removes run logs in dir older than retentionDays, sparing keep.
// A retentionDays of 0 keeps everything. Other files in dir are never touched.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int, keep string) int {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	if abs, err := filepath.Abs(keep); err == nil && keep != "" {
		keep = abs
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if matched, _ := filepath.Match(runLogPattern, entry.Name()); !matched {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if path == keep {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "run log prune failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check log_dir ownership"),
				String(FieldImpact, "old run log stays on disk"),
			)
			continue
		}
		pruned++
	}
	if pruned > 0 && logger != nil {
		logger.Debug("run logs pruned", Int("count", pruned), String(FieldEventType, "log_pruned"))
	}
	return pruned
}

// teeHandler sends each record to every handler whose own level admits it,
// so a debug run log never lowers the console threshold.
type teeHandler struct {
	handlers []slog.Handler
}

func newTeeHandler(handlers ...slog.Handler) slog.Handler {
	var live []slog.Handler
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return &teeHandler{handlers: live}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, next := range h.handlers {
		if next.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	last := len(h.handlers) - 1
	for i, next := range h.handlers {
		if !next.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if i < last {
			rec = record.Clone()
		}
		if err := next.Handle(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return h.each(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *teeHandler) each(fn func(slog.Handler) slog.Handler) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, next := range h.handlers {
		out[i] = fn(next)
	}
	return &teeHandler{handlers: out}
}
