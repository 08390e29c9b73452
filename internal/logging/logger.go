package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"dvrestore/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // console (default) or json
	// OutputPaths lists files, "stdout" or "stderr". Empty means stderr.
	OutputPaths []string
}

// New builds a logger from opts. Debug level also records the caller.
func New(opts Options) (*slog.Logger, error) {
	w, err := openOutputs(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	addSource := level.Level() <= slog.LevelDebug

	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		return slog.New(newPrettyHandler(w, level, addSource)), nil
	case "json":
		return slog.New(newJSONHandler(w, level, addSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig creates the console logger described by cfg. Run logs are
// attached per restore with WithRunLog.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}

func openOutputs(paths []string) (io.Writer, error) {
	var (
		writers []io.Writer
		seen    []string
	)
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(seen, p) {
			continue
		}
		seen = append(seen, p)
		switch p {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := ensureLogDir(p); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", p, err)
			}
			writers = append(writers, f)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// ensureLogDir creates the directory that will hold the log file at path.
func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
