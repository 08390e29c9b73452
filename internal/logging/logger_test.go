package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dvrestore/internal/logging"
	"dvrestore/internal/runctx"
)

func TestWithRunLogRecordsDebugBelowConsoleLevel(t *testing.T) {
	var console bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}))
	runLog := filepath.Join(t.TempDir(), "state", "logs", "run.log")

	logger, closeLog, err := logging.WithRunLog(base, runLog)
	if err != nil {
		t.Fatalf("WithRunLog returned error: %v", err)
	}
	logger.Debug("block concealed", logging.FrameIndex(7), logging.Block(12), logging.Duration("elapsed", 1500*time.Millisecond))
	if err := closeLog(); err != nil {
		t.Fatalf("close run log: %v", err)
	}
	if console.Len() != 0 {
		t.Fatalf("console should stay at warn, got %q", console.String())
	}

	content, err := os.ReadFile(runLog)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("run log is not JSON: %v (%q)", err, content)
	}
	if record["msg"] != "block concealed" || record["level"] != "debug" {
		t.Fatalf("unexpected record %v", record)
	}
	if record[logging.FieldFrameIndex] != float64(7) || record[logging.FieldBlock] != float64(12) {
		t.Fatalf("missing location fields: %v", record)
	}
	if record["elapsed"] != 1.5 {
		t.Fatalf("expected elapsed in seconds, got %v", record["elapsed"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestWithRunLogSendsWarningsToBoth(t *testing.T) {
	var console bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}))
	runLog := filepath.Join(t.TempDir(), "run.log")

	logger, closeLog, err := logging.WithRunLog(base, runLog)
	if err != nil {
		t.Fatalf("WithRunLog returned error: %v", err)
	}
	defer closeLog()
	logger.With(logging.String(logging.FieldReel, "r1")).Warn("frame missing")

	if !strings.Contains(console.String(), `"reel":"r1"`) {
		t.Fatalf("console missing warning: %q", console.String())
	}
	content, err := os.ReadFile(runLog)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(content), `"reel":"r1"`) {
		t.Fatalf("run log missing warning: %q", content)
	}
}

func TestWithRunLogRejectsUnusableDir(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "stub")
	if err := os.WriteFile(stub, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := logging.WithRunLog(logging.NewNop(), filepath.Join(stub, "run.log")); err == nil {
		t.Fatal("expected error when the log dir is a file")
	}
}

func TestNewCreatesMissingOutputDirs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "state", "logs", "dvrestore.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("capture opened", logging.String(logging.FieldCapture, "A"))
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), `"capture":"A"`) {
		t.Fatalf("log missing record: %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerShowsSubjectAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := runctx.WithReel(runctx.WithStage(context.Background(), "merge"), "tape07")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "merge")).Info("merge completed",
		logging.Int64("missing_frames", 2),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{"[merge]", "Reel tape07", "(merge)", "merge completed", "Missing Frames: 2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}

func TestConsoleLoggerLiftsFramePositionIntoHeader(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.With(logging.String(logging.FieldCapture, "B")).Warn("block unrecoverable",
		logging.FrameIndex(1204),
		logging.Block(37),
		logging.Int64("samples", 1601600),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{"capture B · frame 1204 block 37", "Samples: 1,601,600"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
	if strings.Contains(text, "Frame Index") {
		t.Fatalf("frame index should not repeat as a field: %q", text)
	}
}

func TestConsoleLoggerSuppressesRepeatedInfoFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	reel := logger.With(logging.String(logging.FieldReel, "tape07"))
	reel.Info("progress", logging.String("format", "NTSC"), logging.Int64("frames", 10))
	reel.Info("progress", logging.String("format", "NTSC"), logging.Int64("frames", 20))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if n := strings.Count(string(content), "Format: NTSC"); n != 1 {
		t.Fatalf("expected format once, got %d in %q", n, content)
	}
	if !strings.Contains(string(content), "Frames: 20") {
		t.Fatalf("expected changed field to print: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "level.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "invalid", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")
	content, _ := os.ReadFile(logPath)
	buf.Write(content)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = runctx.WithRunID(ctx, "run-123")
	ctx = runctx.WithStage(ctx, "repair")
	ctx = runctx.WithCapture(ctx, "B")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for key, want := range map[string]string{
		logging.FieldRunID:   "run-123",
		logging.FieldStage:   "repair",
		logging.FieldCapture: "B",
	} {
		if record[key] != want {
			t.Fatalf("field %s = %v, want %s", key, record[key], want)
		}
	}
}

func TestForStageAppliesOverride(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	quiet := logging.ForStage(base, "resync", map[string]string{"resync": "warn"})
	quiet.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be suppressed, got %q", buf.String())
	}
	quiet.Warn("kept")
	if !strings.Contains(buf.String(), `"stage":"resync"`) {
		t.Fatalf("expected stage field, got %q", buf.String())
	}

	buf.Reset()
	logging.ForStage(base, "merge", map[string]string{"resync": "warn"}).Debug("passes")
	if !strings.Contains(buf.String(), "passes") {
		t.Fatalf("stage without override should keep base level, got %q", buf.String())
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "frame missing", "merge_missing_frame", logging.FrameIndex(4))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "merge_missing_frame" || record[logging.FieldErrorHint] == nil || record[logging.FieldImpact] == nil {
		t.Fatalf("missing enforced fields: %v", record)
	}
}

func TestRunLogPathAndRetention(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	path := logging.RunLogPath(dir, "0123456789abcdef", started)
	if filepath.Base(path) != "dvrestore-20260301T123000-01234567.log" {
		t.Fatalf("unexpected run log name %q", path)
	}

	old := filepath.Join(dir, "dvrestore-old.log")
	current := filepath.Join(dir, "dvrestore-current.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, current, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		stale := time.Now().AddDate(0, 0, -40)
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	if n := logging.PruneRunLogs(logging.NewNop(), dir, 30, current); n != 1 {
		t.Fatalf("expected one pruned log, got %d", n)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be pruned", old)
	}
	for _, p := range []string{current, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to survive: %v", p, err)
		}
	}
}
