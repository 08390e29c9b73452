package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTeeHandlerCollapses(t *testing.T) {
	if _, ok := newTeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if h := newTeeHandler(nil, inner); h != inner {
		t.Fatal("a single live handler should be returned unwrapped")
	}
}

func TestTeeHandlerRespectsEachLevel(t *testing.T) {
	var console, file bytes.Buffer
	h := newTeeHandler(
		slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}),
		newJSONHandler(&file, slog.LevelDebug, false),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be enabled through the file handler")
	}
	logger := slog.New(h).With(String(FieldStage, "repair")).WithGroup("frame")
	logger.Debug("concealed", Int("blocks", 2))
	logger.Info("done")

	if strings.Contains(console.String(), "concealed") {
		t.Fatalf("console received debug: %q", console.String())
	}
	if !strings.Contains(console.String(), "done") {
		t.Fatalf("console missing info: %q", console.String())
	}
	if !strings.Contains(file.String(), `"frame":{"blocks":2}`) || !strings.Contains(file.String(), `"stage":"repair"`) {
		t.Fatalf("file missing grouped debug record: %q", file.String())
	}
}
