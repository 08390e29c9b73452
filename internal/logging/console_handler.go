package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes human-oriented lines: a header naming where on the
// tape the record applies, then one indented line per field.
type prettyHandler struct {
	shared    *consoleState
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

// consoleState is shared by every handler derived through WithAttrs.
type consoleState struct {
	mu     sync.Mutex
	writer io.Writer
	// last remembers the info fields printed per reel, capture and component
	// so unchanged values are not repeated line after line.
	last map[string]map[string]string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{
		shared:    &consoleState{writer: w, last: make(map[string]map[string]string)},
		level:     lvl,
		addSource: addSource,
	}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// locus names where a record applies.
type locus struct {
	component string
	reel      string
	capture   string
	stage     string
	frame     string
	block     string
}

func (l *locus) take(key string, v slog.Value) {
	set := func(dst *string) {
		if *dst == "" {
			*dst = attrString(v)
		}
	}
	switch key {
	case FieldComponent:
		set(&l.component)
	case FieldReel:
		set(&l.reel)
	case FieldCapture:
		set(&l.capture)
	case FieldStage:
		set(&l.stage)
	case FieldFrameIndex:
		set(&l.frame)
	case FieldBlock:
		set(&l.block)
	}
}

func (l locus) String() string {
	var parts []string
	if l.reel != "" {
		parts = append(parts, "Reel "+l.reel)
	}
	if l.capture != "" {
		parts = append(parts, "capture "+l.capture)
	}
	if l.frame != "" {
		pos := "frame " + l.frame
		if l.block != "" {
			pos += " block " + l.block
		}
		parts = append(parts, pos)
	}
	text := strings.Join(parts, " · ")
	if l.stage != "" {
		if text != "" {
			text += " "
		}
		text += "(" + l.stage + ")"
	}
	return text
}

// key scopes repeated-field suppression. Frame-level records never share a
// scope because their fields describe a single frame.
func (l locus) key() string {
	if l.frame != "" {
		return ""
	}
	return l.reel + "/" + l.capture + "/" + l.component
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	attrs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&attrs, h.groups, h.attrs)
	record.Attrs(func(a slog.Attr) bool {
		flattenAttr(&attrs, h.groups, a)
		return true
	})
	attrs = dedupeKVsByKey(attrs)

	var where locus
	for _, a := range attrs {
		where.take(a.key, a.value)
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(attrs)*32)
	h.writeHeader(&buf, ts, record.Level, where, record.Message, record.Source())

	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	if record.Level < slog.LevelInfo {
		for _, a := range attrs {
			buf.WriteString("    ")
			buf.WriteString(a.key)
			buf.WriteString(": ")
			buf.WriteString(formatValue(a.value))
			buf.WriteByte('\n')
		}
	} else {
		fields, hidden := selectInfoFields(attrs)
		fields = h.shared.dropRepeated(where.key(), fields, record.Level)
		for _, f := range fields {
			buf.WriteString("    - ")
			buf.WriteString(f.label)
			buf.WriteString(": ")
			buf.WriteString(f.value)
			buf.WriteByte('\n')
		}
		if hidden > 0 {
			buf.WriteString("    + ")
			buf.WriteString(strconv.Itoa(hidden))
			if hidden == 1 {
				buf.WriteString(" debug field hidden\n")
			} else {
				buf.WriteString(" debug fields hidden\n")
			}
		}
	}
	_, err := h.shared.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) writeHeader(buf *bytes.Buffer, ts time.Time, level slog.Level, where locus, message string, src *slog.Source) {
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(level))
	if where.component != "" {
		buf.WriteString(" [")
		buf.WriteString(where.component)
		buf.WriteByte(']')
	}
	if text := where.String(); text != "" {
		buf.WriteByte(' ')
		buf.WriteString(text)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "(no message)"
	}
	buf.WriteString(" – ")
	buf.WriteString(message)
	if h.addSource && src != nil {
		buf.WriteString(" [")
		buf.WriteString(filepath.Base(src.File))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(src.Line))
		buf.WriteByte(']')
	}
	buf.WriteByte('\n')
}

// dropRepeated removes info fields whose value matches the last one printed
// in the same scope. Warnings and errors always print in full.
func (s *consoleState) dropRepeated(scope string, fields []infoField, level slog.Level) []infoField {
	if scope == "" || len(fields) == 0 {
		return fields
	}
	seen, ok := s.last[scope]
	if !ok {
		seen = make(map[string]string)
		s.last[scope] = seen
	}
	if level > slog.LevelInfo {
		for _, f := range fields {
			seen[f.label] = f.value
		}
		return fields
	}
	kept := fields[:0]
	for _, f := range fields {
		if prev, ok := seen[f.label]; ok && prev == f.value {
			continue
		}
		seen[f.label] = f.value
		kept = append(kept, f)
	}
	return kept
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

type kv struct {
	key   string
	value slog.Value
}

// dedupeKVsByKey keeps the first position of each key and its last value.
func dedupeKVsByKey(attrs []kv) []kv {
	positions := make(map[string]int, len(attrs))
	out := make([]kv, 0, len(attrs))
	for _, a := range attrs {
		if a.key == "" {
			continue
		}
		if pos, ok := positions[a.key]; ok {
			out[pos].value = a.value
			continue
		}
		positions[a.key] = len(out)
		out = append(out, a)
	}
	return out
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, a := range attrs {
		flattenAttr(dst, prefix, a)
	}
}

func flattenAttr(dst *[]kv, prefix []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		next := prefix
		if a.Key != "" {
			next = append(append([]string(nil), prefix...), a.Key)
		}
		flattenAttrs(dst, next, a.Value.Group())
		return
	}
	key := a.Key
	if len(prefix) > 0 {
		parts := append([]string(nil), prefix...)
		if a.Key != "" {
			parts = append(parts, a.Key)
		}
		key = strings.Join(parts, ".")
	}
	*dst = append(*dst, kv{key: key, value: a.Value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
