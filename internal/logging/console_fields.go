package logging

import (
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// valueStyle selects how a console field is rendered.
type valueStyle uint8

const (
	stylePlain valueStyle = iota
	styleCount
	styleDuration
	stylePercent
	styleFreeText
)

type fieldSpec struct {
	key   string
	label string
	style valueStyle
}

// consoleFields are rendered first on info lines, in this order. Keys not
// listed follow in record order with a title-cased label.
var consoleFields = []fieldSpec{
	{FieldEventType, "Event", stylePlain},
	{"defect", "Defect", stylePlain},
	{"error_message", "Error", styleFreeText},
	{"error", "Error", styleFreeText},
	{FieldErrorHint, "Hint", styleFreeText},
	{FieldImpact, "Impact", styleFreeText},
	{FieldProgressStage, "Progress Stage", stylePlain},
	{FieldProgressPercent, "Progress", stylePercent},
	{"format", "Format", stylePlain},
	{"strategy", "Strategy", stylePlain},
	{"align", "Align", stylePlain},
	{"captures", "Captures", styleFreeText},
	{"frames", "Frames", styleCount},
	{"frames_written", "Frames Written", styleCount},
	{"first_index", "First Frame", styleCount},
	{"last_index", "Last Frame", styleCount},
	{"missing_frames", "Missing Frames", styleCount},
	{"malformed_frames", "Malformed Frames", styleCount},
	{"unresolved_blocks", "Unresolved", styleCount},
	{"concealed_redundant", "Redundant", styleCount},
	{"concealed_temporal", "Temporal", styleCount},
	{"irrecoverable_blocks", "Irrecoverable", styleCount},
	{"sample_rate", "Rate", stylePlain},
	{"channels", "Channels", stylePlain},
	{"samples", "Samples", styleCount},
	{"audio_samples", "Audio Samples", styleCount},
	{"surplus_samples", "Surplus", styleCount},
	{"deficit_samples", "Deficit", styleCount},
	{"concealed_samples", "Concealed", styleCount},
	{"schedule_mismatches", "Mismatches", styleCount},
	{"runs", "Runs", styleCount},
	{"detail", "Detail", styleFreeText},
	{"reason", "Reason", styleFreeText},
	{"elapsed", "Elapsed", styleDuration},
}

var fieldSpecs = func() map[string]fieldSpec {
	m := make(map[string]fieldSpec, len(consoleFields))
	for _, f := range consoleFields {
		if _, ok := m[f.key]; !ok {
			m[f.key] = f
		}
	}
	return m
}()

// countPrinter groups digits so frame and sample counts stay readable.
var countPrinter = message.NewPrinter(language.English)

type infoField struct {
	label string
	value string
}

// locusKeys are lifted into the line header instead of the field list.
func isLocusKey(key string) bool {
	switch key {
	case "", FieldComponent, FieldReel, FieldCapture, FieldStage, FieldFrameIndex, FieldBlock:
		return true
	}
	return false
}

// isDebugOnlyKey marks keys that only appear on debug lines.
func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldRunID, "ordinal", "worker", "batch_size", "schedule_period", "output_prefix", "video", "audio":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

// selectInfoFields orders attrs for an info line and counts the ones it drops.
func selectInfoFields(attrs []kv) ([]infoField, int) {
	byKey := make(map[string]slog.Value, len(attrs))
	for _, a := range attrs {
		byKey[a.key] = a.value
	}
	var (
		fields []infoField
		hidden int
		shown  = make(map[string]bool)
	)
	add := func(key string, v slog.Value) {
		if shown[key] || isLocusKey(key) {
			return
		}
		shown[key] = true
		if isDebugOnlyKey(key) {
			hidden++
			return
		}
		spec, ok := fieldSpecs[key]
		if !ok {
			spec = fieldSpec{key: key, label: titleizeKey(key)}
		}
		value := renderField(spec, v)
		if spec.style != styleFreeText && len(value) > 120 {
			hidden++
			return
		}
		fields = append(fields, infoField{label: spec.label, value: value})
	}
	for _, spec := range consoleFields {
		if v, ok := byKey[spec.key]; ok {
			add(spec.key, v)
		}
	}
	for _, a := range attrs {
		add(a.key, a.value)
	}
	return fields, hidden
}

func renderField(spec fieldSpec, v slog.Value) string {
	v = v.Resolve()
	switch {
	case spec.style == styleCount && v.Kind() == slog.KindInt64:
		return countPrinter.Sprintf("%d", v.Int64())
	case spec.style == styleDuration && v.Kind() == slog.KindDuration:
		return formatDurationHuman(v.Duration())
	case spec.style == styleDuration && v.Kind() == slog.KindFloat64:
		return formatDurationHuman(time.Duration(v.Float64() * float64(time.Second)))
	case spec.style == stylePercent && v.Kind() == slog.KindFloat64:
		return formatPercent(v.Float64())
	case spec.style == styleFreeText:
		return clipText(attrString(v))
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	return formatValue(v)
}

func clipText(s string) string {
	s = strings.TrimSpace(s)
	const max = 200
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, " ")
}
