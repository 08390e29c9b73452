package metadata

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/logging"
)

// ErrThresholdExceeded marks a rule stopped by its thresholds.
var ErrThresholdExceeded = errors.New("threshold exceeded")

// Rule transforms the rows of a table inside its frame range.
type Rule interface {
	fmt.Stringer
	apply(system dv.System, rows []Info, logger *slog.Logger) (changed []bool, err error)
	base() ruleBase
}

// frameSpan selects rows by frame number, inclusive. end < 0 is open.
type frameSpan struct {
	start, end int64
}

func (s frameSpan) contains(index int64) bool {
	return index >= s.start && (s.end < 0 || index <= s.end)
}

func (s frameSpan) String() string {
	if s.end < 0 {
		return fmt.Sprintf("[%d, end]", s.start)
	}
	return fmt.Sprintf("[%d, %d]", s.start, s.end)
}

type ruleBase struct {
	span   frameSpan
	limits Thresholds
}

func (b ruleBase) base() ruleBase { return b }

// RuleReport summarizes one applied rule.
type RuleReport struct {
	Rule    string
	Frames  int
	Changed int
}

// Apply runs every rule in order. On error the table is left unchanged.
func (r *Rules) Apply(t *Table, logger *slog.Logger) ([]RuleReport, error) {
	logger = logging.NewComponentLogger(logger, "metadata")
	rows := slices.Clone(t.Rows)
	reports := make([]RuleReport, 0, len(r.Rules))
	for _, rule := range r.Rules {
		b := rule.base()
		lo, hi := selectRange(rows, b.span)
		if lo == hi {
			logging.WarnWithContext(logger, "rule matches no frames", "metadata_rule_empty",
				logging.String("rule", rule.String()),
				logging.String(logging.FieldErrorHint, "check start_frame and end_frame against the table"),
				logging.String(logging.FieldImpact, "rule skipped"),
			)
			reports = append(reports, RuleReport{Rule: rule.String()})
			continue
		}
		logger.Info("applying rule", logging.String("rule", rule.String()), logging.Int("frames", hi-lo))
		changed, err := rule.apply(t.System, rows[lo:hi], logger)
		if err != nil {
			return nil, faults.Wrap(faults.ErrInvalidInput, "metadata", rule.String(), "", err)
		}
		report := RuleReport{Rule: rule.String(), Frames: hi - lo}
		if err := b.limits.check(rows[lo:hi], changed, &report); err != nil {
			return nil, faults.Wrap(faults.ErrInvalidInput, "metadata", rule.String(), "", err)
		}
		logger.Info("rule applied",
			logging.String("rule", rule.String()),
			logging.Int("changed_frames", report.Changed),
			logging.Int("frames", report.Frames),
		)
		reports = append(reports, report)
	}
	t.Rows = rows
	return reports, nil
}

// selectRange returns the half-open slice bounds of the rows span covers.
// Rows are sorted by frame number.
func selectRange(rows []Info, span frameSpan) (int, int) {
	lo, _ := slices.BinarySearchFunc(rows, span.start, func(r Info, n int64) int { return cmp.Compare(r.Index, n) })
	hi := lo
	for hi < len(rows) && span.contains(rows[hi].Index) {
		hi++
	}
	return lo, hi
}

// check enforces the thresholds over the flags one rule produced.
func (l Thresholds) check(rows []Info, changed []bool, report *RuleReport) error {
	run := 0
	for i, c := range changed {
		if !c {
			run = 0
			continue
		}
		report.Changed++
		run++
		if l.MaxConsecutive > 0 && run >= l.MaxConsecutive {
			return fmt.Errorf("%w: %d frames in a row changed at frame %d", ErrThresholdExceeded, run, rows[i].Index)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if p := float64(report.Changed) / float64(len(changed)); p > l.MaxChangedProportion {
		return fmt.Errorf("%w: changed %.2f%% of %d frames, limit %.2f%%",
			ErrThresholdExceeded, p*100, len(changed), l.MaxChangedProportion*100)
	}
	return nil
}

type writeConstant struct {
	ruleBase
	column column
	value  string
}

func (w *writeConstant) String() string {
	value := "the most common value"
	if !w.mostCommon() {
		value = "value " + w.value
	}
	return fmt.Sprintf("write_constant to %s in frames %s with %s", w.column.name, w.span, value)
}

func (w *writeConstant) mostCommon() bool {
	return strings.EqualFold(w.value, mostCommon)
}

type valueCount struct {
	value string
	count int
}

// histogram counts known values in first-seen order, most frequent first.
func histogram(rows []Info, col column) []valueCount {
	var out []valueCount
	pos := make(map[string]int)
	for _, r := range rows {
		v, ok := col.get(r)
		if !ok {
			continue
		}
		if i, seen := pos[v]; seen {
			out[i].count++
			continue
		}
		pos[v] = len(out)
		out = append(out, valueCount{value: v, count: 1})
	}
	slices.SortStableFunc(out, func(a, b valueCount) int { return cmp.Compare(b.count, a.count) })
	return out
}

func (w *writeConstant) apply(system dv.System, rows []Info, logger *slog.Logger) ([]bool, error) {
	hist := histogram(rows, w.column)
	if len(hist) > 0 {
		parts := make([]string, 0, 5)
		for _, h := range hist[:min(len(hist), 5)] {
			parts = append(parts, fmt.Sprintf("%s (%d)", h.value, h.count))
		}
		logger.Info("most common values", logging.String("column", w.column.name), logging.String("values", strings.Join(parts, ", ")))
	}
	value := w.value
	if w.mostCommon() {
		if len(hist) == 0 {
			return nil, fmt.Errorf("no frame in range has a readable %s", w.column.name)
		}
		value = hist[0].value
	}
	changed := make([]bool, len(rows))
	for i := range rows {
		before := rows[i]
		if err := w.column.set(system, &rows[i], value); err != nil {
			return nil, err
		}
		changed[i] = rows[i] != before
	}
	return changed, nil
}

type renumberTimecodes struct {
	ruleBase
	initial string
}

func (r *renumberTimecodes) String() string {
	initial := "the first frame's timecode"
	if r.initial != "" {
		initial = r.initial
	}
	return fmt.Sprintf("renumber_title_timecodes in frames %s starting at %s", r.span, initial)
}

// apply numbers each row from the starting timecode by its distance in
// frames from the first row, so a dropped frame leaves a gap.
func (r *renumberTimecodes) apply(system dv.System, rows []Info, _ *slog.Logger) ([]bool, error) {
	var start dv.Timecode
	switch {
	case r.initial != "":
		tc, err := dv.ParseTimecodeText(system, r.initial)
		if err != nil {
			return nil, err
		}
		start = tc
	case rows[0].HasTimecode:
		start = rows[0].Timecode
	default:
		return nil, fmt.Errorf("frame %d has no readable timecode to start from; set initial_value", rows[0].Index)
	}
	changed := make([]bool, len(rows))
	for i := range rows {
		before := rows[i]
		tc := start.Add(system, rows[i].Index-rows[0].Index)
		tc.ColorFrame = before.Timecode.ColorFrame
		rows[i].Timecode, rows[i].HasTimecode = tc, true
		changed[i] = rows[i] != before
	}
	return changed, nil
}

type renumberArbitrary struct {
	ruleBase
	initial            *uint8
	lower, upper, step uint8
}

func (r *renumberArbitrary) String() string {
	initial := "first"
	if r.initial != nil {
		initial = hexNibble(*r.initial)
	}
	return fmt.Sprintf("renumber_arbitrary_bits in frames %s with initial_value=%s, lower_bound=%s, upper_bound=%s, step=%s",
		r.span, initial, hexNibble(r.lower), hexNibble(r.upper), hexNibble(r.step))
}

// apply cycles the arbitrary bits through [lower, upper] by step per frame.
func (r *renumberArbitrary) apply(_ dv.System, rows []Info, _ *slog.Logger) ([]bool, error) {
	start := rows[0].Arbitrary
	if r.initial != nil {
		start = *r.initial
	}
	if start < r.lower || start > r.upper {
		return nil, fmt.Errorf("starting value %s outside %s-%s", hexNibble(start), hexNibble(r.lower), hexNibble(r.upper))
	}
	span := int64(r.upper-r.lower) + 1
	changed := make([]bool, len(rows))
	for i := range rows {
		before := rows[i]
		offset := (int64(start-r.lower) + (rows[i].Index-rows[0].Index)*int64(r.step)) % span
		rows[i].Arbitrary = r.lower + uint8(offset)
		changed[i] = rows[i] != before
	}
	return changed, nil
}
