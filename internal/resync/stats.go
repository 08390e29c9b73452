package resync

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// PeriodStats records audio drift over one schedule period.
type PeriodStats struct {
	StartFrame         int64
	Frames             int
	Actual             int64
	Expected           int64
	Diff               int64
	AccumulatedDiff    int64
	AccumulatedSeconds float64
	// Missing lists the indexes in the period no capture covered.
	Missing []int64
}

type periodAccumulator struct {
	schedule    Schedule
	emit        func(PeriodStats)
	current     PeriodStats
	open        bool
	accumulated int64
}

func newPeriodAccumulator(s Schedule, emit func(PeriodStats)) *periodAccumulator {
	return &periodAccumulator{schedule: s, emit: emit}
}

func (a *periodAccumulator) add(index, actual, expected int64, missing bool) {
	start := a.schedule.PeriodStart(index)
	if a.open && start != a.current.StartFrame {
		a.flush()
	}
	if !a.open {
		a.current = PeriodStats{StartFrame: start}
		a.open = true
	}
	a.current.Frames++
	a.current.Actual += actual
	a.current.Expected += expected
	if missing {
		a.current.Missing = append(a.current.Missing, index)
	}
}

func (a *periodAccumulator) flush() {
	if !a.open {
		return
	}
	a.open = false
	p := a.current
	p.Diff = p.Actual - p.Expected
	a.accumulated += p.Diff
	p.AccumulatedDiff = a.accumulated
	p.AccumulatedSeconds = a.schedule.Seconds(a.accumulated)
	if a.emit != nil {
		a.emit(p)
	}
}

var statsHeader = []string{
	"video_start_frame_number",
	"video_frame_count",
	"audio_actual_sample_count",
	"audio_expected_sample_count",
	"audio_diff_sample_count",
	"audio_accumulated_diff_sample_count",
	"audio_accumulated_diff_seconds",
	"audio_missing_frames",
}

// StatsWriter writes drift statistics as CSV, one row per period.
type StatsWriter struct {
	w      *csv.Writer
	header bool
}

// NewStatsWriter wraps w.
func NewStatsWriter(w io.Writer) *StatsWriter {
	return &StatsWriter{w: csv.NewWriter(w)}
}

// Write appends one period row, writing the header first.
func (s *StatsWriter) Write(p PeriodStats) error {
	if !s.header {
		if err := s.w.Write(statsHeader); err != nil {
			return err
		}
		s.header = true
	}
	missing := make([]string, len(p.Missing))
	for i, m := range p.Missing {
		missing[i] = strconv.FormatInt(m, 10)
	}
	return s.w.Write([]string{
		strconv.FormatInt(p.StartFrame, 10),
		strconv.Itoa(p.Frames),
		strconv.FormatInt(p.Actual, 10),
		strconv.FormatInt(p.Expected, 10),
		strconv.FormatInt(p.Diff, 10),
		strconv.FormatInt(p.AccumulatedDiff, 10),
		strconv.FormatFloat(p.AccumulatedSeconds, 'f', 6, 64),
		strings.Join(missing, " "),
	})
}

// Flush writes buffered rows and reports any write error.
func (s *StatsWriter) Flush() error {
	if !s.header {
		if err := s.w.Write(statsHeader); err != nil {
			return err
		}
		s.header = true
	}
	s.w.Flush()
	return s.w.Error()
}
