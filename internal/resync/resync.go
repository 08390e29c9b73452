package resync

import (
	"context"
	"fmt"
	"log/slog"

	"dvrestore/internal/faults"
	"dvrestore/internal/logging"
	"dvrestore/internal/merge"
)

// Direction classifies a correction.
type Direction string

const (
	// Surplus means samples were dropped from the tail of a window.
	Surplus Direction = "surplus"
	// Deficit means unknown samples were appended to a window.
	Deficit Direction = "deficit"
	// Conceal means unknown samples inside a window were interpolated.
	Conceal Direction = "conceal"
)

// Correction reasons beyond a plain count mismatch.
const (
	ReasonMissingFrame = "missing_frame"
	ReasonNoSource     = "no_aaux"
)

// Correction is one entry of the audio correction log.
type Correction struct {
	Frame     int64
	Direction Direction
	Count     int
	Reason    string
}

// Options configures a Resynchronizer.
type Options struct {
	// DefaultRate applies when the first frame carries no readable source pack.
	DefaultRate int
	// FillMissingFrames emits interpolated audio for indexes no capture covered.
	FillMissingFrames bool
	Logger            *slog.Logger
}

// Output receives the fold's products. Start is called once, before any
// samples, when the layout is known. Every field may be nil.
type Output struct {
	Start      func(Layout, Schedule) error
	Samples    func(channels [][]int16) error
	Correction func(Correction)
	Diagnostic func(faults.Diagnostic)
	Period     func(PeriodStats)
}

// Totals summarizes a resync run.
type Totals struct {
	Frames        int64
	MissingFrames int64
	Samples       int64
	Surplus       int64
	Deficit       int64
	Concealed     int64
	Mismatches    int64
}

// Resynchronizer is the audio fold. Frames must arrive in increasing
// FrameIndex order.
type Resynchronizer struct {
	opts   Options
	out    Output
	logger *slog.Logger

	started  bool
	layout   Layout
	schedule Schedule
	channels []channel
	base     int64
	last     int64
	stats    *periodAccumulator
	totals   Totals
	closed   bool
}

// New returns a fold. The layout and schedule are fixed by the first frame.
func New(opts Options, out Output) *Resynchronizer {
	if opts.DefaultRate == 0 {
		opts.DefaultRate = 48000
	}
	return &Resynchronizer{opts: opts, out: out, logger: logging.NewComponentLogger(opts.Logger, "resync")}
}

// Layout returns the output layout; valid after the first Push.
func (r *Resynchronizer) Layout() Layout { return r.layout }

// Schedule returns the sample schedule; valid after the first Push.
func (r *Resynchronizer) Schedule() Schedule { return r.schedule }

// Totals returns the running totals.
func (r *Resynchronizer) Totals() Totals { return r.totals }

func (r *Resynchronizer) start(f *merge.MergedFrame) error {
	r.layout = DetectLayout(f, r.opts.DefaultRate)
	sched, err := NewSchedule(f.Format.System, r.layout.Rate)
	if err != nil {
		return err
	}
	r.schedule = sched
	r.channels = make([]channel, r.layout.Channels())
	r.stats = newPeriodAccumulator(sched, r.emitPeriod)
	r.started = true
	r.logger.Info("audio layout detected",
		logging.String("format", f.Format.String()),
		logging.Int("sample_rate", r.layout.Rate),
		logging.Int("channels", r.layout.Channels()),
		logging.Int("schedule_period", sched.Period()),
	)
	if r.out.Start != nil {
		return r.out.Start(r.layout, sched)
	}
	return nil
}

// Push folds one repaired frame.
func (r *Resynchronizer) Push(ctx context.Context, f *merge.MergedFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.closed {
		return fmt.Errorf("resync: push after close")
	}
	if !r.started {
		if err := r.start(f); err != nil {
			return err
		}
	} else {
		if f.Index <= r.last {
			return fmt.Errorf("resync: frame index %d does not follow %d", f.Index, r.last)
		}
		for m := r.last + 1; m < f.Index; m++ {
			r.missing(m)
		}
	}
	r.last = f.Index

	w := ExtractWindow(f, r.layout)
	expected := r.schedule.Expected(f.Index)
	reason := ""
	switch {
	case !w.HasSource:
		reason = ReasonNoSource
		r.mismatch(f.Index, "no readable AAUX source pack")
	case w.Source.SampleRate != r.layout.Rate:
		r.mismatch(f.Index, fmt.Sprintf("sample rate %d Hz differs from stream rate %d Hz", w.Source.SampleRate, r.layout.Rate))
	case !r.schedule.InBand(w.Count):
		band := r.schedule.Band()
		r.mismatch(f.Index, fmt.Sprintf("%d samples outside %d..%d", w.Count, band.Min, band.Max))
	}

	if unknown := w.Unknown(); unknown > 0 {
		r.correct(Correction{Frame: f.Index, Direction: Conceal, Count: unknown})
		r.totals.Concealed += int64(unknown)
	}
	r.stats.add(f.Index, int64(w.Count), int64(expected), false)
	r.totals.Frames++

	switch {
	case w.Count > expected:
		for c := range w.Samples {
			w.Samples[c] = w.Samples[c][:expected]
			w.Known[c] = w.Known[c][:expected]
		}
		r.correct(Correction{Frame: f.Index, Direction: Surplus, Count: w.Count - expected})
		r.totals.Surplus += int64(w.Count - expected)
	case w.Count < expected:
		pad := expected - w.Count
		for c := range w.Samples {
			w.Samples[c] = append(w.Samples[c], make([]int16, pad)...)
			w.Known[c] = append(w.Known[c], make([]bool, pad)...)
		}
		r.correct(Correction{Frame: f.Index, Direction: Deficit, Count: pad, Reason: reason})
		r.totals.Deficit += int64(pad)
	}
	r.append(w.Samples, w.Known, expected)
	return r.release(false)
}

func (r *Resynchronizer) missing(m int64) {
	expected := r.schedule.Expected(m)
	r.totals.MissingFrames++
	if !r.opts.FillMissingFrames {
		r.stats.add(m, 0, int64(expected), true)
		return
	}
	r.stats.add(m, int64(expected), int64(expected), true)
	samples := make([][]int16, len(r.channels))
	known := make([][]bool, len(r.channels))
	for c := range samples {
		samples[c] = make([]int16, expected)
		known[c] = make([]bool, expected)
	}
	r.correct(Correction{Frame: m, Direction: Deficit, Count: expected, Reason: ReasonMissingFrame})
	r.totals.Deficit += int64(expected)
	r.append(samples, known, expected)
}

func (r *Resynchronizer) append(samples [][]int16, known [][]bool, n int) {
	for c := range r.channels {
		r.channels[c].push(samples[c], known[c], r.base)
	}
	r.totals.Samples += int64(n)
}

// release hands every final sample to the output. At the end of the stream
// trailing unknown runs are held first.
func (r *Resynchronizer) release(final bool) error {
	if len(r.channels) == 0 {
		return nil
	}
	n := -1
	for c := range r.channels {
		if final {
			r.channels[c].finish()
		}
		if n < 0 || r.channels[c].done < n {
			n = r.channels[c].done
		}
	}
	if n <= 0 {
		return nil
	}
	out := make([][]int16, len(r.channels))
	for c := range r.channels {
		out[c] = r.channels[c].take(n)
	}
	r.base += int64(n)
	if r.out.Samples == nil {
		return nil
	}
	return r.out.Samples(out)
}

func (r *Resynchronizer) mismatch(frame int64, detail string) {
	r.totals.Mismatches++
	d := faults.ScheduleMismatch(frame, detail)
	logging.WarnWithContext(r.logger, "audio window outside schedule", "resync_schedule_mismatch",
		append(logging.Diagnostic(d),
			logging.String(logging.FieldErrorHint, "check the capture for a format change or heavy audio dropout"),
			logging.String(logging.FieldImpact, "window corrected to the expected sample count"),
		)...,
	)
	if r.out.Diagnostic != nil {
		r.out.Diagnostic(d)
	}
}

func (r *Resynchronizer) correct(c Correction) {
	r.logger.Debug("audio correction",
		logging.FrameIndex(c.Frame),
		logging.String("direction", string(c.Direction)),
		logging.Int("count", c.Count),
		logging.String("reason", c.Reason),
	)
	if r.out.Correction != nil {
		r.out.Correction(c)
	}
}

// Close releases held samples and the last statistics period.
func (r *Resynchronizer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if !r.started {
		return nil
	}
	if err := r.release(true); err != nil {
		return err
	}
	r.stats.flush()
	r.logger.Info("audio resync completed",
		logging.Int64("frames", r.totals.Frames),
		logging.Int64("samples", r.totals.Samples),
		logging.Int64("surplus_samples", r.totals.Surplus),
		logging.Int64("deficit_samples", r.totals.Deficit),
		logging.Int64("concealed_samples", r.totals.Concealed),
		logging.Int64("missing_frames", r.totals.MissingFrames),
		logging.Int64("schedule_mismatches", r.totals.Mismatches),
	)
	return nil
}

func (r *Resynchronizer) emitPeriod(p PeriodStats) {
	if r.out.Period != nil {
		r.out.Period(p)
	}
}

// Result is the materialized output of Resync.
type Result struct {
	Layout      Layout
	Schedule    Schedule
	Samples     [][]int16
	Corrections []Correction
	Diagnostics []faults.Diagnostic
	Periods     []PeriodStats
	Totals      Totals
}

// Resync runs the fold over frames and collects its output.
func Resync(ctx context.Context, frames []*merge.MergedFrame, opts Options) (*Result, error) {
	res := &Result{}
	r := New(opts, Output{
		Start: func(l Layout, s Schedule) error {
			res.Layout, res.Schedule = l, s
			res.Samples = make([][]int16, l.Channels())
			return nil
		},
		Samples: func(channels [][]int16) error {
			for c := range channels {
				res.Samples[c] = append(res.Samples[c], channels[c]...)
			}
			return nil
		},
		Correction: func(c Correction) { res.Corrections = append(res.Corrections, c) },
		Diagnostic: func(d faults.Diagnostic) { res.Diagnostics = append(res.Diagnostics, d) },
		Period:     func(p PeriodStats) { res.Periods = append(res.Periods, p) },
	})
	for _, f := range frames {
		if err := r.Push(ctx, f); err != nil {
			res.Totals = r.Totals()
			return res, err
		}
	}
	err := r.Close()
	res.Totals = r.Totals()
	return res, err
}
