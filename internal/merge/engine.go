package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/logging"
	"dvrestore/internal/quality"
)

// Strategy selects how competing valid blocks are chosen.
type Strategy string

const (
	// StrategyScore takes each block from the cleanest frame holding it valid.
	StrategyScore Strategy = "score"
	// StrategyVote prefers block content that two or more captures agree on.
	StrategyVote Strategy = "vote"
)

// ParseStrategy maps a config value onto a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyScore, "":
		return StrategyScore, nil
	case StrategyVote:
		return StrategyVote, nil
	default:
		return "", fmt.Errorf("%w: unknown merge strategy %q", faults.ErrInvalidInput, value)
	}
}

const stageName = "merge"

// Options configures an Engine.
type Options struct {
	Strategy  Strategy
	Workers   int
	BatchSize int
	Logger    *slog.Logger
}

// Engine merges capture passes.
type Engine struct {
	strategy  Strategy
	workers   int
	batchSize int
	logger    *slog.Logger
}

// NewEngine constructs an engine, filling zero options with defaults.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		strategy:  opts.Strategy,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		logger:    logging.NewComponentLogger(opts.Logger, "merge"),
	}
	if e.strategy == "" {
		e.strategy = StrategyScore
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.batchSize <= 0 {
		e.batchSize = 64
	}
	return e
}

// Sink receives merge output strictly in FrameIndex order. Diagnostics for an
// index are delivered before its frame. Diagnostic may be nil.
type Sink struct {
	Frame      func(*MergedFrame) error
	Diagnostic func(faults.Diagnostic)
}

// Stats summarizes a merge.
type Stats struct {
	Frames     int64
	Missing    int64
	Malformed  int64
	Unresolved int64
	First      int64
	Last       int64
}

// Result is the materialized output of Merge.
type Result struct {
	Frames      []*MergedFrame
	Diagnostics []faults.Diagnostic
	Stats       Stats
}

// Merge runs Stream and collects its output. On cancellation the result holds
// every frame emitted before the engine stopped.
func (e *Engine) Merge(ctx context.Context, sources []Source) (*Result, error) {
	res := &Result{}
	stats, err := e.Stream(ctx, sources, Sink{
		Frame: func(f *MergedFrame) error {
			res.Frames = append(res.Frames, f)
			return nil
		},
		Diagnostic: func(d faults.Diagnostic) {
			res.Diagnostics = append(res.Diagnostics, d)
		},
	})
	res.Stats = stats
	return res, err
}

type candidate struct {
	ordinal int
	label   string
	entry   Entry
}

type slot struct {
	index int64
	pre   []faults.Diagnostic
	cands []candidate
}

type outcome struct {
	frame *MergedFrame
	diags []faults.Diagnostic
}

type pulled struct {
	entry Entry
	err   error
}

// Stream merges sources and hands the output to sink. Captures are read
// concurrently; frames are decoded and merged in parallel batches and emitted
// in order. It returns faults.ErrNoUsableFrames when no capture contributed a
// decodable frame.
func (e *Engine) Stream(ctx context.Context, sources []Source, sink Sink) (Stats, error) {
	var stats Stats
	if len(sources) == 0 {
		return stats, faults.Wrap(faults.ErrInvalidInput, stageName, "stream", "no captures supplied", nil)
	}
	format := sources[0].Format()
	for _, src := range sources[1:] {
		if src.Format() != format {
			return stats, faults.Wrap(faults.ErrInvalidInput, stageName, "stream",
				fmt.Sprintf("capture %s is %s, capture %s is %s", sources[0].Label(), format, src.Label(), src.Format()), nil)
		}
	}
	strategy := e.strategy
	if strategy == StrategyVote && len(sources) < 3 {
		logging.WarnWithContext(e.logger, "vote strategy needs three captures; using score", "merge_vote_fallback",
			logging.Int("captures", len(sources)),
			logging.String(logging.FieldErrorHint, "supply at least three captures to enable voting"),
			logging.String(logging.FieldImpact, "blocks are chosen by frame score"),
		)
		strategy = StrategyScore
	}

	feedCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	feeders, feedCtx := errgroup.WithContext(feedCtx)
	feeds := make([]chan pulled, len(sources))
	for i, src := range sources {
		ch := make(chan pulled, e.batchSize)
		feeds[i] = ch
		feeders.Go(func() error {
			defer close(ch)
			for {
				entry, err := src.Next(feedCtx)
				if errors.Is(err, io.EOF) {
					return nil
				}
				select {
				case ch <- pulled{entry: entry, err: err}:
				case <-feedCtx.Done():
					return nil
				}
				if err != nil {
					return nil
				}
			}
		})
	}

	a := &assembler{engine: e, ctx: ctx, sources: sources, feeds: feeds, format: format, strategy: strategy, sink: sink, stats: &stats}
	err := a.run()
	cancel()
	_ = feeders.Wait()

	logger := logging.WithContext(ctx, e.logger)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("merge stopped", logging.Int64("frames", stats.Frames), logging.Error(err))
			return stats, ctx.Err()
		}
		return stats, err
	}
	if stats.Frames == 0 {
		return stats, faults.Wrap(faults.ErrNoUsableFrames, stageName, "stream", "no capture contained a decodable frame", nil)
	}
	logger.Info("merge completed",
		logging.Int64("frames", stats.Frames),
		logging.Int64("first_index", stats.First),
		logging.Int64("last_index", stats.Last),
		logging.Int64("missing_frames", stats.Missing),
		logging.Int64("malformed_frames", stats.Malformed),
		logging.Int64("unresolved_blocks", stats.Unresolved),
	)
	return stats, nil
}

type assembler struct {
	engine   *Engine
	ctx      context.Context
	sources  []Source
	feeds    []chan pulled
	format   dv.Format
	strategy Strategy
	sink     Sink
	stats    *Stats

	heads   []*Entry
	lastIn  []int64
	seenIn  []bool
	pending []faults.Diagnostic
	started bool
	last    int64
	emitted bool
}

func (a *assembler) run() error {
	n := len(a.sources)
	a.heads = make([]*Entry, n)
	a.lastIn = make([]int64, n)
	a.seenIn = make([]bool, n)
	for i := range a.sources {
		if err := a.advance(i); err != nil {
			return err
		}
	}

	batch := make([]*slot, 0, a.engine.batchSize)
	for {
		if err := a.ctx.Err(); err != nil {
			return err
		}
		idx, ok := a.minHead()
		if !ok {
			break
		}
		s := &slot{index: idx, pre: a.pending}
		a.pending = nil
		if a.started {
			for m := a.last + 1; m < idx; m++ {
				s.pre = append(s.pre, faults.MissingFrame(m))
			}
		}
		for i, h := range a.heads {
			if h == nil || h.Index != idx {
				continue
			}
			s.cands = append(s.cands, candidate{ordinal: i, label: a.sources[i].Label(), entry: *h})
			if err := a.advance(i); err != nil {
				return err
			}
		}
		a.started = true
		a.last = idx
		batch = append(batch, s)
		if len(batch) >= a.engine.batchSize {
			if err := a.flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := a.flush(batch); err != nil {
		return err
	}
	for _, d := range a.pending {
		a.report(d)
	}
	return nil
}

// advance pulls the next in-order entry of capture i into its head slot.
func (a *assembler) advance(i int) error {
	for {
		var p pulled
		var ok bool
		select {
		case p, ok = <-a.feeds[i]:
		case <-a.ctx.Done():
			return a.ctx.Err()
		}
		if !ok {
			a.heads[i] = nil
			return nil
		}
		if p.err != nil {
			return faults.Wrap(faults.ErrIO, stageName, "read capture", a.sources[i].Label(), p.err)
		}
		if a.seenIn[i] && p.entry.Index <= a.lastIn[i] {
			a.pending = append(a.pending, faults.MalformedFrame(a.sources[i].Label(), p.entry.Index,
				fmt.Errorf("frame index %d does not follow %d", p.entry.Index, a.lastIn[i])))
			continue
		}
		a.seenIn[i] = true
		a.lastIn[i] = p.entry.Index
		entry := p.entry
		a.heads[i] = &entry
		return nil
	}
}

func (a *assembler) minHead() (int64, bool) {
	var idx int64
	found := false
	for _, h := range a.heads {
		if h != nil && (!found || h.Index < idx) {
			idx, found = h.Index, true
		}
	}
	return idx, found
}

func (a *assembler) flush(batch []*slot) error {
	if len(batch) == 0 {
		return nil
	}
	results := make([]outcome, len(batch))
	g, gctx := errgroup.WithContext(a.ctx)
	g.SetLimit(a.engine.workers)
	for k, s := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[k] = mergeIndex(a.format, a.strategy, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for k, s := range batch {
		if err := a.ctx.Err(); err != nil {
			return err
		}
		for _, d := range s.pre {
			a.report(d)
		}
		for _, d := range results[k].diags {
			a.report(d)
		}
		f := results[k].frame
		if f == nil {
			if a.emitted {
				a.report(faults.MissingFrame(s.index))
			}
			continue
		}
		a.stats.Unresolved += int64(f.Count(OriginUnresolved))
		if !a.emitted {
			a.stats.First = f.Index
			a.emitted = true
		}
		a.stats.Last = f.Index
		a.stats.Frames++
		if a.sink.Frame != nil {
			if err := a.sink.Frame(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *assembler) report(d faults.Diagnostic) {
	switch d.Kind {
	case faults.KindMissingFrame:
		if !a.emitted {
			return
		}
		a.stats.Missing++
		logging.WarnWithContext(a.engine.logger, "frame missing from every capture", "merge_missing_frame",
			logging.FrameIndex(d.Frame),
			logging.String(logging.FieldErrorHint, "recapture the affected tape section"),
			logging.String(logging.FieldImpact, "no output frame is written for this index"),
		)
	case faults.KindMalformedFrame:
		a.stats.Malformed++
		logging.WarnWithContext(a.engine.logger, "capture frame malformed", "merge_malformed_frame",
			append(logging.Diagnostic(d), logging.String(logging.FieldImpact, "capture ignored at this index"))...,
		)
	}
	if a.sink.Diagnostic != nil {
		a.sink.Diagnostic(d)
	}
}

type decoded struct {
	ordinal int
	frame   *dv.Frame
	score   quality.Score
}

// mergeIndex decodes every candidate at one index and selects each block.
func mergeIndex(format dv.Format, strategy Strategy, s *slot) outcome {
	var out outcome
	cands := make([]decoded, 0, len(s.cands))
	for _, c := range s.cands {
		if c.entry.Err != nil {
			out.diags = append(out.diags, faults.MalformedFrame(c.label, s.index, c.entry.Err))
			continue
		}
		f, err := dv.Decode(format, c.entry.Raw, c.entry.Errors)
		if err != nil {
			out.diags = append(out.diags, faults.MalformedFrame(c.label, s.index, err))
			continue
		}
		cands = append(cands, decoded{ordinal: c.ordinal, frame: f, score: quality.Of(f)})
	}
	if len(cands) == 0 {
		return out
	}
	rank(cands)

	mf := newMergedFrame(s.index, format)
	mf.Best = cands[0].score
	for _, c := range cands {
		mf.Captures = append(mf.Captures, c.ordinal)
	}
	for b := 0; b < format.BlockCount(); b++ {
		w := pickScore(cands, b)
		if strategy == StrategyVote {
			w = pickVote(cands, b, w)
		}
		if w < 0 {
			mf.Provenance[b] = Provenance{Origin: OriginUnresolved, Capture: NoCapture, Frame: s.index, Block: b}
			continue
		}
		mf.SetBlock(b, cands[w].frame.Block(b), Provenance{Origin: OriginCapture, Capture: cands[w].ordinal, Frame: s.index, Block: b})
	}
	out.frame = mf
	return out
}
