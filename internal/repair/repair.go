package repair

import (
	"context"
	"fmt"
	"log/slog"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/logging"
	"dvrestore/internal/merge"
)

// Policy switches the individual concealment steps.
type Policy struct {
	RedundantAudio   bool
	RedundantSubcode bool
	Temporal         bool
	// MaxDistance bounds the temporal search in frames; zero is unlimited.
	MaxDistance int
}

// DefaultPolicy enables every step without a distance bound.
func DefaultPolicy() Policy {
	return Policy{RedundantAudio: true, RedundantSubcode: true, Temporal: true}
}

// FrameSummary counts how each block of an output frame was obtained.
type FrameSummary struct {
	Index              int64
	Merged             int
	ConcealedRedundant int
	ConcealedTemporal  int
	Irrecoverable      int
}

// IrrecoverableBlock locates a block that no policy could conceal.
type IrrecoverableBlock struct {
	Frame    int64
	Block    int
	Position dv.Position
	Kind     dv.Kind
	Offset   int
	Length   int
}

// Totals sums frame summaries.
type Totals struct {
	Frames             int64
	Merged             int64
	ConcealedRedundant int64
	ConcealedTemporal  int64
	Irrecoverable      int64
}

// Add folds one summary into the totals.
func (t *Totals) Add(s FrameSummary) {
	t.Frames++
	t.Merged += int64(s.Merged)
	t.ConcealedRedundant += int64(s.ConcealedRedundant)
	t.ConcealedTemporal += int64(s.ConcealedTemporal)
	t.Irrecoverable += int64(s.Irrecoverable)
}

// Options configures an Engine.
type Options struct {
	Policy Policy
	Logger *slog.Logger
}

// Engine runs the concealment fold.
type Engine struct {
	policy Policy
	logger *slog.Logger
}

// NewEngine constructs an engine.
func NewEngine(opts Options) *Engine {
	return &Engine{policy: opts.Policy, logger: logging.NewComponentLogger(opts.Logger, "repair")}
}

// Result is the materialized output of Repair.
type Result struct {
	Frames        []*merge.MergedFrame
	Summaries     []FrameSummary
	Irrecoverable []IrrecoverableBlock
	Diagnostics   []faults.Diagnostic
	Totals        Totals
}

// Repair conceals every frame of merged, which must be in increasing
// FrameIndex order. Frames are modified in place. On cancellation the result
// holds the repaired prefix and the error is ctx.Err().
func (e *Engine) Repair(ctx context.Context, merged []*merge.MergedFrame) (*Result, error) {
	res := &Result{}
	r := e.NewRepairer(Output{
		Frame: func(f *merge.MergedFrame, s FrameSummary) error {
			res.Frames = append(res.Frames, f)
			res.Summaries = append(res.Summaries, s)
			res.Totals.Add(s)
			return nil
		},
		Irrecoverable: func(b IrrecoverableBlock) {
			res.Irrecoverable = append(res.Irrecoverable, b)
			res.Diagnostics = append(res.Diagnostics, faults.Irrecoverable(b.Frame, b.Block, b.Kind.String()))
		},
	})
	for _, f := range merged {
		if err := r.Push(ctx, f); err != nil {
			return res, err
		}
	}
	return res, r.Close(ctx)
}

// Output receives repaired frames in order. Irrecoverable may be nil.
type Output struct {
	Frame         func(*merge.MergedFrame, FrameSummary) error
	Irrecoverable func(IrrecoverableBlock)
}

type reference struct {
	index int64
	data  []byte
	prov  merge.Provenance
}

// Repairer is the streaming form of the fold. It holds back a frame only
// while a nearer following frame could still supply one of its blocks.
type Repairer struct {
	policy Policy
	logger *slog.Logger
	out    Output

	queue []*pendingFrame
	// last resolved content per temporally concealable block position
	last   map[int]reference
	closed bool
}

type pendingFrame struct {
	frame     *merge.MergedFrame
	redundant int
}

// NewRepairer returns a fold that hands frames to out as soon as their
// concealment sources are settled.
func (e *Engine) NewRepairer(out Output) *Repairer {
	return &Repairer{policy: e.policy, logger: e.logger, out: out, last: make(map[int]reference)}
}

// Push adds the next merged frame.
func (r *Repairer) Push(ctx context.Context, f *merge.MergedFrame) error {
	if r.closed {
		return fmt.Errorf("repair: push after close")
	}
	if n := len(r.queue); n > 0 && f.Index <= r.queue[n-1].frame.Index {
		return fmt.Errorf("repair: frame index %d does not follow %d", f.Index, r.queue[n-1].frame.Index)
	}
	p := &pendingFrame{frame: f}
	p.redundant = r.concealRedundant(f)
	r.queue = append(r.queue, p)
	return r.drain(ctx)
}

// Close flushes every held frame.
func (r *Repairer) Close(ctx context.Context) error {
	r.closed = true
	return r.drain(ctx)
}

func (r *Repairer) drain(ctx context.Context) error {
	for len(r.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		head := r.queue[0]
		if !r.closed && !r.settled(head.frame) {
			return nil
		}
		r.queue[0] = nil
		r.queue = r.queue[1:]
		if err := r.finish(head); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repairer) temporalKind(k dv.Kind) bool {
	return r.policy.Temporal && (k == dv.KindHeader || k == dv.KindSubcode || k == dv.KindVAUX)
}

func (r *Repairer) redundantKind(k dv.Kind) bool {
	switch k {
	case dv.KindAudio:
		return r.policy.RedundantAudio
	case dv.KindSubcode:
		return r.policy.RedundantSubcode
	}
	return false
}

// concealRedundant copies resolved partners into unresolved blocks.
func (r *Repairer) concealRedundant(f *merge.MergedFrame) int {
	n := 0
	for _, b := range f.Unresolved() {
		if !r.redundantKind(f.Format.KindAt(b)) {
			continue
		}
		partner, ok := f.Format.Redundant(b)
		if !ok || !f.Resolved(partner) {
			continue
		}
		src := f.Provenance[partner]
		f.SetBlock(b, f.Block(partner), merge.Provenance{Origin: merge.OriginRedundant, Capture: src.Capture, Frame: f.Index, Block: partner})
		n++
	}
	return n
}

// maxLookahead caps how many frames a held frame waits for a following
// source, so a block that is bad from the first frame on cannot hold back
// the whole stream. About ten seconds of NTSC.
const maxLookahead = 300

// limit returns how far ahead a following source may lie for block b of a
// frame at index.
func (r *Repairer) limit(index int64, b int) int64 {
	limit := int64(maxLookahead)
	if ref, ok := r.last[b]; ok {
		// a following source must be strictly nearer than the preceding one
		limit = min(limit, index-ref.index-1)
	}
	if r.policy.MaxDistance > 0 {
		limit = min(limit, int64(r.policy.MaxDistance))
	}
	return limit
}

// settled reports whether the queue already extends far enough to decide
// every temporal concealment of the head frame.
func (r *Repairer) settled(f *merge.MergedFrame) bool {
	if !r.policy.Temporal {
		return true
	}
	tail := r.queue[len(r.queue)-1].frame.Index
	for _, b := range f.Unresolved() {
		if !r.temporalKind(f.Format.KindAt(b)) {
			continue
		}
		if tail-f.Index >= r.limit(f.Index, b) {
			continue
		}
		if _, ok := r.following(f.Index, b, r.limit(f.Index, b)); !ok {
			return false
		}
	}
	return true
}

// following returns the nearest queued frame after index, at most limit
// frames away, whose block b came from a capture or its in-frame partner.
// Temporally concealed blocks are never chained.
func (r *Repairer) following(index int64, b int, limit int64) (*merge.MergedFrame, bool) {
	for _, p := range r.queue {
		f := p.frame
		if f.Index <= index {
			continue
		}
		if f.Index-index > limit {
			return nil, false
		}
		switch f.Provenance[b].Origin {
		case merge.OriginCapture, merge.OriginRedundant:
			return f, true
		}
	}
	return nil, false
}

func (r *Repairer) concealTemporal(f *merge.MergedFrame) int {
	n := 0
	for _, b := range f.Unresolved() {
		if !r.temporalKind(f.Format.KindAt(b)) {
			continue
		}
		limit := r.limit(f.Index, b)
		if next, ok := r.following(f.Index, b, limit); ok {
			src := next.Provenance[b]
			f.SetBlock(b, next.Block(b), merge.Provenance{Origin: merge.OriginTemporal, Capture: src.Capture, Frame: next.Index, Block: b})
			n++
			continue
		}
		ref, ok := r.last[b]
		if !ok {
			continue
		}
		if r.policy.MaxDistance > 0 && f.Index-ref.index > int64(r.policy.MaxDistance) {
			continue
		}
		f.SetBlock(b, ref.data, merge.Provenance{Origin: merge.OriginTemporal, Capture: ref.prov.Capture, Frame: ref.index, Block: b})
		n++
	}
	return n
}

func (r *Repairer) finish(p *pendingFrame) error {
	f := p.frame
	summary := FrameSummary{Index: f.Index}
	temporal := r.concealTemporal(f)
	redundant := p.redundant + r.concealRedundant(f)

	for _, b := range f.Unresolved() {
		r.zeroFill(f, b)
		summary.Irrecoverable++
		if r.out.Irrecoverable != nil {
			r.out.Irrecoverable(IrrecoverableBlock{
				Frame:    f.Index,
				Block:    b,
				Position: f.Format.Position(b),
				Kind:     f.Format.KindAt(b),
				Offset:   b * dv.BlockSize,
				Length:   dv.BlockSize,
			})
		}
	}
	summary.Merged = f.Count(merge.OriginCapture)
	summary.ConcealedRedundant = redundant
	summary.ConcealedTemporal = temporal

	if r.policy.Temporal {
		for b := range f.Provenance {
			if r.temporalKind(f.Format.KindAt(b)) && f.Resolved(b) {
				ref := r.last[b]
				ref.index = f.Index
				ref.data = append(ref.data[:0], f.Block(b)...)
				ref.prov = f.Provenance[b]
				r.last[b] = ref
			}
		}
	}

	if summary.Irrecoverable > 0 {
		logging.WarnWithContext(r.logger, "blocks could not be concealed", "repair_irrecoverable",
			logging.FrameIndex(f.Index),
			logging.Int("irrecoverable_blocks", summary.Irrecoverable),
			logging.String(logging.FieldErrorHint, "add another capture pass covering this frame"),
			logging.String(logging.FieldImpact, "blocks are written as lost and play back as dropouts"),
		)
	} else if summary.ConcealedRedundant+summary.ConcealedTemporal > 0 {
		r.logger.Debug("concealed blocks",
			logging.FrameIndex(f.Index),
			logging.Int("concealed_redundant", summary.ConcealedRedundant),
			logging.Int("concealed_temporal", summary.ConcealedTemporal),
		)
	}
	if r.out.Frame == nil {
		return nil
	}
	return r.out.Frame(f, summary)
}

// zeroFill writes an empty block with its static ID so it re-reads as
// invalid. Video blocks carry the "error, not concealed" status and audio
// blocks carry the error code in every sample slot.
func (r *Repairer) zeroFill(f *merge.MergedFrame, b int) {
	block := f.Block(b)
	clear(block)
	f.Format.ExpectedID(b).Put(block)
	switch f.Format.KindAt(b) {
	case dv.KindVideo:
		block[3] = 0xF0
	case dv.KindAudio:
		dv.MarkAudioLost(f.Format, f.Data, b, f.Resolved)
	}
	f.Provenance[b] = merge.Provenance{Origin: merge.OriginIrrecoverable, Capture: merge.NoCapture, Frame: f.Index, Block: b}
}
