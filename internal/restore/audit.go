package restore

import (
	"context"
	"log/slog"

	"dvrestore/internal/faults"
	"dvrestore/internal/journal"
	"dvrestore/internal/logging"
	"dvrestore/internal/repair"
	"dvrestore/internal/resync"
)

// auditBatch is the number of buffered rows per kind that triggers a journal write.
const auditBatch = 512

// recorder buffers audit rows and writes them to the journal in batches.
// A journal failure is reported once and disables further writes; the
// restore itself carries on.
type recorder struct {
	store  *journal.Store
	runID  string
	logger *slog.Logger

	frames      []repair.FrameSummary
	blocks      []repair.IrrecoverableBlock
	corrections []resync.Correction
	diags       []faults.Diagnostic

	counts map[faults.Kind]int
	failed bool
}

func newRecorder(store *journal.Store, runID string, logger *slog.Logger) *recorder {
	return &recorder{store: store, runID: runID, logger: logger, counts: make(map[faults.Kind]int)}
}

func (r *recorder) enabled() bool { return r.store != nil && !r.failed }

func (r *recorder) frame(ctx context.Context, s repair.FrameSummary) {
	if !r.enabled() {
		return
	}
	r.frames = append(r.frames, s)
	if len(r.frames) >= auditBatch {
		r.flush(ctx)
	}
}

func (r *recorder) irrecoverable(ctx context.Context, b repair.IrrecoverableBlock) {
	r.diagnostic(ctx, faults.Irrecoverable(b.Frame, b.Block, b.Kind.String()))
	if !r.enabled() {
		return
	}
	r.blocks = append(r.blocks, b)
	if len(r.blocks) >= auditBatch {
		r.flush(ctx)
	}
}

func (r *recorder) correction(ctx context.Context, c resync.Correction) {
	if !r.enabled() {
		return
	}
	r.corrections = append(r.corrections, c)
	if len(r.corrections) >= auditBatch {
		r.flush(ctx)
	}
}

func (r *recorder) diagnostic(ctx context.Context, d faults.Diagnostic) {
	r.counts[d.Kind]++
	if !r.enabled() {
		return
	}
	r.diags = append(r.diags, d)
	if len(r.diags) >= auditBatch {
		r.flush(ctx)
	}
}

// flush writes every buffered row. ctx should outlive a cancelled run so the
// audit of the committed prefix is kept.
func (r *recorder) flush(ctx context.Context) {
	if !r.enabled() {
		return
	}
	err := r.write(ctx)
	if err != nil {
		r.failed = true
		logging.WarnWithContext(r.logger, "journal write failed; audit disabled for this run", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check journal_path permissions and free space"),
			logging.String(logging.FieldImpact, "outputs are still written but the run audit is incomplete"),
		)
	}
}

func (r *recorder) write(ctx context.Context) error {
	if len(r.frames) > 0 {
		if err := r.store.RecordFrames(ctx, r.runID, r.frames); err != nil {
			return err
		}
		r.frames = r.frames[:0]
	}
	if len(r.blocks) > 0 {
		if err := r.store.RecordIrrecoverable(ctx, r.runID, r.blocks); err != nil {
			return err
		}
		r.blocks = r.blocks[:0]
	}
	if len(r.corrections) > 0 {
		if err := r.store.RecordCorrections(ctx, r.runID, r.corrections); err != nil {
			return err
		}
		r.corrections = r.corrections[:0]
	}
	if len(r.diags) > 0 {
		if err := r.store.RecordDiagnostics(ctx, r.runID, r.diags); err != nil {
			return err
		}
		r.diags = r.diags[:0]
	}
	return nil
}
