package metadata

import (
	"fmt"
	"io"
	"log/slog"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/logging"
)

// RewriteStats counts what a Rewriter did.
type RewriteStats struct {
	Frames  int64
	Patched int64
	// Unmatched counts table rows whose frame never arrived.
	Unmatched int64
}

// Rewriter copies frames to w, patching each one whose table row differs
// from the metadata the frame carries. Frames without a row pass unchanged.
type Rewriter struct {
	w      io.Writer
	table  Table
	next   int
	stats  RewriteStats
	logger *slog.Logger
}

// NewRewriter returns a Rewriter applying t.
func NewRewriter(w io.Writer, t Table, logger *slog.Logger) *Rewriter {
	return &Rewriter{w: w, table: t, logger: logging.NewComponentLogger(logger, "metadata")}
}

// Frame handles the next frame of the stream. Frames must arrive in
// increasing index order.
func (r *Rewriter) Frame(index int64, f *dv.Frame) error {
	format := f.Format()
	if len(r.table.Rows) > 0 && format.System != r.table.System {
		return faults.Wrap(faults.ErrInvalidInput, "metadata", "rewrite",
			fmt.Sprintf("table is for %s but the stream is %s", r.table.System, format.System), nil)
	}
	for r.next < len(r.table.Rows) && r.table.Rows[r.next].Index < index {
		r.next++
		r.stats.Unmatched++
	}
	data := f.Data()
	if r.next < len(r.table.Rows) && r.table.Rows[r.next].Index == index {
		want := r.table.Rows[r.next]
		r.next++
		if Patch(format, data, Extract(index, f), want) {
			r.stats.Patched++
			r.logger.Debug("frame patched", logging.FrameIndex(index))
		}
	}
	if _, err := r.w.Write(data); err != nil {
		return faults.Wrap(faults.ErrIO, "metadata", "rewrite", "write frame", err)
	}
	r.stats.Frames++
	return nil
}

// Close finishes the rewrite and reports its counts.
func (r *Rewriter) Close() RewriteStats {
	r.stats.Unmatched += int64(len(r.table.Rows) - r.next)
	r.next = len(r.table.Rows)
	if r.stats.Unmatched > 0 {
		logging.WarnWithContext(r.logger, "table rows had no frame in the stream", "metadata_unmatched_rows",
			logging.Int64("rows", r.stats.Unmatched),
			logging.String(logging.FieldErrorHint, "the table was read from a different or longer stream"),
			logging.String(logging.FieldImpact, "those rows were ignored"),
		)
	}
	return r.stats
}
