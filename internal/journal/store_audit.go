package journal

import (
	"context"
	"database/sql"
	"fmt"

	"dvrestore/internal/faults"
	"dvrestore/internal/repair"
	"dvrestore/internal/resync"
)

// RecordFrames batch-inserts per-frame summaries in one transaction.
func (s *Store) RecordFrames(ctx context.Context, runID string, frames []repair.FrameSummary) error {
	if len(frames) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO frame_summaries (run_id, frame_index, merged, concealed_redundant, concealed_temporal, irrecoverable)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, f := range frames {
			if _, err := stmt.ExecContext(ctx, runID, f.Index, f.Merged, f.ConcealedRedundant, f.ConcealedTemporal, f.Irrecoverable); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record frames: %w", err)
	}
	return nil
}

// RecordIrrecoverable inserts irrecoverable blocks with their byte ranges.
func (s *Store) RecordIrrecoverable(ctx context.Context, runID string, blocks []repair.IrrecoverableBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO irrecoverable_blocks (run_id, frame_index, block, kind, channel, sequence, slot, byte_offset, byte_length)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, b := range blocks {
			if _, err := stmt.ExecContext(ctx, runID, b.Frame, b.Block, b.Kind.String(),
				b.Position.Channel, b.Position.Sequence, b.Position.Slot, b.Offset, b.Length); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record irrecoverable blocks: %w", err)
	}
	return nil
}

// RecordCorrections inserts audio correction log entries.
func (s *Store) RecordCorrections(ctx context.Context, runID string, corrections []resync.Correction) error {
	if len(corrections) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO audio_corrections (run_id, frame_index, direction, sample_count, reason) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range corrections {
			if _, err := stmt.ExecContext(ctx, runID, c.Frame, string(c.Direction), c.Count, nullableString(c.Reason)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record corrections: %w", err)
	}
	return nil
}

// RecordDiagnostics inserts diagnostics in arrival order.
func (s *Store) RecordDiagnostics(ctx context.Context, runID string, diags []faults.Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO diagnostics (run_id, kind, capture, frame_index, block, detail) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range diags {
			if _, err := stmt.ExecContext(ctx, runID, string(d.Kind), nullableString(d.Capture), d.Frame, d.Block, nullableString(d.Detail)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record diagnostics: %w", err)
	}
	return nil
}

// FrameSummaries returns a run's per-frame summaries in index order.
func (s *Store) FrameSummaries(ctx context.Context, runID string) ([]repair.FrameSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame_index, merged, concealed_redundant, concealed_temporal, irrecoverable
		 FROM frame_summaries WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("frame summaries: %w", err)
	}
	defer rows.Close()
	var out []repair.FrameSummary
	for rows.Next() {
		var f repair.FrameSummary
		if err := rows.Scan(&f.Index, &f.Merged, &f.ConcealedRedundant, &f.ConcealedTemporal, &f.Irrecoverable); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Irrecoverable returns a run's irrecoverable blocks in frame then block order.
func (s *Store) Irrecoverable(ctx context.Context, runID string) ([]IrrecoverableRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame_index, block, kind, channel, sequence, slot, byte_offset, byte_length
		 FROM irrecoverable_blocks WHERE run_id = ? ORDER BY frame_index, block`, runID)
	if err != nil {
		return nil, fmt.Errorf("irrecoverable blocks: %w", err)
	}
	defer rows.Close()
	var out []IrrecoverableRecord
	for rows.Next() {
		var r IrrecoverableRecord
		if err := rows.Scan(&r.Frame, &r.Block, &r.Kind, &r.Channel, &r.Sequence, &r.Slot, &r.Offset, &r.Length); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Corrections returns a run's audio correction log in insertion order.
func (s *Store) Corrections(ctx context.Context, runID string) ([]resync.Correction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame_index, direction, sample_count, reason FROM audio_corrections WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("corrections: %w", err)
	}
	defer rows.Close()
	var out []resync.Correction
	for rows.Next() {
		var (
			c         resync.Correction
			direction string
			reason    sql.NullString
		)
		if err := rows.Scan(&c.Frame, &direction, &c.Count, &reason); err != nil {
			return nil, err
		}
		c.Direction = resync.Direction(direction)
		c.Reason = reason.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Diagnostics returns a run's diagnostics in insertion order.
func (s *Store) Diagnostics(ctx context.Context, runID string) ([]faults.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, capture, frame_index, block, detail FROM diagnostics WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	defer rows.Close()
	var out []faults.Diagnostic
	for rows.Next() {
		var (
			d       faults.Diagnostic
			kind    string
			capture sql.NullString
			detail  sql.NullString
		)
		if err := rows.Scan(&kind, &capture, &d.Frame, &d.Block, &detail); err != nil {
			return nil, err
		}
		d.Kind = faults.Kind(kind)
		d.Capture = capture.String
		d.Detail = detail.String
		out = append(out, d)
	}
	return out, rows.Err()
}
