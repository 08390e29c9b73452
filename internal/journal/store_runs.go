package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateRun inserts a running row. A fresh ID is assigned unless spec
// carries one.
func (s *Store) CreateRun(ctx context.Context, spec RunSpec) (*Run, error) {
	if strings.TrimSpace(spec.OutputPrefix) == "" {
		return nil, errors.New("create run: output prefix is required")
	}
	captures := spec.Captures
	if captures == nil {
		captures = []string{}
	}
	capturesJSON, err := json.Marshal(captures)
	if err != nil {
		return nil, fmt.Errorf("encode captures: %w", err)
	}
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	run := &Run{
		ID:           id,
		OutputPrefix: spec.OutputPrefix,
		Captures:     captures,
		Format:       spec.Format,
		Strategy:     spec.Strategy,
		Status:       StatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	_, err = s.exec(ctx,
		`INSERT INTO runs (id, output_prefix, captures_json, format, strategy, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.OutputPrefix, string(capturesJSON), nullableString(run.Format), nullableString(run.Strategy),
		run.Status, formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the terminal status and totals of a run. runErr is
// recorded as the error message when non-nil.
func (s *Store) FinishRun(ctx context.Context, id string, status Status, totals Totals, runErr error) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish run: status %q is not terminal", status)
	}
	message := ""
	if runErr != nil {
		message = runErr.Error()
	}
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ?,
		 frames = ?, first_frame = ?, last_frame = ?, missing_frames = ?, malformed_frames = ?,
		 merged_blocks = ?, concealed_redundant = ?, concealed_temporal = ?, irrecoverable_blocks = ?,
		 audio_samples = ?, audio_surplus = ?, audio_deficit = ?, audio_concealed = ?, schedule_mismatches = ?
		 WHERE id = ?`,
		status, nullableString(message), formatTime(time.Now()),
		totals.Frames, nullableInt64(totals.FirstFrame), nullableInt64(totals.LastFrame),
		totals.MissingFrames, totals.MalformedFrames,
		totals.MergedBlocks, totals.ConcealedRedundant, totals.ConcealedTemporal, totals.Irrecoverable,
		totals.AudioSamples, totals.AudioSurplus, totals.AudioDeficit, totals.AudioConcealed, totals.ScheduleMismatches,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: %s not found", id)
	}
	return nil
}

// GetRun fetches a run by ID. A missing run returns nil without error.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// FindRun resolves a full ID or a unique ID prefix.
func (s *Store) FindRun(ctx context.Context, idOrPrefix string) (*Run, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? ORDER BY started_at DESC LIMIT 2`,
		idOrPrefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	defer rows.Close()
	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("find run: prefix %q is ambiguous", idOrPrefix)
	}
}

// ListRuns returns the most recent runs first. A non-positive limit lists all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ResetRunning marks runs left in the running state by a crashed process as
// failed and returns how many were changed.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE status = ?`,
		StatusFailed, "interrupted", formatTime(time.Now()), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running runs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteRun removes a run and its audit rows.
func (s *Store) DeleteRun(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
