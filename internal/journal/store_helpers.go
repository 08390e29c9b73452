package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const runColumns = "id, output_prefix, captures_json, format, strategy, status, error_message, started_at, finished_at, frames, first_frame, last_frame, missing_frames, malformed_frames, merged_blocks, concealed_redundant, concealed_temporal, irrecoverable_blocks, audio_samples, audio_surplus, audio_deficit, audio_concealed, schedule_mismatches"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		captures    string
		format      sql.NullString
		strategy    sql.NullString
		status      string
		errMessage  sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
		first       sql.NullInt64
		last        sql.NullInt64
	)
	t := &run.Totals
	if err := scanner.Scan(
		&run.ID,
		&run.OutputPrefix,
		&captures,
		&format,
		&strategy,
		&status,
		&errMessage,
		&startedRaw,
		&finishedRaw,
		&t.Frames,
		&first,
		&last,
		&t.MissingFrames,
		&t.MalformedFrames,
		&t.MergedBlocks,
		&t.ConcealedRedundant,
		&t.ConcealedTemporal,
		&t.Irrecoverable,
		&t.AudioSamples,
		&t.AudioSurplus,
		&t.AudioDeficit,
		&t.AudioConcealed,
		&t.ScheduleMismatches,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(captures), &run.Captures); err != nil {
		return nil, err
	}
	run.Format = format.String
	run.Strategy = strategy.String
	run.Status = Status(status)
	run.ErrorMessage = errMessage.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	if first.Valid {
		t.FirstFrame = &first.Int64
	}
	if last.Valid {
		t.LastFrame = &last.Int64
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
