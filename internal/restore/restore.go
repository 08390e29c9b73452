package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"dvrestore/internal/config"
	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/journal"
	"dvrestore/internal/logging"
	"dvrestore/internal/merge"
	"dvrestore/internal/preflight"
	"dvrestore/internal/repair"
	"dvrestore/internal/resync"
	"dvrestore/internal/runctx"
)

const (
	stageRestore = "restore"
	stageOpen    = "open"
	stageMerge   = "merge"
	stageRepair  = "repair"
	stageResync  = "resync"
	stageWrite   = "write"
)

// Job describes one restore.
type Job struct {
	// OutputPrefix is the output path without extension.
	OutputPrefix string
	Captures     []Capture
	// Reel tags every log record of the run.
	Reel string
	// VideoOnly skips audio resynchronization.
	VideoOnly bool

	Logger  *slog.Logger
	Journal *journal.Store
	// Progress is called after every written frame.
	Progress func(Progress)
}

// Progress reports written frames against an estimate taken from the
// largest capture.
type Progress struct {
	Frames   int64
	Estimate int64
}

// Percent returns the completion estimate, capped below 100 until the run ends.
func (p Progress) Percent() float64 {
	if p.Estimate <= 0 {
		return -1
	}
	return min(99.9, float64(p.Frames)*100/float64(p.Estimate))
}

// Outputs names the files a run writes. Empty fields are not written.
type Outputs struct {
	Video string
	Audio string
	Stats string
	Lock  string
	Log   string
}

// OutputsFor derives output paths from a prefix.
func OutputsFor(prefix string, cfg *config.Config, videoOnly bool) Outputs {
	o := Outputs{Video: prefix + ".dv", Lock: prefix + ".lock"}
	if !videoOnly {
		o.Audio = prefix + ".wav"
		if cfg != nil && cfg.Audio.StatsCSV {
			o.Stats = prefix + ".stats.csv"
		}
	}
	return o
}

// Result summarizes a run. On cancellation it describes the committed prefix.
type Result struct {
	RunID       string
	Format      dv.Format
	Strategy    merge.Strategy
	Outputs     Outputs
	Merge       merge.Stats
	Repair      repair.Totals
	Audio       resync.Totals
	Layout      resync.Layout
	Diagnostics map[faults.Kind]int
	Cancelled   bool
	Duration    time.Duration
}

// JournalTotals maps the result onto the journal's run counters.
func (r *Result) JournalTotals() journal.Totals {
	t := journal.Totals{
		Frames:             r.Repair.Frames,
		MissingFrames:      r.Merge.Missing,
		MalformedFrames:    r.Merge.Malformed,
		MergedBlocks:       r.Repair.Merged,
		ConcealedRedundant: r.Repair.ConcealedRedundant,
		ConcealedTemporal:  r.Repair.ConcealedTemporal,
		Irrecoverable:      r.Repair.Irrecoverable,
		AudioSamples:       r.Audio.Samples,
		AudioSurplus:       r.Audio.Surplus,
		AudioDeficit:       r.Audio.Deficit,
		AudioConcealed:     r.Audio.Concealed,
		ScheduleMismatches: r.Audio.Mismatches,
	}
	if r.Merge.Frames > 0 {
		first, last := r.Merge.First, r.Merge.Last
		t.FirstFrame, t.LastFrame = &first, &last
	}
	return t
}

// Run executes the full pipeline for job. A cancelled run commits every
// finished frame and returns an error matching faults.ErrCancelled together
// with a non-nil result.
func Run(ctx context.Context, cfg *config.Config, job Job) (*Result, error) {
	if cfg == nil {
		return nil, faults.Wrap(faults.ErrInvalidInput, stageRestore, "run", "config is required", nil)
	}
	if strings.TrimSpace(job.OutputPrefix) == "" {
		return nil, faults.Wrap(faults.ErrInvalidInput, stageRestore, "run", "output prefix is required", nil)
	}
	if len(job.Captures) == 0 {
		return nil, faults.Wrap(faults.ErrInvalidInput, stageRestore, "run", "at least one capture is required", nil)
	}
	strategy, err := merge.ParseStrategy(cfg.Merge.Strategy)
	if err != nil {
		return nil, err
	}
	align, err := merge.ParseAlign(cfg.Merge.Align)
	if err != nil {
		return nil, err
	}
	prefix, err := filepath.Abs(job.OutputPrefix)
	if err != nil {
		return nil, faults.Wrap(faults.ErrInvalidInput, stageRestore, "resolve output", job.OutputPrefix, err)
	}

	started := time.Now()
	runID := uuid.NewString()
	outputs := OutputsFor(prefix, cfg, job.VideoOnly)

	base := job.Logger
	if base == nil {
		base = logging.NewNop()
	}
	if cfg.Paths.LogDir != "" {
		outputs.Log = logging.RunLogPath(cfg.Paths.LogDir, runID, started)
		teed, closeLog, err := logging.WithRunLog(base, outputs.Log)
		if err != nil {
			logging.WarnWithContext(base, "run log unavailable", "restore_run_log_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check log_dir permissions"),
				logging.String(logging.FieldImpact, "debug records of this run are not kept"),
			)
			outputs.Log = ""
		} else {
			base = teed
			defer func() { _ = closeLog() }()
		}
	}

	ctx = runctx.WithRunID(ctx, runID)
	if job.Reel != "" {
		ctx = runctx.WithReel(ctx, job.Reel)
	}
	logger := logging.WithContext(ctx, logging.ForStage(logging.NewComponentLogger(base, "restore"), stageRestore, cfg.Logging.StageOverrides))

	if outputs.Log != "" {
		logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, outputs.Log)
	}

	if err := os.MkdirAll(filepath.Dir(prefix), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrIO, stageRestore, "create output dir", filepath.Dir(prefix), err)
	}
	lock := flock.New(outputs.Lock)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, stageRestore, "acquire lock", outputs.Lock, err)
	}
	if !locked {
		return nil, faults.Wrap(faults.ErrInvalidInput, stageRestore, "acquire lock",
			fmt.Sprintf("another restore is writing %s", prefix), nil)
	}
	defer func() { _ = lock.Unlock() }()

	captures := labelCaptures(job.Captures)
	paths := make([]string, len(captures))
	for i, c := range captures {
		paths[i] = c.Path
	}
	if err := preflight.Err(preflight.ForRestore(filepath.Dir(prefix), paths)); err != nil {
		return nil, err
	}

	opened, err := openCaptures(captures)
	if err != nil {
		return nil, err
	}
	defer closeCaptures(opened)
	format, err := resolveFormat(cfg, opened, logger)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(opened))
	for i, c := range opened {
		labels[i] = c.Label
	}
	logger.Info("restore started",
		logging.String("output_prefix", prefix),
		logging.Any("captures", labels),
		logging.String("format", format.String()),
		logging.String("strategy", string(strategy)),
		logging.String("align", string(align)),
		logging.Bool("audio", !job.VideoOnly),
	)

	var run *journal.Run
	if job.Journal != nil {
		run, err = job.Journal.CreateRun(ctx, journal.RunSpec{
			ID:           runID,
			OutputPrefix: prefix,
			Captures:     paths,
			Format:       format.String(),
			Strategy:     string(strategy),
		})
		if err != nil {
			return nil, faults.Wrap(faults.ErrIO, stageRestore, "journal run", "", err)
		}
	}

	p := &pipeline{
		cfg:      cfg,
		job:      job,
		format:   format,
		strategy: strategy,
		outputs:  outputs,
		logger:   logger,
		rec:      newRecorder(job.Journal, runID, logger),
		estimate: estimateFrames(paths, format),
		sampler:  logging.NewProgressSampler(10, 1000),
		result: &Result{
			RunID:    runID,
			Format:   format,
			Strategy: strategy,
			Outputs:  outputs,
		},
	}
	runErr := p.run(ctx, buildSources(opened, format, align))
	res := p.result
	res.Diagnostics = p.rec.counts
	res.Duration = time.Since(started)

	if run != nil {
		status := journal.StatusCompleted
		switch {
		case errors.Is(runErr, faults.ErrCancelled):
			status = journal.StatusCancelled
		case runErr != nil:
			status = journal.StatusFailed
		}
		if err := job.Journal.FinishRun(context.WithoutCancel(ctx), runID, status, res.JournalTotals(), runErr); err != nil {
			logging.WarnWithContext(logger, "journal finish failed", "journal_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run stays marked running until the next restore resets it"),
			)
		}
	}

	switch {
	case res.Cancelled:
		logger.Info("restore cancelled",
			logging.Int64("frames_written", res.Repair.Frames),
			logging.Duration("elapsed", res.Duration),
		)
	case runErr != nil:
		logging.ErrorWithContext(logger, "restore failed", "restore_failed",
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "see the run log for per-frame detail"),
		)
	default:
		logger.Info("restore completed",
			logging.String("video", outputs.Video),
			logging.String("audio", res.Outputs.Audio),
			logging.Int64("frames", res.Repair.Frames),
			logging.Int64("irrecoverable_blocks", res.Repair.Irrecoverable),
			logging.Int64("audio_samples", res.Audio.Samples),
			logging.Duration("elapsed", res.Duration),
		)
	}
	if runErr != nil && !res.Cancelled {
		return nil, runErr
	}
	return res, runErr
}

func estimateFrames(paths []string, format dv.Format) int64 {
	var largest int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			largest = max(largest, info.Size())
		}
	}
	return largest / int64(format.FrameSize())
}

func policyFrom(cfg *config.Config) repair.Policy {
	return repair.Policy{
		RedundantAudio:   cfg.Repair.RedundantAudio,
		RedundantSubcode: cfg.Repair.RedundantSubcode,
		Temporal:         cfg.Repair.Temporal,
		MaxDistance:      cfg.Repair.MaxTemporalDistance,
	}
}
