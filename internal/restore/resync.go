package restore

import (
	"context"
	"errors"
	"log/slog"

	"dvrestore/internal/config"
	"dvrestore/internal/faults"
	"dvrestore/internal/fileutil"
	"dvrestore/internal/logging"
	"dvrestore/internal/merge"
	"dvrestore/internal/resync"
)

// ResyncJob extracts the audio of an already repaired stream.
type ResyncJob struct {
	Input string
	WAV   string
	// Stats is the drift CSV path; empty skips it.
	Stats  string
	Logger *slog.Logger
}

// ResyncResult summarizes a ResyncFile run.
type ResyncResult struct {
	Merge     merge.Stats
	Layout    resync.Layout
	Totals    resync.Totals
	Cancelled bool
}

// ResyncFile runs the audio resynchronizer over a single stream. The stream
// passes through the merge engine as a lone capture so damaged blocks are
// still recognized and concealed sample by sample.
func ResyncFile(ctx context.Context, cfg *config.Config, job ResyncJob) (*ResyncResult, error) {
	if cfg == nil {
		return nil, faults.Wrap(faults.ErrInvalidInput, stageResync, "run", "config is required", nil)
	}
	if job.Input == "" || job.WAV == "" {
		return nil, faults.Wrap(faults.ErrInvalidInput, stageResync, "run", "input and wav paths are required", nil)
	}
	logger := logging.ForStage(logging.NewComponentLogger(job.Logger, "restore"), stageResync, cfg.Logging.StageOverrides)

	opened, err := openCaptures(labelCaptures([]Capture{{Path: job.Input}}))
	if err != nil {
		return nil, err
	}
	defer closeCaptures(opened)
	format, err := resolveFormat(cfg, opened, logger)
	if err != nil {
		return nil, err
	}

	res := &ResyncResult{}
	var (
		audio     *fileutil.AtomicFile
		wav       *resync.WAVWriter
		statsFile *fileutil.AtomicFile
		stats     *resync.StatsWriter
		statsErr  error
	)
	abort := func() {
		for _, f := range []*fileutil.AtomicFile{audio, statsFile} {
			if f != nil {
				_ = f.Abort()
			}
		}
	}
	if job.Stats != "" {
		statsFile, err = fileutil.CreateAtomic(job.Stats, 0o644)
		if err != nil {
			return nil, faults.Wrap(faults.ErrIO, stageWrite, "create stats", job.Stats, err)
		}
		stats = resync.NewStatsWriter(statsFile)
	}

	resyncer := resync.New(resync.Options{
		DefaultRate:       cfg.Audio.DefaultSampleRate,
		FillMissingFrames: cfg.Audio.FillMissingFrames,
		Logger:            logger,
	}, resync.Output{
		Start: func(layout resync.Layout, _ resync.Schedule) error {
			f, cerr := fileutil.CreateAtomic(job.WAV, 0o644)
			if cerr != nil {
				return faults.Wrap(faults.ErrIO, stageWrite, "create audio", job.WAV, cerr)
			}
			audio = f
			wav = resync.NewWAVWriter(audio, layout.Rate, layout.Channels())
			return nil
		},
		Samples: func(channels [][]int16) error { return wav.Write(channels) },
		Period: func(p resync.PeriodStats) {
			if stats != nil && statsErr == nil {
				statsErr = stats.Write(p)
			}
		},
	})

	engine := merge.NewEngine(merge.Options{
		Workers:   cfg.Merge.Workers,
		BatchSize: cfg.Merge.BatchSize,
		Logger:    logging.ForStage(job.Logger, stageMerge, cfg.Logging.StageOverrides),
	})
	mstats, err := engine.Stream(ctx, buildSources(opened, format, merge.AlignPosition), merge.Sink{
		Frame: func(f *merge.MergedFrame) error { return resyncer.Push(ctx, f) },
	})
	res.Merge = mstats
	if err != nil {
		if ctx.Err() == nil || !errors.Is(err, ctx.Err()) || mstats.Frames == 0 {
			abort()
			if ctx.Err() != nil {
				res.Cancelled = true
				return res, faults.Cancelled(stageResync, ctx.Err())
			}
			return nil, err
		}
		res.Cancelled = true
	}

	if err := resyncer.Close(); err != nil {
		abort()
		return nil, faults.Wrap(faults.ErrIO, stageResync, "flush", "", err)
	}
	res.Layout = resyncer.Layout()
	res.Totals = resyncer.Totals()
	if wav != nil {
		if err := wav.Close(); err != nil {
			abort()
			return nil, faults.Wrap(faults.ErrIO, stageWrite, "finalize audio", job.WAV, err)
		}
	}
	if stats != nil {
		if statsErr == nil {
			statsErr = stats.Flush()
		}
		if statsErr != nil {
			abort()
			return nil, faults.Wrap(faults.ErrIO, stageWrite, "write stats", job.Stats, statsErr)
		}
	}
	for _, f := range []*fileutil.AtomicFile{audio, statsFile} {
		if f == nil {
			continue
		}
		if err := f.Commit(); err != nil {
			abort()
			return nil, faults.Wrap(faults.ErrIO, stageWrite, "commit", f.Path(), err)
		}
	}
	if res.Cancelled {
		return res, faults.Cancelled(stageResync, ctx.Err())
	}
	return res, nil
}
