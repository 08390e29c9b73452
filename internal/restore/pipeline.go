package restore

import (
	"context"
	"errors"
	"log/slog"

	"dvrestore/internal/config"
	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/fileutil"
	"dvrestore/internal/logging"
	"dvrestore/internal/merge"
	"dvrestore/internal/repair"
	"dvrestore/internal/resync"
	"dvrestore/internal/runctx"
)

// pipeline wires merge, repair and resync into the output files of one run.
// Every callback runs on the merge engine's emitting goroutine.
type pipeline struct {
	cfg      *config.Config
	job      Job
	format   dv.Format
	strategy merge.Strategy
	outputs  Outputs
	logger   *slog.Logger
	rec      *recorder
	estimate int64
	sampler  *logging.ProgressSampler
	result   *Result

	video     *fileutil.AtomicFile
	audio     *fileutil.AtomicFile
	wav       *resync.WAVWriter
	statsFile *fileutil.AtomicFile
	stats     *resync.StatsWriter
	statsErr  error

	repairer *repair.Repairer
	resyncer *resync.Resynchronizer
}

func (p *pipeline) stageLogger(stage string) *slog.Logger {
	return logging.ForStage(p.logger, stage, p.cfg.Logging.StageOverrides)
}

// run streams sources into the outputs. After cancellation the frames the
// repairer still holds are settled and everything written so far is committed.
func (p *pipeline) run(ctx context.Context, sources []merge.Source) error {
	settle := context.WithoutCancel(ctx)

	video, err := fileutil.CreateAtomic(p.outputs.Video, 0o644)
	if err != nil {
		return faults.Wrap(faults.ErrIO, stageWrite, "create video", p.outputs.Video, err)
	}
	p.video = video

	if !p.job.VideoOnly {
		if p.outputs.Stats != "" {
			statsFile, err := fileutil.CreateAtomic(p.outputs.Stats, 0o644)
			if err != nil {
				p.abort()
				return faults.Wrap(faults.ErrIO, stageWrite, "create stats", p.outputs.Stats, err)
			}
			p.statsFile = statsFile
			p.stats = resync.NewStatsWriter(statsFile)
		}
		p.resyncer = resync.New(resync.Options{
			DefaultRate:       p.cfg.Audio.DefaultSampleRate,
			FillMissingFrames: p.cfg.Audio.FillMissingFrames,
			Logger:            p.stageLogger(stageResync),
		}, resync.Output{
			Start:      p.startAudio,
			Samples:    p.writeSamples,
			Correction: func(c resync.Correction) { p.rec.correction(settle, c) },
			Diagnostic: func(d faults.Diagnostic) { p.rec.diagnostic(settle, d) },
			Period:     p.writePeriod,
		})
	}

	repairs := repair.NewEngine(repair.Options{Policy: policyFrom(p.cfg), Logger: p.stageLogger(stageRepair)})
	p.repairer = repairs.NewRepairer(repair.Output{
		Frame: func(f *merge.MergedFrame, s repair.FrameSummary) error {
			return p.writeFrame(settle, f, s)
		},
		Irrecoverable: func(b repair.IrrecoverableBlock) { p.rec.irrecoverable(settle, b) },
	})

	merges := merge.NewEngine(merge.Options{
		Strategy:  p.strategy,
		Workers:   p.cfg.Merge.Workers,
		BatchSize: p.cfg.Merge.BatchSize,
		Logger:    p.stageLogger(stageMerge),
	})
	mergeCtx := runctx.WithStage(ctx, stageMerge)
	stats, err := merges.Stream(mergeCtx, sources, merge.Sink{
		Frame:      func(f *merge.MergedFrame) error { return p.repairer.Push(mergeCtx, f) },
		Diagnostic: func(d faults.Diagnostic) { p.rec.diagnostic(settle, d) },
	})
	p.result.Merge = stats

	cancelled := false
	if err != nil {
		if ctx.Err() == nil || !errors.Is(err, ctx.Err()) {
			p.abort()
			return err
		}
		cancelled = true
		if stats.Frames == 0 {
			p.abort()
			p.result.Cancelled = true
			return faults.Cancelled(stageRestore, ctx.Err())
		}
	}

	if err := p.repairer.Close(settle); err != nil {
		p.abort()
		return faults.Wrap(faults.ErrIO, stageRepair, "flush", "", err)
	}
	if p.resyncer != nil {
		if err := p.resyncer.Close(); err != nil {
			p.abort()
			return faults.Wrap(faults.ErrIO, stageResync, "flush", "", err)
		}
		p.result.Audio = p.resyncer.Totals()
		p.result.Layout = p.resyncer.Layout()
	}
	if err := p.commit(); err != nil {
		return err
	}
	p.rec.flush(settle)
	p.reportProgress(true)

	if cancelled {
		p.result.Cancelled = true
		return faults.Cancelled(stageRestore, ctx.Err())
	}
	return nil
}

func (p *pipeline) writeFrame(ctx context.Context, f *merge.MergedFrame, s repair.FrameSummary) error {
	if _, err := p.video.Write(f.Data); err != nil {
		return faults.Wrap(faults.ErrIO, stageWrite, "write frame", p.outputs.Video, err)
	}
	p.result.Repair.Add(s)
	p.rec.frame(ctx, s)
	if p.resyncer != nil {
		if err := p.resyncer.Push(ctx, f); err != nil {
			return err
		}
	}
	p.reportProgress(false)
	return nil
}

func (p *pipeline) startAudio(layout resync.Layout, _ resync.Schedule) error {
	audio, err := fileutil.CreateAtomic(p.outputs.Audio, 0o644)
	if err != nil {
		return faults.Wrap(faults.ErrIO, stageWrite, "create audio", p.outputs.Audio, err)
	}
	p.audio = audio
	p.wav = resync.NewWAVWriter(audio, layout.Rate, layout.Channels())
	return nil
}

func (p *pipeline) writeSamples(channels [][]int16) error {
	if err := p.wav.Write(channels); err != nil {
		return faults.Wrap(faults.ErrIO, stageWrite, "write audio", p.outputs.Audio, err)
	}
	return nil
}

func (p *pipeline) writePeriod(s resync.PeriodStats) {
	if p.stats == nil || p.statsErr != nil {
		return
	}
	p.statsErr = p.stats.Write(s)
}

func (p *pipeline) reportProgress(final bool) {
	progress := Progress{Frames: p.result.Repair.Frames, Estimate: p.estimate}
	if p.job.Progress != nil {
		p.job.Progress(progress)
	}
	percent := progress.Percent()
	if final {
		percent = 100
	}
	if p.sampler.ShouldLog(stageMerge, percent, progress.Frames) {
		p.logger.Info("restore progress",
			logging.String(logging.FieldProgressStage, stageMerge),
			logging.Float64(logging.FieldProgressPercent, percent),
			logging.Int64("frames_written", progress.Frames),
		)
	}
}

// commit finalizes every output file. Nothing is renamed into place unless
// all writers flushed cleanly.
func (p *pipeline) commit() error {
	if p.wav != nil {
		if err := p.wav.Close(); err != nil {
			p.abort()
			return faults.Wrap(faults.ErrIO, stageWrite, "finalize audio", p.outputs.Audio, err)
		}
	}
	if p.stats != nil {
		err := p.statsErr
		if err == nil {
			err = p.stats.Flush()
		}
		if err != nil {
			p.abort()
			return faults.Wrap(faults.ErrIO, stageWrite, "write stats", p.outputs.Stats, err)
		}
	}
	for _, file := range []*fileutil.AtomicFile{p.video, p.audio, p.statsFile} {
		if file == nil {
			continue
		}
		if err := file.Commit(); err != nil {
			p.abort()
			return faults.Wrap(faults.ErrIO, stageWrite, "commit", file.Path(), err)
		}
	}
	if p.audio == nil {
		p.result.Outputs.Audio = ""
	}
	if p.statsFile == nil {
		p.result.Outputs.Stats = ""
	}
	return nil
}

func (p *pipeline) abort() {
	for _, file := range []*fileutil.AtomicFile{p.video, p.audio, p.statsFile} {
		if file != nil {
			_ = file.Abort()
		}
	}
}
