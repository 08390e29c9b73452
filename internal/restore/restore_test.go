package restore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/journal"
	"dvrestore/internal/restore"
	"dvrestore/internal/testsupport"
)

func cleanFrames(format dv.Format, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = testsupport.BuildFrame(format, testsupport.WithVideoSeed(byte(i)))
	}
	return out
}

func cloneFrames(frames [][]byte) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = bytes.Clone(f)
	}
	return out
}

func TestRunMergesCapturesIntoCleanStream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	dir := t.TempDir()
	format := dv.FormatNTSC

	clean := cleanFrames(format, 10)
	a := cloneFrames(clean)
	b := cloneFrames(clean)
	video := testsupport.BlocksOfKind(format, dv.KindVideo)
	audio := testsupport.BlocksOfKind(format, dv.KindAudio)
	testsupport.SetVideoError(format, a[5], video[40])
	testsupport.SetAudioError(format, b[0], audio[2])
	testsupport.SetAudioError(format, b[1], audio[7])

	prefix := filepath.Join(dir, "out", "reel01")
	res, err := restore.Run(context.Background(), cfg, restore.Job{
		OutputPrefix: prefix,
		Reel:         "reel01",
		Journal:      store,
		Captures: []restore.Capture{
			{Label: "A", Path: testsupport.WriteCapture(t, filepath.Join(dir, "a.dv"), a...)},
			{Label: "B", Path: testsupport.WriteCapture(t, filepath.Join(dir, "b.dv"), b...)},
		},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Format != format {
		t.Fatalf("expected format %s, got %s", format, res.Format)
	}
	if res.Repair.Frames != 10 || res.Repair.Irrecoverable != 0 {
		t.Fatalf("unexpected repair totals: %+v", res.Repair)
	}

	got, err := os.ReadFile(prefix + ".dv")
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, bytes.Join(clean, nil)) {
		t.Fatal("merged stream does not match the clean frames")
	}

	info, err := os.Stat(prefix + ".wav")
	if err != nil {
		t.Fatalf("stat wav: %v", err)
	}
	if info.Size() <= 44 {
		t.Fatalf("expected audio payload, wav is %d bytes", info.Size())
	}
	if res.Audio.Samples != 16016 {
		t.Fatalf("expected 16016 samples per channel, got %d", res.Audio.Samples)
	}
	if res.Layout.Channels() != 2 {
		t.Fatalf("expected 2 output channels, got %d", res.Layout.Channels())
	}
	stats, err := os.ReadFile(prefix + ".stats.csv")
	if err != nil {
		t.Fatalf("read stats: %v", err)
	}
	if !strings.HasPrefix(string(stats), "video_start_frame_number,") {
		t.Fatalf("stats csv missing header: %q", stats)
	}

	run, err := store.GetRun(context.Background(), res.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: run=%v err=%v", run, err)
	}
	if run.Status != journal.StatusCompleted {
		t.Fatalf("expected completed run, got %s (%s)", run.Status, run.ErrorMessage)
	}
	if run.Totals.Frames != 10 || run.Totals.FirstFrame == nil || *run.Totals.LastFrame != 9 {
		t.Fatalf("unexpected journal totals: %+v", run.Totals)
	}
	summaries, err := store.FrameSummaries(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("FrameSummaries: %v", err)
	}
	if len(summaries) != 10 {
		t.Fatalf("expected 10 frame summaries, got %d", len(summaries))
	}

	logData, err := os.ReadFile(res.Outputs.Log)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(logData), "restore completed") || !strings.Contains(string(logData), res.RunID) {
		t.Fatalf("run log missing completion record: %s", logData)
	}
}

func TestRunConcealsFromRedundantPartnerViaSidecar(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	format := dv.FormatNTSC
	raw := cleanFrames(format, 5)
	path := testsupport.WriteCapture(t, filepath.Join(dir, "pass.dv"), raw...)

	maps := make([]dv.ErrorMap, len(raw))
	for i := range maps {
		maps[i] = dv.NewErrorMap(format.BlockCount())
	}
	maps[3] = testsupport.ErrorMapFor(format, format.AudioBlockIndex(0, 1, 4))
	testsupport.WriteErrorMaps(t, path+restore.ErrMapSuffix, maps...)

	res, err := restore.Run(context.Background(), cfg, restore.Job{
		OutputPrefix: filepath.Join(dir, "restored"),
		Captures:     []restore.Capture{{Path: path}},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Repair.ConcealedRedundant != 1 {
		t.Fatalf("expected one redundant concealment, got %+v", res.Repair)
	}
	if res.Repair.Irrecoverable != 0 {
		t.Fatalf("expected nothing irrecoverable, got %d", res.Repair.Irrecoverable)
	}
}

func TestRunVideoOnlySkipsAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	path := testsupport.WriteCapture(t, filepath.Join(dir, "pass.dv"), cleanFrames(dv.FormatPAL, 3)...)
	prefix := filepath.Join(dir, "video")

	res, err := restore.Run(context.Background(), cfg, restore.Job{
		OutputPrefix: prefix,
		VideoOnly:    true,
		Captures:     []restore.Capture{{Path: path}},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outputs.Audio != "" || res.Outputs.Stats != "" {
		t.Fatalf("expected no audio outputs, got %+v", res.Outputs)
	}
	if _, err := os.Stat(prefix + ".wav"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no wav file, stat err=%v", err)
	}
	info, err := os.Stat(prefix + ".dv")
	if err != nil {
		t.Fatalf("stat video: %v", err)
	}
	if info.Size() != int64(3*dv.FormatPAL.FrameSize()) {
		t.Fatalf("expected 3 PAL frames, got %d bytes", info.Size())
	}
}

func TestRunRecordsIrrecoverableWithoutRunLog(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedDir())
	store := testsupport.MustOpenJournal(t, cfg)
	dir := t.TempDir()
	format := dv.FormatNTSC
	video := testsupport.BlocksOfKind(format, dv.KindVideo)

	frames := cleanFrames(format, 4)
	frames[2] = testsupport.BuildFrame(format, testsupport.WithVideoSeed(2), testsupport.WithVideoError(video[7]))
	path := testsupport.WriteCapture(t, filepath.Join(dir, "single.dv"), frames...)

	res, err := restore.Run(context.Background(), cfg, restore.Job{
		OutputPrefix: filepath.Join(dir, "single-out"),
		Journal:      store,
		Captures:     []restore.Capture{{Path: path}},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outputs.Log != "" {
		t.Fatalf("expected no run log with an unusable log dir, got %s", res.Outputs.Log)
	}
	if res.Repair.Frames != 4 || res.Repair.Irrecoverable != 1 {
		t.Fatalf("unexpected repair totals: %+v", res.Repair)
	}

	blocks, err := store.Irrecoverable(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("Irrecoverable: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Frame != 2 || blocks[0].Block != video[7] {
		t.Fatalf("unexpected irrecoverable records: %+v", blocks)
	}
}

func TestRunRejectsLockedPrefix(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	path := testsupport.WriteCapture(t, filepath.Join(dir, "pass.dv"), cleanFrames(dv.FormatNTSC, 2)...)
	prefix := filepath.Join(dir, "busy")

	held := flock.New(prefix + ".lock")
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	_, err = restore.Run(context.Background(), cfg, restore.Job{
		OutputPrefix: prefix,
		Captures:     []restore.Capture{{Path: path}},
	})
	if !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := os.Stat(prefix + ".dv"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no output while locked, stat err=%v", err)
	}
}

func TestRunRejectsMissingCapture(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	_, err := restore.Run(context.Background(), cfg, restore.Job{
		OutputPrefix: filepath.Join(dir, "out"),
		Captures:     []restore.Capture{{Path: filepath.Join(dir, "absent.dv")}},
	})
	if !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if faults.ExitCode(err) != 2 {
		t.Fatalf("expected exit code 2, got %d", faults.ExitCode(err))
	}
}

func TestRunRejectsMixedFormats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	_, err := restore.Run(context.Background(), cfg, restore.Job{
		OutputPrefix: filepath.Join(dir, "out"),
		Captures: []restore.Capture{
			{Path: testsupport.WriteCapture(t, filepath.Join(dir, "ntsc.dv"), cleanFrames(dv.FormatNTSC, 2)...)},
			{Path: testsupport.WriteCapture(t, filepath.Join(dir, "pal.dv"), cleanFrames(dv.FormatPAL, 2)...)},
		},
	})
	if !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRunFailsWithoutUsableFrames(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSystem("ntsc"))
	store := testsupport.MustOpenJournal(t, cfg)
	dir := t.TempDir()
	junk := testsupport.WriteCapture(t, filepath.Join(dir, "junk.dv"), make([]byte, 1000))
	prefix := filepath.Join(dir, "out")

	_, err := restore.Run(context.Background(), cfg, restore.Job{
		OutputPrefix: prefix,
		Journal:      store,
		Captures:     []restore.Capture{{Path: junk}},
	})
	if !errors.Is(err, faults.ErrNoUsableFrames) {
		t.Fatalf("expected ErrNoUsableFrames, got %v", err)
	}
	if _, err := os.Stat(prefix + ".dv"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no output, stat err=%v", err)
	}
	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != journal.StatusFailed {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
}

func TestRunCancellationCommitsPrefix(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	dir := t.TempDir()
	format := dv.FormatNTSC
	path := testsupport.WriteCapture(t, filepath.Join(dir, "pass.dv"), cleanFrames(format, 20)...)
	prefix := filepath.Join(dir, "partial")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, err := restore.Run(ctx, cfg, restore.Job{
		OutputPrefix: prefix,
		Journal:      store,
		Captures:     []restore.Capture{{Path: path}},
		Progress: func(p restore.Progress) {
			if p.Frames == 3 {
				cancel()
			}
		},
	})
	if !errors.Is(err, faults.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if res == nil || !res.Cancelled {
		t.Fatalf("expected a cancelled result, got %+v", res)
	}
	written := res.Repair.Frames
	if written < 3 || written >= 20 {
		t.Fatalf("expected a partial prefix, got %d frames", written)
	}
	info, err := os.Stat(prefix + ".dv")
	if err != nil {
		t.Fatalf("stat video: %v", err)
	}
	if info.Size() != written*int64(format.FrameSize()) {
		t.Fatalf("expected %d frames on disk, got %d bytes", written, info.Size())
	}
	run, err := store.GetRun(context.Background(), res.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: run=%v err=%v", run, err)
	}
	if run.Status != journal.StatusCancelled {
		t.Fatalf("expected cancelled run, got %s", run.Status)
	}
}

func TestResyncFileWritesAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	path := testsupport.WriteCapture(t, filepath.Join(dir, "repaired.dv"), cleanFrames(dv.FormatNTSC, 5)...)
	wavPath := filepath.Join(dir, "audio.wav")
	statsPath := filepath.Join(dir, "drift.csv")

	res, err := restore.ResyncFile(context.Background(), cfg, restore.ResyncJob{Input: path, WAV: wavPath, Stats: statsPath})
	if err != nil {
		t.Fatalf("ResyncFile returned error: %v", err)
	}
	if res.Totals.Frames != 5 || res.Totals.Samples != 8008 {
		t.Fatalf("unexpected totals: %+v", res.Totals)
	}
	if res.Layout.Rate != 48000 {
		t.Fatalf("expected 48000 Hz, got %d", res.Layout.Rate)
	}
	for _, p := range []string{wavPath, statsPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}
}
