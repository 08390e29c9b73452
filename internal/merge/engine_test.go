package merge_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/merge"
	"dvrestore/internal/repair"
	"dvrestore/internal/testsupport"
)

func cleanFrames(format dv.Format, n int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = testsupport.BuildFrame(format, testsupport.WithVideoSeed(byte(i)))
	}
	return frames
}

func cloneFrames(frames [][]byte) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = bytes.Clone(f)
	}
	return out
}

func newEngine(strategy merge.Strategy, workers int) *merge.Engine {
	return merge.NewEngine(merge.Options{Strategy: strategy, Workers: workers, BatchSize: 4})
}

func TestMergeTakesCleanerCaptureAtEachIndex(t *testing.T) {
	format := dv.FormatNTSC
	clean := cleanFrames(format, 10)
	a := cloneFrames(clean)
	b := cloneFrames(clean)

	video := testsupport.BlocksOfKind(format, dv.KindVideo)
	audio := testsupport.BlocksOfKind(format, dv.KindAudio)
	for _, v := range video {
		testsupport.SetVideoError(format, a[5], v)
	}
	for _, n := range audio {
		testsupport.SetAudioError(format, b[0], n)
		testsupport.SetAudioError(format, b[1], n)
	}

	res, err := newEngine(merge.StrategyScore, 2).Merge(context.Background(), []merge.Source{
		merge.CaptureOf("A", format, a...),
		merge.CaptureOf("B", format, b...),
	})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(res.Frames) != 10 {
		t.Fatalf("expected 10 merged frames, got %d", len(res.Frames))
	}
	if len(res.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics, got %v", res.Diagnostics)
	}
	for i, f := range res.Frames {
		if f.Index != int64(i) {
			t.Fatalf("frame %d has index %d", i, f.Index)
		}
		if n := f.Count(merge.OriginUnresolved); n != 0 {
			t.Fatalf("frame %d has %d unresolved blocks", i, n)
		}
		if !bytes.Equal(f.Data, clean[i]) {
			t.Fatalf("frame %d differs from the clean source", i)
		}
		wantCapture := 0
		if i == 5 {
			wantCapture = 1
		}
		if got := f.Provenance[video[40]].Capture; got != wantCapture {
			t.Fatalf("frame %d video block from capture %d, want %d", i, got, wantCapture)
		}
	}
	for _, i := range []int{0, 1} {
		for _, n := range audio {
			if got := res.Frames[i].Provenance[n].Capture; got != 0 {
				t.Fatalf("frame %d audio block %d from capture %d, want A", i, n, got)
			}
		}
	}

	repaired, err := repair.NewEngine(repair.Options{Policy: repair.DefaultPolicy()}).Repair(context.Background(), res.Frames)
	if err != nil {
		t.Fatalf("Repair returned error: %v", err)
	}
	if repaired.Totals.Irrecoverable != 0 || len(repaired.Irrecoverable) != 0 {
		t.Fatalf("expected nothing irrecoverable after merging both captures, got %v", repaired.Irrecoverable)
	}
	if repaired.Totals.ConcealedRedundant+repaired.Totals.ConcealedTemporal != 0 {
		t.Fatalf("expected every block taken from a capture, got %+v", repaired.Totals)
	}
}

func TestMergeTieGoesToFirstCapture(t *testing.T) {
	format := dv.FormatPAL
	frames := cleanFrames(format, 3)
	res, err := newEngine(merge.StrategyScore, 3).Merge(context.Background(), []merge.Source{
		merge.CaptureOf("first", format, cloneFrames(frames)...),
		merge.CaptureOf("second", format, cloneFrames(frames)...),
	})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	for _, f := range res.Frames {
		for b, p := range f.Provenance {
			if p.Origin != merge.OriginCapture || p.Capture != 0 {
				t.Fatalf("frame %d block %d: provenance %+v, want capture 0", f.Index, b, p)
			}
		}
		if len(f.Captures) != 2 {
			t.Fatalf("frame %d: expected both captures as candidates, got %v", f.Index, f.Captures)
		}
	}
}

func TestMergeSingleCaptureKeepsInvalidBlocksUnresolved(t *testing.T) {
	format := dv.FormatNTSC
	frames := cleanFrames(format, 2)
	video := testsupport.BlocksOfKind(format, dv.KindVideo)
	testsupport.SetVideoError(format, frames[1], video[0])

	res, err := newEngine(merge.StrategyScore, 1).Merge(context.Background(), []merge.Source{
		merge.CaptureOf("only", format, frames...),
	})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	f := res.Frames[1]
	if f.Provenance[video[0]].Origin != merge.OriginUnresolved {
		t.Fatalf("expected unresolved block, got %s", f.Provenance[video[0]].Origin)
	}
	if !bytes.Equal(f.Block(video[0]), make([]byte, dv.BlockSize)) {
		t.Fatal("unresolved block is not zero-filled")
	}
	if res.Stats.Unresolved != 1 {
		t.Fatalf("expected 1 unresolved block in stats, got %d", res.Stats.Unresolved)
	}
	other := video[1]
	if !bytes.Equal(f.Block(other), frames[1][other*dv.BlockSize:(other+1)*dv.BlockSize]) {
		t.Fatal("valid block was not copied verbatim")
	}
}

func TestMergeHonorsDeviceErrorMaps(t *testing.T) {
	format := dv.FormatNTSC
	frames := cleanFrames(format, 1)
	a := merge.NewCapture("A", format)
	a.Add(0, bytes.Clone(frames[0]), testsupport.ErrorMapFor(format, 300))
	b := merge.NewCapture("B", format)
	b.Add(0, bytes.Clone(frames[0]), dv.ErrorMap{})

	res, err := newEngine(merge.StrategyScore, 1).Merge(context.Background(), []merge.Source{a, b})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if got := res.Frames[0].Provenance[300].Capture; got != 1 {
		t.Fatalf("block flagged by device map taken from capture %d, want 1", got)
	}
}

func TestMergeIsDeterministicAcrossWorkerCounts(t *testing.T) {
	format := dv.FormatNTSC
	clean := cleanFrames(format, 12)
	build := func() []merge.Source {
		a := cloneFrames(clean)
		b := cloneFrames(clean)
		video := testsupport.BlocksOfKind(format, dv.KindVideo)
		for i := range a {
			testsupport.SetVideoError(format, a[i], video[i*3])
			testsupport.SetVideoError(format, b[i], video[i*3+1])
		}
		return []merge.Source{merge.CaptureOf("A", format, a...), merge.CaptureOf("B", format, b...)}
	}

	one, err := newEngine(merge.StrategyScore, 1).Merge(context.Background(), build())
	if err != nil {
		t.Fatalf("Merge (1 worker): %v", err)
	}
	many, err := newEngine(merge.StrategyScore, 8).Merge(context.Background(), build())
	if err != nil {
		t.Fatalf("Merge (8 workers): %v", err)
	}
	if len(one.Frames) != len(many.Frames) {
		t.Fatalf("frame counts differ: %d vs %d", len(one.Frames), len(many.Frames))
	}
	for i := range one.Frames {
		if !bytes.Equal(one.Frames[i].Data, many.Frames[i].Data) {
			t.Fatalf("frame %d differs between runs", i)
		}
		if !bytes.Equal(one.Frames[i].Data, clean[i]) {
			t.Fatalf("frame %d was not fully recovered from complementary captures", i)
		}
	}
}

func TestMergeReportsMissingFrames(t *testing.T) {
	format := dv.FormatNTSC
	frames := cleanFrames(format, 5)
	a := merge.NewCapture("A", format)
	a.Add(0, frames[0], dv.ErrorMap{})
	a.Add(4, frames[4], dv.ErrorMap{})
	a.Add(1, frames[1], dv.ErrorMap{})
	b := merge.NewCapture("B", format)
	b.Add(1, frames[1], dv.ErrorMap{})

	res, err := newEngine(merge.StrategyScore, 2).Merge(context.Background(), []merge.Source{a, b})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	var indexes []int64
	for _, f := range res.Frames {
		indexes = append(indexes, f.Index)
	}
	if len(indexes) != 3 || indexes[0] != 0 || indexes[1] != 1 || indexes[2] != 4 {
		t.Fatalf("unexpected merged indexes %v", indexes)
	}
	var missing []int64
	for _, d := range res.Diagnostics {
		if d.Kind == faults.KindMissingFrame {
			missing = append(missing, d.Frame)
		}
	}
	if len(missing) != 2 || missing[0] != 2 || missing[1] != 3 {
		t.Fatalf("expected missing frames [2 3], got %v", missing)
	}
	if res.Stats.Missing != 2 {
		t.Fatalf("expected stats to count 2 missing frames, got %d", res.Stats.Missing)
	}
}

func TestMergeTreatsMalformedFrameAsAbsent(t *testing.T) {
	format := dv.FormatNTSC
	frames := cleanFrames(format, 3)
	a := merge.CaptureOf("A", format, frames[0], frames[1][:1000], frames[2])
	b := merge.CaptureOf("B", format, cloneFrames(frames)...)

	res, err := newEngine(merge.StrategyScore, 2).Merge(context.Background(), []merge.Source{a, b})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(res.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(res.Frames))
	}
	if got := res.Frames[1].Provenance[0].Capture; got != 1 {
		t.Fatalf("frame 1 taken from capture %d, want B", got)
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %v", res.Diagnostics)
	}
	d := res.Diagnostics[0]
	if d.Kind != faults.KindMalformedFrame || d.Capture != "A" || d.Frame != 1 {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
}

func TestMergeFailsWithoutUsableFrames(t *testing.T) {
	format := dv.FormatNTSC
	frame := testsupport.BuildFrame(format)
	_, err := newEngine(merge.StrategyScore, 1).Merge(context.Background(), []merge.Source{
		merge.CaptureOf("short", format, frame[:10], frame[:20]),
	})
	if !errors.Is(err, faults.ErrNoUsableFrames) {
		t.Fatalf("expected ErrNoUsableFrames, got %v", err)
	}

	_, err = newEngine(merge.StrategyScore, 1).Merge(context.Background(), nil)
	if !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for no captures, got %v", err)
	}
}

func TestMergeRejectsMixedFormats(t *testing.T) {
	_, err := newEngine(merge.StrategyScore, 1).Merge(context.Background(), []merge.Source{
		merge.CaptureOf("ntsc", dv.FormatNTSC, testsupport.BuildFrame(dv.FormatNTSC)),
		merge.CaptureOf("pal", dv.FormatPAL, testsupport.BuildFrame(dv.FormatPAL)),
	})
	if !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVoteStrategyPrefersAgreeingContent(t *testing.T) {
	format := dv.FormatNTSC
	a := testsupport.BuildFrame(format, testsupport.WithVideoSeed(1))
	b := testsupport.BuildFrame(format, testsupport.WithVideoSeed(2))
	c := testsupport.BuildFrame(format, testsupport.WithVideoSeed(2))

	sources := func() []merge.Source {
		return []merge.Source{
			merge.CaptureOf("A", format, bytes.Clone(a)),
			merge.CaptureOf("B", format, bytes.Clone(b)),
			merge.CaptureOf("C", format, bytes.Clone(c)),
		}
	}
	video := testsupport.BlocksOfKind(format, dv.KindVideo)

	voted, err := newEngine(merge.StrategyVote, 2).Merge(context.Background(), sources())
	if err != nil {
		t.Fatalf("vote merge: %v", err)
	}
	f := voted.Frames[0]
	if got := f.Provenance[video[0]].Capture; got != 1 {
		t.Fatalf("vote took video block from capture %d, want B", got)
	}
	if got := f.Provenance[0].Capture; got != 0 {
		t.Fatalf("unanimous header should come from capture A, got %d", got)
	}

	scored, err := newEngine(merge.StrategyScore, 2).Merge(context.Background(), sources())
	if err != nil {
		t.Fatalf("score merge: %v", err)
	}
	if got := scored.Frames[0].Provenance[video[0]].Capture; got != 0 {
		t.Fatalf("score strategy took video block from capture %d, want A", got)
	}
}

func TestVoteFallsBackToScoreWithTwoCaptures(t *testing.T) {
	format := dv.FormatNTSC
	a := testsupport.BuildFrame(format, testsupport.WithVideoSeed(1))
	b := testsupport.BuildFrame(format, testsupport.WithVideoSeed(2))
	res, err := newEngine(merge.StrategyVote, 1).Merge(context.Background(), []merge.Source{
		merge.CaptureOf("A", format, a),
		merge.CaptureOf("B", format, b),
	})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if !bytes.Equal(res.Frames[0].Data, a) {
		t.Fatal("expected capture A to win every block")
	}
}

func TestStreamStopsOnCancellationWithPrefix(t *testing.T) {
	format := dv.FormatNTSC
	frames := cleanFrames(format, 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []int64
	_, err := newEngine(merge.StrategyScore, 2).Stream(ctx, []merge.Source{merge.CaptureOf("A", format, frames...)}, merge.Sink{
		Frame: func(f *merge.MergedFrame) error {
			got = append(got, f.Index)
			if len(got) == 3 {
				cancel()
			}
			return nil
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected exactly the 3-frame prefix, got %v", got)
	}
	for i, idx := range got {
		if idx != int64(i) {
			t.Fatalf("prefix out of order: %v", got)
		}
	}
}
