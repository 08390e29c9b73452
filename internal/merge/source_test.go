package merge_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/merge"
	"dvrestore/internal/testsupport"
)

func stream(frames ...[]byte) *bytes.Reader {
	return bytes.NewReader(bytes.Join(frames, nil))
}

func drain(t *testing.T, src merge.Source) []merge.Entry {
	t.Helper()
	var out []merge.Entry
	for {
		e, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, e)
	}
}

func timecodeFrame(format dv.Format, n int64) []byte {
	tc := dv.TimecodeFromFrameNumber(format.System, n, false)
	return testsupport.BuildFrame(format, testsupport.WithTimecode(tc))
}

func TestReaderSourcePositionAlignment(t *testing.T) {
	format := dv.FormatNTSC
	frames := cleanFrames(format, 3)
	maps := new(bytes.Buffer)
	_ = dv.WriteErrorMap(maps, testsupport.ErrorMapFor(format, 11))
	src := merge.NewReaderSource("A", dv.NewReader(stream(frames...), format), dv.NewErrorMapReader(maps, format), merge.AlignPosition)

	entries := drain(t, src)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Index != int64(i) {
			t.Fatalf("entry %d has index %d", i, e.Index)
		}
	}
	if !entries[0].Errors.Has(11) {
		t.Fatal("first frame lost its error map")
	}
	if entries[1].Errors.Len() != 0 {
		t.Fatal("frames past the end of the sidecar should carry no device flags")
	}
}

func TestReaderSourceReportsTruncatedTail(t *testing.T) {
	format := dv.FormatNTSC
	frames := cleanFrames(format, 2)
	src := merge.NewReaderSource("A", dv.NewReader(stream(frames[0], frames[1][:500]), format), nil, merge.AlignPosition)

	entries := drain(t, src)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Index != 1 || !errors.Is(entries[1].Err, faults.ErrMalformedFrame) {
		t.Fatalf("expected malformed tail at index 1, got %+v", entries[1])
	}
}

func TestReaderSourceTimecodeAlignment(t *testing.T) {
	format := dv.FormatNTSC
	untimed := testsupport.BuildFrame(format)
	src := merge.NewReaderSource("A", dv.NewReader(stream(
		untimed,
		timecodeFrame(format, 1000),
		timecodeFrame(format, 1001),
		untimed,
		timecodeFrame(format, 1005),
	), format), nil, merge.AlignTimecode)

	entries := drain(t, src)
	want := []int64{999, 1000, 1001, 1002, 1005}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Index != want[i] {
			t.Fatalf("entry %d: index %d, want %d", i, e.Index, want[i])
		}
	}
}

func TestMergeAlignsCapturesByTimecode(t *testing.T) {
	format := dv.FormatNTSC
	a := merge.NewReaderSource("A", dv.NewReader(stream(
		timecodeFrame(format, 10), timecodeFrame(format, 11), timecodeFrame(format, 12),
	), format), nil, merge.AlignTimecode)
	b := merge.NewReaderSource("B", dv.NewReader(stream(
		timecodeFrame(format, 12), timecodeFrame(format, 13),
	), format), nil, merge.AlignTimecode)

	res, err := newEngine(merge.StrategyScore, 2).Merge(context.Background(), []merge.Source{a, b})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(res.Frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(res.Frames))
	}
	if res.Frames[0].Index != 10 || res.Frames[3].Index != 13 {
		t.Fatalf("unexpected index range %d..%d", res.Frames[0].Index, res.Frames[3].Index)
	}
	if len(res.Frames[2].Captures) != 2 {
		t.Fatalf("index 12 should have both captures, got %v", res.Frames[2].Captures)
	}
	if got := res.Frames[3].Provenance[0].Capture; got != 1 {
		t.Fatalf("index 13 should come from B, got capture %d", got)
	}
}

func TestLoadCaptureBuildsArena(t *testing.T) {
	format := dv.FormatPAL
	frames := cleanFrames(format, 4)
	arena, err := merge.LoadCapture(context.Background(),
		merge.NewReaderSource("A", dv.NewReader(stream(frames...), format), nil, merge.AlignPosition))
	if err != nil {
		t.Fatalf("LoadCapture: %v", err)
	}
	if arena.Len() != 4 || arena.Label() != "A" {
		t.Fatalf("unexpected arena %s with %d frames", arena.Label(), arena.Len())
	}
	raw, _, ok := arena.Frame(2)
	if !ok || !bytes.Equal(raw, frames[2]) {
		t.Fatal("arena lost frame 2")
	}
	if _, _, ok := arena.Frame(4); ok {
		t.Fatal("arena reported a frame past the end")
	}
}

func TestParseStrategyAndAlign(t *testing.T) {
	if s, err := merge.ParseStrategy(" Vote "); err != nil || s != merge.StrategyVote {
		t.Fatalf("ParseStrategy(vote) = %q, %v", s, err)
	}
	if _, err := merge.ParseStrategy("majority"); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if a, err := merge.ParseAlign("timecode"); err != nil || a != merge.AlignTimecode {
		t.Fatalf("ParseAlign(timecode) = %q, %v", a, err)
	}
	if _, err := merge.ParseAlign("audio"); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
