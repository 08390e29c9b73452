package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/journal"
	"dvrestore/internal/repair"
	"dvrestore/internal/resync"
	"dvrestore/internal/testsupport"

	_ "modernc.org/sqlite"
)

func TestCreateAndFinishRun(t *testing.T) {
	store := testsupport.NewJournal(t)
	ctx := context.Background()

	run := testsupport.NewRun(t, store, "/tmp/reel1", "a.dv", "b.dv")
	if run.ID == "" || run.Status != journal.StatusRunning {
		t.Fatalf("unexpected new run: %#v", run)
	}

	first, last := int64(0), int64(99)
	totals := journal.Totals{
		Frames:             100,
		FirstFrame:         &first,
		LastFrame:          &last,
		MissingFrames:      2,
		MergedBlocks:       100 * 1500,
		ConcealedRedundant: 4,
		Irrecoverable:      1,
		AudioSamples:       160160,
		AudioDeficit:       2,
	}
	if err := store.FinishRun(ctx, run.ID, journal.StatusCompleted, totals, nil); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	fetched, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected run to be found")
	}
	if fetched.Status != journal.StatusCompleted || fetched.FinishedAt == nil {
		t.Fatalf("run not finished: %#v", fetched)
	}
	if len(fetched.Captures) != 2 || fetched.Captures[1] != "b.dv" {
		t.Fatalf("unexpected captures %v", fetched.Captures)
	}
	if fetched.Totals.Frames != 100 || fetched.Totals.AudioSamples != 160160 || fetched.Totals.Irrecoverable != 1 {
		t.Fatalf("unexpected totals %#v", fetched.Totals)
	}
	if fetched.Totals.FirstFrame == nil || *fetched.Totals.LastFrame != 99 {
		t.Fatalf("frame range not stored: %#v", fetched.Totals)
	}
	if fetched.Duration() < 0 {
		t.Fatalf("negative duration %s", fetched.Duration())
	}
}

func TestFinishRunRecordsError(t *testing.T) {
	store := testsupport.NewJournal(t)
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "/tmp/reel2", "a.dv")

	if err := store.FinishRun(ctx, run.ID, journal.StatusRunning, journal.Totals{}, nil); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
	if err := store.FinishRun(ctx, run.ID, journal.StatusFailed, journal.Totals{}, errors.New("no usable frames")); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	fetched, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if fetched.ErrorMessage != "no usable frames" || fetched.Totals.FirstFrame != nil {
		t.Fatalf("unexpected failed run %#v", fetched)
	}
	if err := store.FinishRun(ctx, "missing", journal.StatusFailed, journal.Totals{}, nil); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestGetRunMissingReturnsNil(t *testing.T) {
	store := testsupport.NewJournal(t)
	run, err := store.GetRun(context.Background(), "does-not-exist")
	if err != nil || run != nil {
		t.Fatalf("expected nil run without error, got %#v, %v", run, err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := testsupport.NewJournal(t)
	ctx := context.Background()

	var ids []string
	for _, prefix := range []string{"/r/a", "/r/b", "/r/c"} {
		ids = append(ids, testsupport.NewRun(t, store, prefix).ID)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %v", runs)
	}
	all, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}

	found, err := store.FindRun(ctx, ids[0][:8])
	if err != nil {
		t.Fatalf("FindRun failed: %v", err)
	}
	if found == nil || found.ID != ids[0] {
		t.Fatalf("prefix lookup returned %#v", found)
	}
}

func TestAuditRowsRoundTrip(t *testing.T) {
	store := testsupport.NewJournal(t)
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "/tmp/reel3", "a.dv")

	frames := []repair.FrameSummary{
		{Index: 0, Merged: 1500},
		{Index: 1, Merged: 1497, ConcealedRedundant: 2, ConcealedTemporal: 1},
		{Index: 3, Merged: 1499, Irrecoverable: 1},
	}
	if err := store.RecordFrames(ctx, run.ID, frames); err != nil {
		t.Fatalf("RecordFrames failed: %v", err)
	}
	block := testsupport.BlocksOfKind(dv.FormatNTSC, dv.KindVideo)[500]
	pos := dv.FormatNTSC.Position(block)
	irrecoverable := []repair.IrrecoverableBlock{{
		Frame:    3,
		Block:    block,
		Position: pos,
		Kind:     dv.KindVideo,
		Offset:   3*dv.FormatNTSC.FrameSize() + block*dv.BlockSize,
		Length:   dv.BlockSize,
	}}
	if err := store.RecordIrrecoverable(ctx, run.ID, irrecoverable); err != nil {
		t.Fatalf("RecordIrrecoverable failed: %v", err)
	}
	corrections := []resync.Correction{
		{Frame: 0, Direction: resync.Deficit, Count: 2},
		{Frame: 2, Direction: resync.Deficit, Count: 1601, Reason: resync.ReasonMissingFrame},
	}
	if err := store.RecordCorrections(ctx, run.ID, corrections); err != nil {
		t.Fatalf("RecordCorrections failed: %v", err)
	}
	diags := []faults.Diagnostic{
		faults.MissingFrame(2),
		faults.MalformedFrame("b", 5, errors.New("short read")),
	}
	if err := store.RecordDiagnostics(ctx, run.ID, diags); err != nil {
		t.Fatalf("RecordDiagnostics failed: %v", err)
	}

	gotFrames, err := store.FrameSummaries(ctx, run.ID)
	if err != nil {
		t.Fatalf("FrameSummaries failed: %v", err)
	}
	if len(gotFrames) != 3 || gotFrames[1] != frames[1] || gotFrames[2].Index != 3 {
		t.Fatalf("unexpected frame summaries %v", gotFrames)
	}
	gotBlocks, err := store.Irrecoverable(ctx, run.ID)
	if err != nil {
		t.Fatalf("Irrecoverable failed: %v", err)
	}
	if len(gotBlocks) != 1 || gotBlocks[0].Block != block || gotBlocks[0].Sequence != pos.Sequence || gotBlocks[0].Slot != pos.Slot || gotBlocks[0].Kind != dv.KindVideo.String() {
		t.Fatalf("unexpected irrecoverable rows %v", gotBlocks)
	}
	gotCorrections, err := store.Corrections(ctx, run.ID)
	if err != nil {
		t.Fatalf("Corrections failed: %v", err)
	}
	if len(gotCorrections) != 2 || gotCorrections[1] != corrections[1] {
		t.Fatalf("unexpected corrections %v", gotCorrections)
	}
	gotDiags, err := store.Diagnostics(ctx, run.ID)
	if err != nil {
		t.Fatalf("Diagnostics failed: %v", err)
	}
	if len(gotDiags) != 2 || gotDiags[0] != diags[0] || gotDiags[1].Capture != "b" || gotDiags[1].Detail != "short read" {
		t.Fatalf("unexpected diagnostics %v", gotDiags)
	}

	deleted, err := store.DeleteRun(ctx, run.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteRun = %v, %v", deleted, err)
	}
	gotFrames, err = store.FrameSummaries(ctx, run.ID)
	if err != nil {
		t.Fatalf("FrameSummaries failed: %v", err)
	}
	if len(gotFrames) != 0 {
		t.Fatalf("audit rows survived delete: %v", gotFrames)
	}
}

func TestResetRunningMarksInterrupted(t *testing.T) {
	store := testsupport.NewJournal(t)
	ctx := context.Background()
	stale := testsupport.NewRun(t, store, "/tmp/stale")
	done := testsupport.NewRun(t, store, "/tmp/done")
	if err := store.FinishRun(ctx, done.ID, journal.StatusCompleted, journal.Totals{}, nil); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	n, err := store.ResetRunning(ctx)
	if err != nil {
		t.Fatalf("ResetRunning failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset, got %d", n)
	}
	fetched, _ := store.GetRun(ctx, stale.ID)
	if fetched.Status != journal.StatusFailed || fetched.ErrorMessage != "interrupted" {
		t.Fatalf("unexpected stale run %#v", fetched)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	run := testsupport.NewRun(t, store, "/tmp/reel")
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	fetched, err := reopened.GetRun(context.Background(), run.ID)
	if err != nil || fetched == nil {
		t.Fatalf("run lost across reopen: %#v, %v", fetched, err)
	}
	if _, err := journal.Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenRefusesOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	_ = db.Close()

	if _, err := journal.Open(path); !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
