package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dvrestore/internal/dv"
)

func TestRestoreThenReport(t *testing.T) {
	env := setupCLITestEnv(t)
	a := writeTape(t, env.dir, "pass1.dv", 6)
	b := writeTape(t, env.dir, "pass2.dv", 6)
	prefix := filepath.Join(env.dir, "out", "reel")

	out, _, err := runCLI(t, []string{"restore", "--json", "--reel", "reel-7", prefix, a, b}, env.configPath)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	var summary runSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	if summary.Frames != 6 || summary.Irrecoverable != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Video != prefix+".dv" || summary.Audio != prefix+".wav" {
		t.Fatalf("unexpected outputs: video=%s audio=%s", summary.Video, summary.Audio)
	}
	for _, p := range []string{summary.Video, summary.Audio, summary.Stats} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected output %s: %v", p, err)
		}
	}

	out, _, err = runCLI(t, []string{"report"}, env.configPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, shortID(summary.RunID))
	requireContains(t, out, "Completed")

	out, _, err = runCLI(t, []string{"report", shortID(summary.RunID)}, env.configPath)
	if err != nil {
		t.Fatalf("report detail: %v", err)
	}
	requireContains(t, out, summary.RunID)
	requireContains(t, out, "Irrecoverable blocks")
	requireContains(t, out, "pass1.dv")

	if _, _, err := runCLI(t, []string{"report", "ffffffff"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown run")
	}

	out, _, err = runCLI(t, []string{"report", "--delete", summary.RunID}, env.configPath)
	if err != nil {
		t.Fatalf("report --delete: %v", err)
	}
	requireContains(t, out, "Deleted run")
	out, _, err = runCLI(t, []string{"report"}, env.configPath)
	if err != nil {
		t.Fatalf("report after delete: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}

func TestMergeWritesRepairedStream(t *testing.T) {
	env := setupCLITestEnv(t)
	a := writeTape(t, env.dir, "a.dv", 4)
	target := filepath.Join(env.dir, "merged.dv")

	out, _, err := runCLI(t, []string{"merge", target, a}, env.configPath)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	requireContains(t, out, "Restored")
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat merged: %v", err)
	}
	if info.Size() != int64(4*dv.FormatNTSC.FrameSize()) {
		t.Fatalf("expected 4 frames, got %d bytes", info.Size())
	}
	if _, err := os.Stat(filepath.Join(env.dir, "merged.wav")); !os.IsNotExist(err) {
		t.Fatalf("merge should not write audio, stat err=%v", err)
	}
}

func TestMergeRejectsUnknownErrMapLabel(t *testing.T) {
	env := setupCLITestEnv(t)
	a := writeTape(t, env.dir, "a.dv", 2)
	_, _, err := runCLI(t, []string{"merge", "--errmap", "zzz=/tmp/none", filepath.Join(env.dir, "m.dv"), a}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "names no capture") {
		t.Fatalf("expected errmap label error, got %v", err)
	}
}

func TestInspectCSVAndDump(t *testing.T) {
	env := setupCLITestEnv(t)
	a := writeTape(t, env.dir, "a.dv", 3)

	out, _, err := runCLI(t, []string{"inspect", "--csv", "-", a}, env.configPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d lines: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "frame,timecode,sample_rate") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,,48000,") {
		t.Fatalf("unexpected first row %q", lines[1])
	}

	out, _, err = runCLI(t, []string{"dump", "--frames", "1", "--kind", "header", a}, env.configPath)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	requireContains(t, out, "frame 1 ")
	if strings.Contains(out, "frame 0 ") || strings.Contains(out, "frame 2 ") {
		t.Fatalf("dump printed frames outside the range: %q", out)
	}
}

func TestResyncCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	a := writeTape(t, env.dir, "a.dv", 5)
	wav := filepath.Join(env.dir, "a.wav")

	out, _, err := runCLI(t, []string{"resync", "--json", a, wav}, env.configPath)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	var totals map[string]any
	if err := json.Unmarshal([]byte(out), &totals); err != nil {
		t.Fatalf("decode totals %q: %v", out, err)
	}
	if totals["samples"].(float64) != 8008 {
		t.Fatalf("expected 8008 samples, got %v", totals["samples"])
	}
	if _, err := os.Stat(wav); err != nil {
		t.Fatalf("expected wav: %v", err)
	}
}

func TestParseFrameRange(t *testing.T) {
	cases := []struct {
		text   string
		lo, hi int64
		ok     bool
	}{
		{"", 0, -1, true},
		{"5", 5, 5, true},
		{"2-9", 2, 9, true},
		{"3-", 3, -1, true},
		{"9-2", 0, 0, false},
		{"x", 0, 0, false},
	}
	for _, tc := range cases {
		lo, hi, err := parseFrameRange(tc.text)
		if (err == nil) != tc.ok {
			t.Fatalf("parseFrameRange(%q) err=%v, want ok=%v", tc.text, err, tc.ok)
		}
		if tc.ok && (lo != tc.lo || hi != tc.hi) {
			t.Fatalf("parseFrameRange(%q) = %d,%d want %d,%d", tc.text, lo, hi, tc.lo, tc.hi)
		}
	}
}

func TestMetadataReadTransformWrite(t *testing.T) {
	env := setupCLITestEnv(t)
	a := writeTape(t, env.dir, "a.dv", 6)
	table := filepath.Join(env.dir, "a.csv")
	fixed := filepath.Join(env.dir, "a.fixed.csv")
	rules := filepath.Join(env.dir, "rules.toml")
	out := filepath.Join(env.dir, "a.fixed.dv")

	if _, _, err := runCLI(t, []string{"metadata", "read", a, table}, env.configPath); err != nil {
		t.Fatalf("metadata read: %v", err)
	}
	content, err := os.ReadFile(table)
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 7 || lines[1] != "0,525-60,0x0,0x7," {
		t.Fatalf("unexpected table %q", content)
	}

	doc := "[thresholds]\nmax_changed_proportion = 1.0\nmax_consecutive_modifications = 0\n\n" +
		"[[rules]]\ntype = \"renumber_arbitrary_bits\"\nstart_frame = 2\ninitial_value = 0x5\n"
	if err := os.WriteFile(rules, []byte(doc), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	report, _, err := runCLI(t, []string{"metadata", "transform", table, rules, fixed}, env.configPath)
	if err != nil {
		t.Fatalf("metadata transform: %v", err)
	}
	requireContains(t, report, "renumber_arbitrary_bits")

	summary, _, err := runCLI(t, []string{"metadata", "write", a, fixed, out}, env.configPath)
	if err != nil {
		t.Fatalf("metadata write: %v", err)
	}
	requireContains(t, summary, "Frames patched")

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	size := dv.FormatNTSC.FrameSize()
	if len(data) != 6*size {
		t.Fatalf("output has %d bytes, want %d", len(data), 6*size)
	}
	for i, want := range []uint8{0x0, 0x0, 0x5, 0x6, 0x7, 0x8} {
		if got := dv.ArbitraryBits(dv.FormatNTSC, data[i*size:(i+1)*size]); got != want {
			t.Fatalf("frame %d arbitrary bits %#x, want %#x", i, got, want)
		}
	}

	if _, _, err := runCLI(t, []string{"metadata", "write", a, fixed, a}, env.configPath); err == nil {
		t.Fatal("expected write over the input stream to fail")
	}
}
