package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"dvrestore/internal/faults"
	"dvrestore/internal/restore"
)

type runSummary struct {
	RunID              string         `json:"run_id"`
	Format             string         `json:"format"`
	Strategy           string         `json:"strategy"`
	Cancelled          bool           `json:"cancelled"`
	Video              string         `json:"video"`
	Audio              string         `json:"audio,omitempty"`
	Stats              string         `json:"stats,omitempty"`
	Log                string         `json:"log,omitempty"`
	Frames             int64          `json:"frames"`
	FirstFrame         int64          `json:"first_frame"`
	LastFrame          int64          `json:"last_frame"`
	MissingFrames      int64          `json:"missing_frames"`
	MalformedFrames    int64          `json:"malformed_frames"`
	MergedBlocks       int64          `json:"merged_blocks"`
	ConcealedRedundant int64          `json:"concealed_redundant"`
	ConcealedTemporal  int64          `json:"concealed_temporal"`
	Irrecoverable      int64          `json:"irrecoverable_blocks"`
	SampleRate         int            `json:"sample_rate,omitempty"`
	AudioChannels      int            `json:"audio_channels,omitempty"`
	AudioSamples       int64          `json:"audio_samples"`
	AudioSurplus       int64          `json:"audio_surplus"`
	AudioDeficit       int64          `json:"audio_deficit"`
	AudioConcealed     int64          `json:"audio_concealed"`
	ScheduleMismatches int64          `json:"schedule_mismatches"`
	Diagnostics        map[string]int `json:"diagnostics"`
	DurationSeconds    float64        `json:"duration_seconds"`
}

func summarize(res *restore.Result) runSummary {
	s := runSummary{
		RunID:              res.RunID,
		Format:             res.Format.String(),
		Strategy:           string(res.Strategy),
		Cancelled:          res.Cancelled,
		Video:              res.Outputs.Video,
		Audio:              res.Outputs.Audio,
		Stats:              res.Outputs.Stats,
		Log:                res.Outputs.Log,
		Frames:             res.Repair.Frames,
		FirstFrame:         res.Merge.First,
		LastFrame:          res.Merge.Last,
		MissingFrames:      res.Merge.Missing,
		MalformedFrames:    res.Merge.Malformed,
		MergedBlocks:       res.Repair.Merged,
		ConcealedRedundant: res.Repair.ConcealedRedundant,
		ConcealedTemporal:  res.Repair.ConcealedTemporal,
		Irrecoverable:      res.Repair.Irrecoverable,
		AudioSamples:       res.Audio.Samples,
		AudioSurplus:       res.Audio.Surplus,
		AudioDeficit:       res.Audio.Deficit,
		AudioConcealed:     res.Audio.Concealed,
		ScheduleMismatches: res.Audio.Mismatches,
		Diagnostics:        make(map[string]int, len(res.Diagnostics)),
		DurationSeconds:    res.Duration.Seconds(),
	}
	if res.Outputs.Audio != "" {
		s.SampleRate = res.Layout.Rate
		s.AudioChannels = res.Layout.Channels()
	}
	for kind, n := range res.Diagnostics {
		s.Diagnostics[string(kind)] = n
	}
	return s
}

func renderSummary(w io.Writer, s runSummary, colorize bool) {
	kind, message := runStatus(s)
	fmt.Fprintln(w, renderStatusLine("Run "+shortID(s.RunID), kind, message, colorize))

	rows := [][]string{
		{"Format", s.Format},
		{"Strategy", s.Strategy},
		{"Frames", formatCount(s.Frames)},
	}
	if s.Frames > 0 {
		rows = append(rows, []string{"Frame range", fmt.Sprintf("%d-%d", s.FirstFrame, s.LastFrame)})
	}
	rows = append(rows,
		[]string{"Missing frames", formatCount(s.MissingFrames)},
		[]string{"Malformed frames", formatCount(s.MalformedFrames)},
		[]string{"Merged blocks", formatCount(s.MergedBlocks)},
		[]string{"Concealed (redundant)", formatCount(s.ConcealedRedundant)},
		[]string{"Concealed (temporal)", formatCount(s.ConcealedTemporal)},
		[]string{"Irrecoverable blocks", formatCount(s.Irrecoverable)},
	)
	if s.Audio != "" {
		rows = append(rows,
			[]string{"Audio", fmt.Sprintf("%s Hz x %d", formatCount(int64(s.SampleRate)), s.AudioChannels)},
			[]string{"Audio samples", formatCount(s.AudioSamples)},
			[]string{"Samples dropped", formatCount(s.AudioSurplus)},
			[]string{"Samples inserted", formatCount(s.AudioDeficit)},
			[]string{"Samples concealed", formatCount(s.AudioConcealed)},
			[]string{"Schedule mismatches", formatCount(s.ScheduleMismatches)},
		)
	}
	rows = append(rows, []string{"Diagnostics", diagnosticLine(s.Diagnostics)})
	rows = append(rows, []string{"Elapsed", formatSeconds(s.DurationSeconds)})
	fmt.Fprintln(w, renderKeyValues(rows))

	for _, out := range []struct{ label, path string }{
		{"Video", s.Video}, {"Audio", s.Audio}, {"Drift stats", s.Stats}, {"Run log", s.Log},
	} {
		if out.path != "" {
			fmt.Fprintln(w, renderStatusLine(out.label, statusInfo, out.path, colorize))
		}
	}
}

func diagnosticLine(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%s", k, formatCount(int64(counts[k])))
	}
	return strings.Join(parts, " ")
}

func diagnosticCounts(diags []faults.Diagnostic) map[string]int {
	counts := make(map[string]int)
	for kind, n := range faults.Counts(diags) {
		counts[string(kind)] = n
	}
	return counts
}
