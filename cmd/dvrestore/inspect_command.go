package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"dvrestore/internal/config"
	"dvrestore/internal/dv"
	"dvrestore/internal/restore"
)

type frameInfo struct {
	Index        int64          `json:"index"`
	Malformed    string         `json:"malformed,omitempty"`
	Timecode     string         `json:"timecode,omitempty"`
	SampleRate   int            `json:"sample_rate,omitempty"`
	Quantization string         `json:"quantization,omitempty"`
	Samples      int            `json:"samples,omitempty"`
	Invalid      map[string]int `json:"invalid,omitempty"`
}

func describeFrame(index int64, f *dv.Frame, derr error) frameInfo {
	info := frameInfo{Index: index}
	if derr != nil {
		info.Malformed = derr.Error()
		return info
	}
	if tc, ok := f.Timecode(); ok {
		info.Timecode = tc.String()
	}
	if src, ok := f.AudioSource(0); ok {
		info.SampleRate = src.SampleRate
		info.Quantization = src.Quantization.String()
		info.Samples = src.SamplesPerFrame
	}
	for _, k := range dv.Kinds {
		if n := f.InvalidCount(k); n > 0 {
			if info.Invalid == nil {
				info.Invalid = make(map[string]int)
			}
			info.Invalid[k.String()] = n
		}
	}
	return info
}

var inspectHeader = []string{"frame", "timecode", "sample_rate", "quantization", "samples",
	"invalid_header", "invalid_subcode", "invalid_vaux", "invalid_audio", "invalid_video", "malformed"}

func (i frameInfo) row() []string {
	row := []string{strconv.FormatInt(i.Index, 10), i.Timecode, "", i.Quantization, ""}
	if i.SampleRate > 0 {
		row[2] = strconv.Itoa(i.SampleRate)
		row[4] = strconv.Itoa(i.Samples)
	}
	for _, k := range dv.Kinds {
		row = append(row, strconv.Itoa(i.Invalid[k.String()]))
	}
	return append(row, i.Malformed)
}

// inspectTotals sums invalid blocks per kind and counts malformed frames.
func inspectTotals(infos []frameInfo) []string {
	invalid := make(map[string]int)
	malformed := 0
	for _, info := range infos {
		for k, n := range info.Invalid {
			invalid[k] += n
		}
		if info.Malformed != "" {
			malformed++
		}
	}
	row := []string{"total", "", "", "", ""}
	for _, k := range dv.Kinds {
		row = append(row, formatCount(int64(invalid[k.String()])))
	}
	return append(row, fmt.Sprintf("%d malformed", malformed))
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var csvPath string
	var errMap string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <file.dv>",
		Short: "Print per-frame timecode, audio pack, and block validity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			if csvPath != "" {
				return inspectToCSV(cmd, cfg, path, errMap, csvPath)
			}

			var infos []frameInfo
			format, err := restore.Scan(commandCtx(cmd), cfg, path, errMap, func(index int64, f *dv.Frame, derr error) error {
				infos = append(infos, describeFrame(index, f, derr))
				return nil
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, map[string]any{"format": format.String(), "frames": infos})
			}
			rows := make([][]string, len(infos))
			for i, info := range infos {
				rows[i] = info.row()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s frames of %s\n", path, formatCount(int64(len(infos))), format)
			fmt.Fprintln(out, tableSpec{
				headers: inspectHeader,
				rows:    rows,
				aligns: []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight,
					alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
				footer: inspectTotals(infos),
			}.render())
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write the listing as CSV to this path (- for stdout)")
	cmd.Flags().StringVar(&errMap, "errmap", "", "Error map sidecar (default <file>.errmap when present)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the listing as JSON")
	return cmd
}

// inspectToCSV streams rows so long captures never build a full listing.
func inspectToCSV(cmd *cobra.Command, cfg *config.Config, path, errMap, csvPath string) error {
	var sink io.Writer = cmd.OutOrStdout()
	if csvPath != "-" {
		expanded, err := config.ExpandPath(csvPath)
		if err != nil {
			return err
		}
		file, err := os.Create(expanded)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		defer file.Close()
		sink = file
	}
	w := csv.NewWriter(sink)
	if err := w.Write(inspectHeader); err != nil {
		return err
	}
	_, err := restore.Scan(commandCtx(cmd), cfg, path, errMap, func(index int64, f *dv.Frame, derr error) error {
		return w.Write(describeFrame(index, f, derr).row())
	})
	w.Flush()
	if err != nil {
		return err
	}
	return w.Error()
}
