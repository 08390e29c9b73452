package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dvrestore/internal/config"
	"dvrestore/internal/dv"
	"dvrestore/internal/restore"
)

// errStopScan ends a scan early once the requested range is printed.
var errStopScan = errors.New("stop scan")

func newDumpCommand(ctx *commandContext) *cobra.Command {
	var (
		frames  string
		kinds   []string
		hexDump bool
		invalid bool
		errMap  string
	)

	cmd := &cobra.Command{
		Use:   "dump <file.dv>",
		Short: "List the DIF blocks of each frame with their status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lo, hi, err := parseFrameRange(frames)
			if err != nil {
				return err
			}
			opts := dv.DumpOptions{Hex: hexDump, OnlyInvalid: invalid}
			if len(kinds) > 0 {
				opts.Kinds = make(map[dv.Kind]bool, len(kinds))
				for _, name := range kinds {
					k, err := dv.ParseKind(strings.ToLower(strings.TrimSpace(name)))
					if err != nil {
						return err
					}
					opts.Kinds[k] = true
				}
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()
			_, err = restore.Scan(commandCtx(cmd), cfg, path, errMap, func(index int64, f *dv.Frame, derr error) error {
				if index < lo {
					return nil
				}
				if hi >= 0 && index > hi {
					return errStopScan
				}
				if derr != nil {
					_, err := fmt.Fprintf(w, "frame %d malformed: %v\n", index, derr)
					return err
				}
				return dv.Dump(w, index, f, opts)
			})
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&frames, "frames", "", "Frame range a-b, a- or a (default all)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only list these block kinds (header, subcode, vaux, audio, video)")
	cmd.Flags().BoolVar(&hexDump, "hex", false, "Print block payloads as hex")
	cmd.Flags().BoolVar(&invalid, "invalid", false, "Only list blocks flagged invalid")
	cmd.Flags().StringVar(&errMap, "errmap", "", "Error map sidecar (default <file>.errmap when present)")
	return cmd
}

// parseFrameRange parses "a-b", "a-" or "a". An empty range selects every
// frame; an open upper bound is returned as -1.
func parseFrameRange(text string) (int64, int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, -1, nil
	}
	loText, hiText, isRange := strings.Cut(text, "-")
	lo, err := strconv.ParseInt(strings.TrimSpace(loText), 10, 64)
	if err != nil || lo < 0 {
		return 0, 0, fmt.Errorf("invalid frame range %q", text)
	}
	if !isRange {
		return lo, lo, nil
	}
	if strings.TrimSpace(hiText) == "" {
		return lo, -1, nil
	}
	hi, err := strconv.ParseInt(strings.TrimSpace(hiText), 10, 64)
	if err != nil || hi < lo {
		return 0, 0, fmt.Errorf("invalid frame range %q", text)
	}
	return lo, hi, nil
}
