package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dvrestore/internal/config"
	"dvrestore/internal/restore"
)

func newResyncCommand(ctx *commandContext) *cobra.Command {
	var statsPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resync <in.dv> <out.wav>",
		Short: "Extract locked, gap-free audio from a repaired stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			in, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			wav, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			if statsPath != "" {
				if statsPath, err = config.ExpandPath(statsPath); err != nil {
					return err
				}
			}

			res, err := restore.ResyncFile(commandCtx(cmd), cfg, restore.ResyncJob{
				Input:  in,
				WAV:    wav,
				Stats:  statsPath,
				Logger: logger,
			})
			if res == nil {
				return err
			}

			if asJSON {
				if jerr := writeJSON(cmd, map[string]any{
					"wav":                 wav,
					"stats":               statsPath,
					"frames":              res.Totals.Frames,
					"missing_frames":      res.Totals.MissingFrames,
					"sample_rate":         res.Layout.Rate,
					"channels":            res.Layout.Channels(),
					"samples":             res.Totals.Samples,
					"surplus":             res.Totals.Surplus,
					"deficit":             res.Totals.Deficit,
					"concealed":           res.Totals.Concealed,
					"schedule_mismatches": res.Totals.Mismatches,
					"cancelled":           res.Cancelled,
				}); jerr != nil {
					return jerr
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderKeyValues([][]string{
				{"Frames", formatCount(res.Totals.Frames)},
				{"Missing frames", formatCount(res.Totals.MissingFrames)},
				{"Audio", fmt.Sprintf("%s Hz x %d", formatCount(int64(res.Layout.Rate)), res.Layout.Channels())},
				{"Samples", formatCount(res.Totals.Samples)},
				{"Samples dropped", formatCount(res.Totals.Surplus)},
				{"Samples inserted", formatCount(res.Totals.Deficit)},
				{"Samples concealed", formatCount(res.Totals.Concealed)},
				{"Schedule mismatches", formatCount(res.Totals.Mismatches)},
			}))
			fmt.Fprintln(out, renderStatusLine("Audio", statusInfo, wav, isTerminal(out)))
			if statsPath != "" {
				fmt.Fprintln(out, renderStatusLine("Drift stats", statusInfo, statsPath, isTerminal(out)))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&statsPath, "stats", "", "Write drift statistics CSV to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output totals as JSON")
	return cmd
}
