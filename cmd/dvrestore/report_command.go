package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dvrestore/internal/faults"
	"dvrestore/internal/journal"
	"dvrestore/internal/resync"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var blockLimit int
	var asJSON bool
	var remove bool

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show recorded restore runs",
		Long:  "Without an ID, list recent runs. With a run ID or unique prefix, show its totals, irrecoverable blocks, and diagnostics.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remove && len(args) == 0 {
				return fmt.Errorf("%w: --delete needs a run ID", faults.ErrInvalidInput)
			}
			runCtx := commandCtx(cmd)
			return ctx.withJournal(runCtx, func(store *journal.Store) error {
				if len(args) == 0 {
					runs, err := store.ListRuns(runCtx, limit)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, runs)
					}
					renderRunList(cmd.OutOrStdout(), runs)
					return nil
				}

				run, err := store.FindRun(runCtx, args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("%w: no run matches %q", faults.ErrInvalidInput, args[0])
				}
				if remove {
					if _, err := store.DeleteRun(runCtx, run.ID); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
					return nil
				}
				blocks, err := store.Irrecoverable(runCtx, run.ID)
				if err != nil {
					return err
				}
				diags, err := store.Diagnostics(runCtx, run.ID)
				if err != nil {
					return err
				}
				corrections, err := store.Corrections(runCtx, run.ID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{
						"run":           run,
						"irrecoverable": blocks,
						"diagnostics":   diags,
						"corrections":   corrections,
					})
				}
				renderRunDetail(cmd.OutOrStdout(), run, blocks, diags, corrections, blockLimit)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	cmd.Flags().IntVar(&blockLimit, "blocks", 20, "Irrecoverable blocks to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the run and its audit rows from the journal")
	return cmd
}

func renderRunList(w io.Writer, runs []*journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			shortID(run.ID),
			formatTime(run.StartedAt),
			statusLabel(string(run.Status)),
			formatCount(run.Totals.Frames),
			formatCount(run.Totals.Irrecoverable),
			formatDuration(run.Duration()),
			run.OutputPrefix,
		}
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Started", "Status", "Frames", "Irrecoverable", "Elapsed", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
}

func renderRunDetail(w io.Writer, run *journal.Run, blocks []journal.IrrecoverableRecord, diags []faults.Diagnostic, corrections []resync.Correction, blockLimit int) {
	t := run.Totals
	rows := [][]string{
		{"Run", run.ID},
		{"Status", statusLabel(string(run.Status))},
		{"Output", run.OutputPrefix},
		{"Captures", strings.Join(run.Captures, ", ")},
		{"Format", run.Format},
		{"Strategy", run.Strategy},
		{"Started", formatTime(run.StartedAt)},
		{"Elapsed", formatDuration(run.Duration())},
		{"Frames", formatCount(t.Frames)},
		{"Frame range", frameRange(t.FirstFrame, t.LastFrame)},
		{"Missing frames", formatCount(t.MissingFrames)},
		{"Malformed frames", formatCount(t.MalformedFrames)},
		{"Merged blocks", formatCount(t.MergedBlocks)},
		{"Concealed (redundant)", formatCount(t.ConcealedRedundant)},
		{"Concealed (temporal)", formatCount(t.ConcealedTemporal)},
		{"Irrecoverable blocks", formatCount(t.Irrecoverable)},
		{"Audio samples", formatCount(t.AudioSamples)},
		{"Samples dropped", formatCount(t.AudioSurplus)},
		{"Samples inserted", formatCount(t.AudioDeficit)},
		{"Samples concealed", formatCount(t.AudioConcealed)},
		{"Schedule mismatches", formatCount(t.ScheduleMismatches)},
		{"Audio corrections", formatCount(int64(len(corrections)))},
		{"Diagnostics", diagnosticLine(diagnosticCounts(diags))},
	}
	if run.ErrorMessage != "" {
		rows = append(rows, []string{"Error", run.ErrorMessage})
	}
	fmt.Fprintln(w, renderKeyValues(rows))

	if len(blocks) == 0 {
		return
	}
	shown := blocks
	if blockLimit > 0 && len(shown) > blockLimit {
		shown = shown[:blockLimit]
	}
	blockRows := make([][]string, len(shown))
	for i, b := range shown {
		blockRows[i] = []string{
			strconv.FormatInt(b.Frame, 10),
			strconv.Itoa(b.Block),
			b.Kind,
			fmt.Sprintf("%d/%d/%d", b.Channel, b.Sequence, b.Slot),
			fmt.Sprintf("%d+%d", b.Offset, b.Length),
		}
	}
	fmt.Fprintln(w, "Irrecoverable blocks")
	fmt.Fprintln(w, renderTable(
		[]string{"Frame", "Block", "Kind", "Ch/Seq/Slot", "Bytes"},
		blockRows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight},
	))
	if len(shown) < len(blocks) {
		fmt.Fprintf(w, "... %s more (use --blocks 0 to list all)\n", formatCount(int64(len(blocks)-len(shown))))
	}
}
