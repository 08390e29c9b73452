package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"dvrestore/internal/config"
	"dvrestore/internal/dv"
	"dvrestore/internal/fileutil"
	"dvrestore/internal/logging"
	"dvrestore/internal/metadata"
	"dvrestore/internal/restore"
)

func newMetadataCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Review and fix timecodes, arbitrary bits and track IDs",
		Long: "Fixing frame metadata takes three steps: read a stream into a CSV table,\n" +
			"transform the table with a TOML rules file, and write it back into a copy\n" +
			"of the stream. The CSV can also be edited by hand between steps.",
	}
	cmd.AddCommand(
		newMetadataReadCommand(ctx),
		newMetadataTransformCommand(ctx),
		newMetadataWriteCommand(ctx),
	)
	return cmd
}

func newMetadataReadCommand(ctx *commandContext) *cobra.Command {
	var errMap string
	cmd := &cobra.Command{
		Use:   "read <in.dv> <out.csv>",
		Short: "Write the metadata of every frame to a CSV table",
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
			paths, err := expandArgs(args)
			if err != nil {
				return err
			}

			var table metadata.Table
			format, err := restore.Scan(commandCtx(cmd), cfg, paths[0], errMap, func(index int64, f *dv.Frame, derr error) error {
				if derr != nil {
					logMalformedTail(logger, index, derr)
					return nil
				}
				table.Rows = append(table.Rows, metadata.Extract(index, f))
				return nil
			})
			if err != nil {
				return err
			}
			table.System = format.System

			out, err := fileutil.CreateAtomic(paths[1], 0o644)
			if err != nil {
				return err
			}
			defer out.Abort()
			if err := metadata.WriteCSV(out, table); err != nil {
				return fmt.Errorf("write %s: %w", paths[1], err)
			}
			if err := out.Commit(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s frames to %s\n", formatCount(int64(len(table.Rows))), paths[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&errMap, "errmap", "", "Error map sidecar (default <file>.errmap when present)")
	return cmd
}

func newMetadataTransformCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform <in.csv> <rules.toml> <out.csv>",
		Short: "Apply a rules file to a metadata table",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			paths, err := expandArgs(args)
			if err != nil {
				return err
			}

			in, err := os.Open(paths[0])
			if err != nil {
				return err
			}
			table, err := metadata.ReadCSV(in)
			in.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", paths[0], err)
			}
			rules, err := metadata.LoadRules(paths[1])
			if err != nil {
				return err
			}
			reports, err := rules.Apply(&table, logger)
			if err != nil {
				return err
			}

			out, err := fileutil.CreateAtomic(paths[2], 0o644)
			if err != nil {
				return err
			}
			defer out.Abort()
			if err := metadata.WriteCSV(out, table); err != nil {
				return fmt.Errorf("write %s: %w", paths[2], err)
			}
			if err := out.Commit(); err != nil {
				return err
			}

			rows := make([][]string, 0, len(reports))
			for _, r := range reports {
				rows = append(rows, []string{r.Rule, formatCount(int64(r.Frames)), formatCount(int64(r.Changed))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Rule", "Frames", "Changed"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	return cmd
}

func newMetadataWriteCommand(ctx *commandContext) *cobra.Command {
	var errMap string
	cmd := &cobra.Command{
		Use:   "write <in.dv> <in.csv> <out.dv>",
		Short: "Copy a stream, patching frames whose table row changed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			paths, err := expandArgs(args)
			if err != nil {
				return err
			}
			if paths[0] == paths[2] {
				return fmt.Errorf("output %s would overwrite the input stream", paths[2])
			}

			in, err := os.Open(paths[1])
			if err != nil {
				return err
			}
			table, err := metadata.ReadCSV(in)
			in.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", paths[1], err)
			}

			out, err := fileutil.CreateAtomic(paths[2], 0o644)
			if err != nil {
				return err
			}
			defer out.Abort()
			rw := metadata.NewRewriter(out, table, logger)
			_, err = restore.Scan(commandCtx(cmd), cfg, paths[0], errMap, func(index int64, f *dv.Frame, derr error) error {
				if derr != nil {
					logMalformedTail(logger, index, derr)
					return nil
				}
				return rw.Frame(index, f)
			})
			if err != nil {
				return err
			}
			stats := rw.Close()
			if err := out.Commit(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][]string{
				{"Frames", formatCount(stats.Frames)},
				{"Frames patched", formatCount(stats.Patched)},
				{"Rows without frame", formatCount(stats.Unmatched)},
			}))
			return nil
		},
	}
	cmd.Flags().StringVar(&errMap, "errmap", "", "Error map sidecar (default <file>.errmap when present)")
	return cmd
}

func expandArgs(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		p, err := config.ExpandPath(a)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func logMalformedTail(logger *slog.Logger, index int64, err error) {
	logging.WarnWithContext(logger, "stream ends in a partial frame", "metadata_partial_frame",
		logging.FrameIndex(index),
		logging.Error(err),
		logging.String(logging.FieldImpact, "the partial frame is left out"),
	)
}
