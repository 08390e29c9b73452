package main

import (
	"strings"

	"github.com/spf13/cobra"

	"dvrestore/internal/journal"
	"dvrestore/internal/logging"
	"dvrestore/internal/restore"
)

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	var flags captureFlags
	var reel string

	cmd := &cobra.Command{
		Use:   "restore <out-prefix> <capture>...",
		Short: "Merge, repair, and resync captures into <out-prefix>.dv and .wav",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, &flags, args[0], args[1:], reel, false)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&reel, "reel", "", "Reel name attached to every log record")
	return cmd
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var flags captureFlags

	cmd := &cobra.Command{
		Use:   "merge <out.dv> <capture>...",
		Short: "Merge and repair captures into one DV stream",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := strings.TrimSuffix(args[0], ".dv")
			return runPipeline(cmd, ctx, &flags, prefix, args[1:], "", true)
		},
	}
	flags.register(cmd)
	return cmd
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, flags *captureFlags, prefix string, paths []string, reel string, videoOnly bool) error {
	base, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	cfg, err := flags.configFor(base)
	if err != nil {
		return err
	}
	captures, err := flags.captures(paths)
	if err != nil {
		return err
	}
	logger, err := ctx.logger()
	if err != nil {
		return err
	}

	runCtx := commandCtx(cmd)
	return ctx.withJournal(runCtx, func(store *journal.Store) error {
		if n, err := store.ResetRunning(runCtx); err != nil {
			return err
		} else if n > 0 {
			logger.Info("marked interrupted runs as failed", logging.Int64("runs", n))
		}

		progress := newFrameProgress(cmd.ErrOrStderr(), "Restoring")
		res, err := restore.Run(runCtx, cfg, restore.Job{
			OutputPrefix: prefix,
			Captures:     captures,
			Reel:         reel,
			VideoOnly:    videoOnly,
			Logger:       logger,
			Journal:      store,
			Progress:     progress.update,
		})
		progress.finish()
		if res == nil {
			return err
		}

		out := cmd.OutOrStdout()
		summary := summarize(res)
		if flags.asJSON {
			if jerr := writeJSON(cmd, summary); jerr != nil {
				return jerr
			}
		} else {
			renderSummary(out, summary, isTerminal(out))
		}
		// a cancelled run still reports its committed prefix
		return err
	})
}
