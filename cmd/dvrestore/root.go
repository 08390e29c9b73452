package main

import (
	"github.com/spf13/cobra"
)

const (
	groupPipeline = "pipeline"
	groupTools    = "tools"
)

func newRootCommand() *cobra.Command {
	var flags globalFlags
	ctx := newCommandContext(&flags)

	rootCmd := &cobra.Command{
		Use:   "dvrestore",
		Short: "Merge, repair, and resynchronize DV tape captures",
		Long: "dvrestore combines several captures of the same DV tape into one stream,\n" +
			"conceals the damage no capture got right, and rebuilds a continuous audio track.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override [logging] level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Override [logging] format (console, json)")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupPipeline, Title: "Restore commands:"},
		&cobra.Group{ID: groupTools, Title: "Inspection and metadata commands:"},
	)
	for _, c := range []*cobra.Command{
		newRestoreCommand(ctx),
		newMergeCommand(ctx),
		newResyncCommand(ctx),
	} {
		c.GroupID = groupPipeline
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		newInspectCommand(ctx),
		newDumpCommand(ctx),
		newReportCommand(ctx),
		newMetadataCommand(ctx),
	} {
		c.GroupID = groupTools
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
