package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"dvrestore/internal/config"
	"dvrestore/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			} else if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("check config path: %w", err)
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Pin [format] system if your captures start on damaged frames.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func initTarget(flag string) (string, error) {
	if target := strings.TrimSpace(flag); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	target, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return target, nil
}

// newConfigShowCommand prints the effective settings after defaults and
// normalization, either as a table or as TOML that config load accepts.
func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var asTOML bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asTOML {
				data, err := toml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("encode config: %w", err)
				}
				_, err = out.Write(data)
				return err
			}
			fmt.Fprintln(out, renderKeyValues(configRows(cfg)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asTOML, "toml", false, "Print as TOML")
	return cmd
}

func configRows(cfg *config.Config) [][]string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	channels := "detect"
	if cfg.Format.Channels > 0 {
		channels = strconv.Itoa(cfg.Format.Channels)
	}
	return [][]string{
		{"Work dir", cfg.Paths.WorkDir},
		{"Log dir", cfg.Paths.LogDir},
		{"Journal", cfg.Paths.JournalPath},
		{"System", cfg.Format.System},
		{"Channels", channels},
		{"Strategy", cfg.Merge.Strategy},
		{"Align", cfg.Merge.Align},
		{"Workers", strconv.Itoa(cfg.Merge.Workers)},
		{"Batch size", strconv.Itoa(cfg.Merge.BatchSize)},
		{"Redundant audio", onOff(cfg.Repair.RedundantAudio)},
		{"Redundant subcode", onOff(cfg.Repair.RedundantSubcode)},
		{"Temporal", onOff(cfg.Repair.Temporal)},
		{"Max temporal distance", strconv.Itoa(cfg.Repair.MaxTemporalDistance)},
		{"Default sample rate", strconv.Itoa(cfg.Audio.DefaultSampleRate)},
		{"Fill missing frames", onOff(cfg.Audio.FillMissingFrames)},
		{"Stats CSV", onOff(cfg.Audio.StatsCSV)},
		{"Log level", cfg.Logging.Level},
		{"Log retention days", strconv.Itoa(cfg.Logging.RetentionDays)},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			failed := false
			for _, r := range preflight.RunAll(cfg) {
				kind := statusOK
				if !r.Passed {
					kind, failed = statusError, true
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed {
				return fmt.Errorf("configuration checks failed")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
