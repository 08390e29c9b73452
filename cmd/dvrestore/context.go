package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"dvrestore/internal/config"
	"dvrestore/internal/journal"
	"dvrestore/internal/logging"
)

// globalFlags holds the persistent root flags.
type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := c.applyLogFlags(cfg); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.flags == nil {
		return ""
	}
	return strings.TrimSpace(c.flags.config)
}

// applyLogFlags lets --log-level and --log-format win over the file and
// revalidates the result.
func (c *commandContext) applyLogFlags(cfg *config.Config) error {
	if c.flags == nil {
		return nil
	}
	changed := false
	if v := strings.ToLower(strings.TrimSpace(c.flags.logLevel)); v != "" {
		cfg.Logging.Level, changed = v, true
	}
	if v := strings.ToLower(strings.TrimSpace(c.flags.logFormat)); v != "" {
		cfg.Logging.Format, changed = v, true
	}
	if !changed {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("log flags: %w", err)
	}
	return nil
}

// logger builds the console logger; records go to stderr so stdout stays
// clean for listings and JSON.
func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// withJournal opens the run journal for the duration of fn.
func (c *commandContext) withJournal(ctx context.Context, fn func(*journal.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := journal.Open(cfg.Paths.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
