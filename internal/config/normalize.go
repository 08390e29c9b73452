package config

import (
	"fmt"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFormat()
	c.normalizeMerge()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.JournalPath, err = expandPath(c.Paths.JournalPath); err != nil {
		return fmt.Errorf("paths.journal_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeFormat() {
	c.Format.System = strings.ToLower(strings.TrimSpace(c.Format.System))
	switch c.Format.System {
	case "":
		c.Format.System = defaultFormatSystem
	case "525-60", "525_60":
		c.Format.System = "ntsc"
	case "625-50", "625_50", "secam":
		c.Format.System = "pal"
	}
}

func (c *Config) normalizeMerge() {
	c.Merge.Strategy = strings.ToLower(strings.TrimSpace(c.Merge.Strategy))
	if c.Merge.Strategy == "" {
		c.Merge.Strategy = defaultMergeStrategy
	}
	c.Merge.Align = strings.ToLower(strings.TrimSpace(c.Merge.Align))
	if c.Merge.Align == "" {
		c.Merge.Align = defaultMergeAlign
	}
	if c.Merge.Workers <= 0 {
		c.Merge.Workers = runtime.NumCPU()
	}
	if c.Merge.BatchSize <= 0 {
		c.Merge.BatchSize = defaultMergeBatchSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
