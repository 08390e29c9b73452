package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFormat(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateRepair(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateFormat() error {
	switch c.Format.System {
	case "auto", "ntsc", "pal":
	default:
		return fmt.Errorf("format.system: unsupported value %q (want auto, ntsc, or pal)", c.Format.System)
	}
	switch c.Format.Channels {
	case 0, 1, 2:
	default:
		return fmt.Errorf("format.channels: unsupported value %d (want 0, 1, or 2)", c.Format.Channels)
	}
	return nil
}

func (c *Config) validateMerge() error {
	switch c.Merge.Strategy {
	case "score", "vote":
	default:
		return fmt.Errorf("merge.strategy: unsupported value %q (want score or vote)", c.Merge.Strategy)
	}
	switch c.Merge.Align {
	case "position", "timecode":
	default:
		return fmt.Errorf("merge.align: unsupported value %q (want position or timecode)", c.Merge.Align)
	}
	if c.Merge.Workers > maxMergeWorkers {
		return fmt.Errorf("merge.workers must be at most %d", maxMergeWorkers)
	}
	if c.Merge.BatchSize > maxMergeBatchSize {
		return fmt.Errorf("merge.batch_size must be at most %d", maxMergeBatchSize)
	}
	return nil
}

func (c *Config) validateRepair() error {
	if c.Repair.MaxTemporalDistance < 0 {
		return errors.New("repair.max_temporal_distance must be zero or positive")
	}
	return nil
}

func (c *Config) validateAudio() error {
	switch c.Audio.DefaultSampleRate {
	case 32000, 44100, 48000:
	default:
		return fmt.Errorf("audio.default_sample_rate must be %s", supportedSampleRateSummary)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	for stage, level := range c.Logging.StageOverrides {
		switch strings.ToLower(strings.TrimSpace(level)) {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unsupported value %q", stage, level)
		}
	}
	return nil
}
