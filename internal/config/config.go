package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and journal locations.
type Paths struct {
	WorkDir     string `toml:"work_dir"`
	LogDir      string `toml:"log_dir"`
	JournalPath string `toml:"journal_path"`
}

// Format pins the tape format variant instead of detecting it from the first frame.
type Format struct {
	System   string `toml:"system"`   // auto, ntsc, pal
	Channels int    `toml:"channels"` // 0 detects; 1 = 25 Mbps; 2 = 50 Mbps
}

// Merge contains configuration for combining capture passes.
type Merge struct {
	Strategy  string `toml:"strategy"` // score or vote
	Align     string `toml:"align"`    // position or timecode
	Workers   int    `toml:"workers"`
	BatchSize int    `toml:"batch_size"`
}

// Repair contains the concealment policy switches.
type Repair struct {
	RedundantAudio   bool `toml:"redundant_audio"`
	RedundantSubcode bool `toml:"redundant_subcode"`
	Temporal         bool `toml:"temporal"`
	// MaxTemporalDistance bounds the neighbor search in frames. Zero searches the whole sequence.
	MaxTemporalDistance int `toml:"max_temporal_distance"`
}

// Audio contains configuration for the audio resynchronizer.
type Audio struct {
	DefaultSampleRate int  `toml:"default_sample_rate"`
	FillMissingFrames bool `toml:"fill_missing_frames"`
	StatsCSV          bool `toml:"stats_csv"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	StageOverrides map[string]string `toml:"stage_overrides"`
	// RetentionDays prunes per-run log files older than this; zero keeps them all.
	RetentionDays int `toml:"retention_days"`
}

// Config encapsulates all configuration values for dvrestore.
//
// Configuration sections by subsystem:
//   - Paths: work, log, and journal locations
//   - Format: tape format override
//   - Merge: capture alignment and block selection
//   - Repair: concealment policy
//   - Audio: resynchronization and drift statistics
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Format  Format  `toml:"format"`
	Merge   Merge   `toml:"merge"`
	Repair  Repair  `toml:"repair"`
	Audio   Audio   `toml:"audio"`
	Logging Logging `toml:"logging"`
}

// EnvConfigPath names the environment variable consulted when no explicit
// config path is given.
const EnvConfigPath = "DVRESTORE_CONFIG"

// DefaultConfigPath is $XDG_CONFIG_HOME/dvrestore/config.toml, falling back
// to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultConfigPath() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); base != "" {
		return expandPath(filepath.Join(base, "dvrestore", "config.toml"))
	}
	return expandPath("~/.config/dvrestore/config.toml")
}

// Load reads the config at path over Default, then normalizes and validates
// it. It returns the resolved path and whether a file was found there; a
// missing file is not an error.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// resolveConfigPath picks the first of: the explicit path, $DVRESTORE_CONFIG,
// the default path, ./dvrestore.toml. Explicit and environment paths are
// returned even when missing so callers can report where they looked.
func resolveConfigPath(path string) (string, bool, error) {
	for _, explicit := range []string{path, os.Getenv(EnvConfigPath)} {
		if explicit = strings.TrimSpace(explicit); explicit == "" {
			continue
		}
		expanded, err := expandPath(explicit)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		return expanded, exists, err
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	local, err := filepath.Abs("dvrestore.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, local} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates the work and log directories and the journal's parent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir}
	if c.Paths.JournalPath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.JournalPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// expandPath resolves a leading ~ and makes the result absolute.
func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", p, err)
	}
	return abs, nil
}

// ExpandPath applies the config path rules to a user-supplied path.
func ExpandPath(p string) (string, error) {
	return expandPath(p)
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
