package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dvrestore/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.JournalPath = filepath.Join(base, "journal.db")
	cfgVal.Merge.Workers = 2
	cfgVal.Merge.BatchSize = 4

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithSystem pins the tape system on the test config.
func WithSystem(system string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Format.System = system
	}
}

// WithMergeStrategy overrides the merge strategy.
func WithMergeStrategy(strategy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Merge.Strategy = strategy
	}
}

// WithAlign overrides capture alignment.
func WithAlign(align string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Merge.Align = align
	}
}

// WithoutTemporal disables temporal concealment.
func WithoutTemporal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Repair.Temporal = false
	}
}

// WithFillMissingFrames enables audio gap fill for missing frames.
func WithFillMissingFrames() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Audio.FillMissingFrames = true
	}
}

// WithStubbedDir replaces the log directory with a regular file so directory
// creation and access checks against it fail.
func WithStubbedDir() ConfigOption {
	return func(b *configBuilder) {
		stub := filepath.Join(b.baseDir, "logs.stub")
		if err := os.WriteFile(stub, []byte("not a directory\n"), 0o644); err != nil {
			b.t.Fatalf("write stub dir: %v", err)
		}
		b.cfg.Paths.LogDir = stub
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
