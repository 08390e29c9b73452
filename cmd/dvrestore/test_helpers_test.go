package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dvrestore/internal/config"
	"dvrestore/internal/dv"
	"dvrestore/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	dir        string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv(config.EnvConfigPath, "")

	configPath := filepath.Join(homeDir, ".config", "dvrestore", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	dir := filepath.Join(base, "tapes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir tapes: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, dir: dir}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nwork_dir = %q\nlog_dir = %q\njournal_path = %q\n\n[merge]\nworkers = 2\nbatch_size = 4\n\n[logging]\nlevel = \"error\"\n",
		cfg.Paths.WorkDir,
		cfg.Paths.LogDir,
		cfg.Paths.JournalPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// writeTape writes n clean NTSC frames and returns the capture path.
func writeTape(t *testing.T, dir, name string, n int) string {
	t.Helper()
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = testsupport.BuildFrame(dv.FormatNTSC, testsupport.WithVideoSeed(byte(i)))
	}
	return testsupport.WriteCapture(t, filepath.Join(dir, name), frames...)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
