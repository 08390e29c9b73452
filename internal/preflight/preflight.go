package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dvrestore/internal/config"
	"dvrestore/internal/faults"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll checks the configured working locations.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.JournalPath != "" {
		results = append(results, CheckDirectoryAccess("Journal directory", filepath.Dir(cfg.Paths.JournalPath)))
	}
	return results
}

// ForRestore checks that every capture is readable and that the output
// directory can hold a stream as large as the largest capture plus headroom
// for the audio track.
func ForRestore(outputDir string, captures []string) []Result {
	results := make([]Result, 0, len(captures)+2)
	var largest int64
	for _, path := range captures {
		r, size := CheckCapture(path)
		results = append(results, r)
		largest = max(largest, size)
	}
	results = append(results, CheckDirectoryAccess("Output directory", outputDir))
	results = append(results, CheckFreeSpace("Output space", outputDir, largest+largest/10))
	return results
}

// Err folds failed results into one ErrInvalidInput error, or nil.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return faults.Wrap(faults.ErrInvalidInput, "preflight", "", strings.Join(failed, "; "), nil)
}

// CheckCapture verifies path is a readable, non-empty regular file and
// returns its size.
func CheckCapture(path string) (Result, int64) {
	name := "Capture " + filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}, 0
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}, 0
	}
	if !info.Mode().IsRegular() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}, 0
	}
	if info.Size() == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: empty)", path)}, 0
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}, 0
	}
	_ = f.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d bytes)", path, info.Size())}, info.Size()
}
