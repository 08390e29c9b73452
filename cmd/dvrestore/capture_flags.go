package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dvrestore/internal/config"
	"dvrestore/internal/faults"
	"dvrestore/internal/restore"
)

// captureFlags are the merge options shared by merge and restore.
type captureFlags struct {
	errMaps  []string
	strategy string
	align    string
	asJSON   bool
}

func (f *captureFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.errMaps, "errmap", nil, "Error map sidecar for a capture as label=path (repeatable)")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "Block selection strategy: score or vote (default from config)")
	cmd.Flags().StringVar(&f.align, "align", "", "Frame alignment: position or timecode (default from config)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Output the run summary as JSON")
}

// configFor returns a copy of cfg with the flag overrides applied.
func (f *captureFlags) configFor(cfg *config.Config) (*config.Config, error) {
	out := *cfg
	if s := strings.TrimSpace(f.strategy); s != "" {
		out.Merge.Strategy = strings.ToLower(s)
	}
	if a := strings.TrimSpace(f.align); a != "" {
		out.Merge.Align = strings.ToLower(a)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", faults.ErrInvalidInput, err)
	}
	return &out, nil
}

// captures builds the capture list from positional paths and --errmap values.
// A sidecar may name its capture by label or by path.
func (f *captureFlags) captures(paths []string) ([]restore.Capture, error) {
	captures := make([]restore.Capture, len(paths))
	for i, p := range paths {
		path, err := config.ExpandPath(p)
		if err != nil {
			return nil, fmt.Errorf("%w: capture %q: %w", faults.ErrInvalidInput, p, err)
		}
		captures[i] = restore.Capture{
			Label: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Path:  path,
		}
	}
	for _, arg := range f.errMaps {
		label, path, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(label) == "" || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%w: --errmap %q: want label=path", faults.ErrInvalidInput, arg)
		}
		label = strings.TrimSpace(label)
		matched := false
		for i := range captures {
			if captures[i].Label == label || captures[i].Path == label || paths[i] == label {
				expanded, err := config.ExpandPath(strings.TrimSpace(path))
				if err != nil {
					return nil, fmt.Errorf("%w: --errmap %q: %w", faults.ErrInvalidInput, arg, err)
				}
				captures[i].ErrMap = expanded
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: --errmap %q names no capture", faults.ErrInvalidInput, arg)
		}
	}
	return captures, nil
}
