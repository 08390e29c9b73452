package restore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dvrestore/internal/config"
	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/logging"
	"dvrestore/internal/merge"
)

// ErrMapSuffix is appended to a capture path to find its default sidecar.
const ErrMapSuffix = ".errmap"

// Capture is one pass over the tape.
type Capture struct {
	Label string
	Path  string
	// ErrMap names the device error sidecar. When empty, Path+ErrMapSuffix is
	// used if it exists.
	ErrMap string
}

type openCapture struct {
	Capture
	file     *os.File
	sidecar  *os.File
	reader   *bufio.Reader
	format   dv.Format
	sniffErr error
}

func (c *openCapture) close() {
	if c.file != nil {
		_ = c.file.Close()
	}
	if c.sidecar != nil {
		_ = c.sidecar.Close()
	}
}

func closeCaptures(captures []*openCapture) {
	for _, c := range captures {
		c.close()
	}
}

// labelCaptures fills empty labels from file names and makes every label unique.
func labelCaptures(captures []Capture) []Capture {
	out := make([]Capture, len(captures))
	seen := make(map[string]int, len(captures))
	for i, c := range captures {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			label = strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
		}
		seen[label]++
		if n := seen[label]; n > 1 {
			label = fmt.Sprintf("%s#%d", label, n)
		}
		c.Label = label
		out[i] = c
	}
	return out
}

func openCaptures(captures []Capture) ([]*openCapture, error) {
	opened := make([]*openCapture, 0, len(captures))
	for _, c := range captures {
		oc, err := openOne(c)
		if err != nil {
			closeCaptures(opened)
			return nil, err
		}
		opened = append(opened, oc)
	}
	return opened, nil
}

func openOne(c Capture) (*openCapture, error) {
	file, err := os.Open(c.Path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrInvalidInput, stageOpen, "open capture", c.Label, err)
	}
	oc := &openCapture{Capture: c, file: file}
	oc.format, oc.reader, oc.sniffErr = dv.Sniff(file)

	sidecar := c.ErrMap
	explicit := sidecar != ""
	if !explicit {
		sidecar = c.Path + ErrMapSuffix
	}
	maps, err := os.Open(sidecar)
	switch {
	case err == nil:
		oc.sidecar = maps
		oc.ErrMap = sidecar
	case !explicit && errors.Is(err, fs.ErrNotExist):
		oc.ErrMap = ""
	default:
		oc.close()
		return nil, faults.Wrap(faults.ErrInvalidInput, stageOpen, "open error map", c.Label, err)
	}
	return oc, nil
}

// resolveFormat picks the stream format from the config override and the
// sniffed headers. Captures whose first frame could not be identified follow
// the others.
func resolveFormat(cfg *config.Config, captures []*openCapture, logger *slog.Logger) (dv.Format, error) {
	var detected *dv.Format
	for _, c := range captures {
		if c.sniffErr != nil {
			continue
		}
		if detected == nil {
			f := c.format
			detected = &f
			continue
		}
		if c.format != *detected && cfg.Format.System == "auto" {
			return dv.Format{}, faults.Wrap(faults.ErrInvalidInput, stageOpen, "detect format",
				fmt.Sprintf("capture %s is %s, capture %s is %s", captures[0].Label, *detected, c.Label, c.format), nil)
		}
	}

	var format dv.Format
	switch {
	case cfg.Format.System != "" && cfg.Format.System != "auto":
		sys, err := dv.ParseSystem(cfg.Format.System)
		if err != nil {
			return dv.Format{}, faults.Wrap(faults.ErrInvalidInput, stageOpen, "detect format", "", err)
		}
		format = dv.Format{System: sys, Channels: 1}
		if detected != nil {
			format.Channels = detected.Channels
		}
	case detected != nil:
		format = *detected
	default:
		return dv.Format{}, faults.Wrap(faults.ErrInvalidInput, stageOpen, "detect format",
			"no capture starts with a recognizable DIF header; set [format] system", captures[0].sniffErr)
	}
	if cfg.Format.Channels > 0 {
		format.Channels = cfg.Format.Channels
	}
	if err := format.Validate(); err != nil {
		return dv.Format{}, faults.Wrap(faults.ErrInvalidInput, stageOpen, "detect format", "", err)
	}

	for _, c := range captures {
		if c.sniffErr != nil {
			logging.WarnWithContext(logger, "capture header unreadable; assuming stream format", "restore_sniff_failed",
				logging.String(logging.FieldCapture, c.Label),
				logging.String("format", format.String()),
				logging.Error(c.sniffErr),
				logging.String(logging.FieldErrorHint, "pin [format] system if the captures disagree"),
				logging.String(logging.FieldImpact, "capture is read with the detected format"),
			)
		}
	}
	return format, nil
}

func buildSources(captures []*openCapture, format dv.Format, align merge.Align) []merge.Source {
	sources := make([]merge.Source, len(captures))
	for i, c := range captures {
		var maps *dv.ErrorMapReader
		if c.sidecar != nil {
			maps = dv.NewErrorMapReader(bufio.NewReader(c.sidecar), format)
		}
		sources[i] = merge.NewReaderSource(c.Label, dv.NewReader(c.reader, format), maps, align)
	}
	return sources
}
