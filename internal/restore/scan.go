package restore

import (
	"context"
	"errors"
	"io"

	"dvrestore/internal/config"
	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
	"dvrestore/internal/logging"
)

// ScanFunc receives each frame of a scanned stream. A frame that failed to
// decode arrives with a nil Frame and the decode error.
type ScanFunc func(index int64, f *dv.Frame, err error) error

// Scan decodes every frame of one capture in order. errMap follows the same
// sidecar rules as Capture.ErrMap.
func Scan(ctx context.Context, cfg *config.Config, path, errMap string, fn ScanFunc) (dv.Format, error) {
	if cfg == nil {
		cfg = &config.Config{Format: config.Format{System: "auto"}}
	}
	opened, err := openCaptures(labelCaptures([]Capture{{Path: path, ErrMap: errMap}}))
	if err != nil {
		return dv.Format{}, err
	}
	defer closeCaptures(opened)
	format, err := resolveFormat(cfg, opened, logging.NewNop())
	if err != nil {
		return dv.Format{}, err
	}

	c := opened[0]
	frames := dv.NewReader(c.reader, format)
	var maps *dv.ErrorMapReader
	if c.sidecar != nil {
		maps = dv.NewErrorMapReader(c.sidecar, format)
	}
	for index := int64(0); ; index++ {
		raw, err := frames.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return format, nil
		case errors.Is(err, faults.ErrMalformedFrame):
			if err := fn(index, nil, err); err != nil {
				return format, err
			}
			return format, nil
		case err != nil:
			return format, faults.Cancelled("scan", err)
		}
		var errs dv.ErrorMap
		if maps != nil {
			m, err := maps.Next(ctx)
			switch {
			case err == nil:
				errs = m
			case errors.Is(err, io.EOF):
				maps = nil
			default:
				return format, faults.Wrap(faults.ErrIO, "scan", "read error map", c.ErrMap, err)
			}
		}
		f, derr := dv.Decode(format, raw, errs)
		if err := fn(index, f, derr); err != nil {
			return format, err
		}
	}
}
