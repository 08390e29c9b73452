package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
)

// Align selects how a capture's frames are assigned a FrameIndex.
type Align string

const (
	// AlignPosition indexes frames by their ordinal within the capture.
	AlignPosition Align = "position"
	// AlignTimecode indexes frames by the frame number of their title timecode.
	AlignTimecode Align = "timecode"
)

// ParseAlign maps a config value onto an Align.
func ParseAlign(value string) (Align, error) {
	switch Align(strings.ToLower(strings.TrimSpace(value))) {
	case AlignPosition, "":
		return AlignPosition, nil
	case AlignTimecode:
		return AlignTimecode, nil
	default:
		return "", fmt.Errorf("%w: unknown alignment %q", faults.ErrInvalidInput, value)
	}
}

// Entry is one raw capture frame. Err is set when the frame could not be read
// whole; the engine reports it as malformed and treats the capture as absent
// at Index.
type Entry struct {
	Index  int64
	Raw    []byte
	Errors dv.ErrorMap
	Err    error
}

// Source yields the frames of one capture in increasing FrameIndex order and
// returns io.EOF after the last one.
type Source interface {
	Label() string
	Format() dv.Format
	Next(ctx context.Context) (Entry, error)
}

// maxUnanchored bounds how many frames a timecode-aligned source buffers
// while waiting for its first readable timecode.
const maxUnanchored = 300

// ReaderSource adapts a frame reader and an optional error map sidecar.
type ReaderSource struct {
	label  string
	frames *dv.Reader
	maps   *dv.ErrorMapReader
	align  Align

	position int64
	anchored bool
	last     int64
	pending  []Entry
	ready    []Entry
	done     bool
}

// NewReaderSource builds a source. maps may be nil when the capture has no
// sidecar; a sidecar shorter than the capture leaves the remaining frames
// without device flags.
func NewReaderSource(label string, frames *dv.Reader, maps *dv.ErrorMapReader, align Align) *ReaderSource {
	if align == "" {
		align = AlignPosition
	}
	return &ReaderSource{label: label, frames: frames, maps: maps, align: align}
}

func (s *ReaderSource) Label() string { return s.label }

func (s *ReaderSource) Format() dv.Format { return s.frames.Format() }

func (s *ReaderSource) Next(ctx context.Context) (Entry, error) {
	for len(s.ready) == 0 {
		if s.done {
			if len(s.pending) == 0 {
				return Entry{}, io.EOF
			}
			s.anchor(0)
			continue
		}
		if err := s.pull(ctx); err != nil {
			return Entry{}, err
		}
	}
	e := s.ready[0]
	s.ready = s.ready[1:]
	return e, nil
}

func (s *ReaderSource) pull(ctx context.Context) error {
	raw, err := s.frames.Next(ctx)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.done = true
		return nil
	case errors.Is(err, faults.ErrMalformedFrame):
		s.done = true
		s.place(Entry{Err: err}, dv.Timecode{}, false)
		return nil
	default:
		return fmt.Errorf("read capture %s: %w", s.label, err)
	}

	errs, err := s.nextMap(ctx)
	if err != nil {
		return err
	}
	entry := Entry{Raw: raw, Errors: errs}
	if s.align == AlignPosition {
		entry.Index = s.position
		s.position++
		s.ready = append(s.ready, entry)
		return nil
	}
	usable := func(i int) bool { return !errs.Has(i) }
	tc, ok := dv.TitleTimecode(s.frames.Format(), raw, usable)
	s.place(entry, tc, ok)
	return nil
}

// place assigns a timecode-derived index, buffering frames seen before the
// first readable timecode so they can be numbered backwards from it.
func (s *ReaderSource) place(entry Entry, tc dv.Timecode, ok bool) {
	if s.align == AlignPosition {
		entry.Index = s.position
		s.position++
		s.ready = append(s.ready, entry)
		return
	}
	switch {
	case ok:
		idx := tc.FrameNumber(s.frames.Format().System)
		if !s.anchored {
			s.anchor(idx - int64(len(s.pending)))
		}
		entry.Index = idx
		s.last = idx
		s.ready = append(s.ready, entry)
	case s.anchored:
		s.last++
		entry.Index = s.last
		s.ready = append(s.ready, entry)
	default:
		s.pending = append(s.pending, entry)
		if len(s.pending) > maxUnanchored {
			s.anchor(0)
		}
	}
}

func (s *ReaderSource) anchor(first int64) {
	for k := range s.pending {
		s.pending[k].Index = first + int64(k)
		s.last = s.pending[k].Index
	}
	s.ready = append(s.ready, s.pending...)
	s.pending = nil
	s.anchored = true
	if len(s.ready) == 0 {
		s.last = first - 1
	}
}

func (s *ReaderSource) nextMap(ctx context.Context) (dv.ErrorMap, error) {
	if s.maps == nil {
		return dv.ErrorMap{}, nil
	}
	m, err := s.maps.Next(ctx)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		s.maps = nil
		return dv.ErrorMap{}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dv.ErrorMap{}, ctxErr
	}
	return dv.ErrorMap{}, fmt.Errorf("read error map for %s: %w", s.label, err)
}

// Capture is a materialized capture pass: an arena of raw frames keyed by
// FrameIndex. It is also a Source iterating the arena in index order.
type Capture struct {
	label  string
	format dv.Format
	frames map[int64]Entry
	order  []int64
	sorted bool
	cursor int
}

// NewCapture returns an empty arena.
func NewCapture(label string, format dv.Format) *Capture {
	return &Capture{label: label, format: format, frames: make(map[int64]Entry), sorted: true}
}

// CaptureOf builds an arena indexing frames by position.
func CaptureOf(label string, format dv.Format, frames ...[]byte) *Capture {
	c := NewCapture(label, format)
	for i, raw := range frames {
		c.Add(int64(i), raw, dv.ErrorMap{})
	}
	return c
}

// LoadCapture drains a source into an arena.
func LoadCapture(ctx context.Context, src Source) (*Capture, error) {
	c := NewCapture(src.Label(), src.Format())
	for {
		e, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return c, nil
		}
		if err != nil {
			return nil, err
		}
		c.put(e)
	}
}

func (c *Capture) Label() string { return c.label }

func (c *Capture) Format() dv.Format { return c.format }

// Add stores a frame at index, replacing any frame already there.
func (c *Capture) Add(index int64, raw []byte, errs dv.ErrorMap) {
	c.put(Entry{Index: index, Raw: raw, Errors: errs})
}

func (c *Capture) put(e Entry) {
	if _, ok := c.frames[e.Index]; !ok {
		if n := len(c.order); n > 0 && c.order[n-1] > e.Index {
			c.sorted = false
		}
		c.order = append(c.order, e.Index)
	}
	c.frames[e.Index] = e
}

// Len returns the number of frames held.
func (c *Capture) Len() int { return len(c.order) }

// Indexes returns the held FrameIndex values in increasing order.
func (c *Capture) Indexes() []int64 {
	c.sort()
	return slices.Clone(c.order)
}

// Frame returns the raw frame at index.
func (c *Capture) Frame(index int64) ([]byte, dv.ErrorMap, bool) {
	e, ok := c.frames[index]
	return e.Raw, e.Errors, ok
}

// Next iterates the arena in index order.
func (c *Capture) Next(ctx context.Context) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	c.sort()
	if c.cursor >= len(c.order) {
		return Entry{}, io.EOF
	}
	e := c.frames[c.order[c.cursor]]
	c.cursor++
	return e, nil
}

// Rewind restarts iteration.
func (c *Capture) Rewind() { c.cursor = 0 }

func (c *Capture) sort() {
	if !c.sorted {
		slices.Sort(c.order)
		c.sorted = true
	}
}
