package dv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"dvrestore/internal/faults"
)

// Reader pulls whole frames from a raw DV stream.
type Reader struct {
	r      io.Reader
	format Format
	read   int64
}

// NewReader returns a reader for a stream of the given format.
func NewReader(r io.Reader, format Format) *Reader {
	return &Reader{r: r, format: format}
}

// Format returns the format the reader slices frames by.
func (r *Reader) Format() Format { return r.format }

// Frames returns the number of complete frames read so far.
func (r *Reader) Frames() int64 { return r.read }

// Next returns the bytes of the next frame in a fresh slice. It returns io.EOF
// after the last complete frame and ErrMalformedFrame for a truncated tail.
func (r *Reader) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, r.format.FrameSize())
	n, err := io.ReadFull(r.r, buf)
	switch {
	case err == nil:
		r.read++
		return buf, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: trailing %d bytes after frame %d", faults.ErrMalformedFrame, n, r.read)
	default:
		return nil, err
	}
}

// Sniff detects the stream format without consuming input. The returned
// reader must be used for all further reads.
func Sniff(r io.Reader) (Format, *bufio.Reader, error) {
	br := bufio.NewReaderSize(r, FormatPAL50.FrameSize())
	head, err := br.Peek(FormatPAL50.FrameSize())
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Format{}, br, fmt.Errorf("sniff format: %w", err)
	}
	format, derr := DetectFormat(head)
	if derr != nil {
		return Format{}, br, derr
	}
	return format, br, nil
}
