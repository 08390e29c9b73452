package dv

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrorMap is a per-frame bitset of blocks the capture device reported as
// failing error correction. Bit i is set when block i is bad. The sidecar
// encoding stores bits LSB-first, one frame after another.
type ErrorMap struct {
	bits []byte
	n    int
}

// NewErrorMap returns a clean map covering n blocks.
func NewErrorMap(n int) ErrorMap {
	return ErrorMap{bits: make([]byte, (n+7)/8), n: n}
}

// ErrorMapFromBytes wraps an encoded bitset covering n blocks.
func ErrorMapFromBytes(b []byte, n int) (ErrorMap, error) {
	if len(b) != (n+7)/8 {
		return ErrorMap{}, fmt.Errorf("error map: have %d bytes, want %d for %d blocks", len(b), (n+7)/8, n)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return ErrorMap{bits: cp, n: n}, nil
}

// Len returns the number of blocks covered; zero for an empty map.
func (m ErrorMap) Len() int { return m.n }

// Set marks block i as reported bad.
func (m ErrorMap) Set(i int) { m.bits[i/8] |= 1 << (uint(i) % 8) }

// Has reports whether block i was reported bad. An empty map reports nothing.
func (m ErrorMap) Has(i int) bool {
	if i >= m.n {
		return false
	}
	return m.bits[i/8]&(1<<(uint(i)%8)) != 0
}

// Bytes returns the encoded bitset.
func (m ErrorMap) Bytes() []byte {
	cp := make([]byte, len(m.bits))
	copy(cp, m.bits)
	return cp
}

// Count returns the number of blocks reported bad.
func (m ErrorMap) Count() int {
	total := 0
	for i := 0; i < m.n; i++ {
		if m.Has(i) {
			total++
		}
	}
	return total
}

// ErrorMapReader pulls consecutive per-frame maps from a sidecar stream.
type ErrorMapReader struct {
	r      io.Reader
	blocks int
	buf    []byte
}

// NewErrorMapReader reads maps sized for the given format.
func NewErrorMapReader(r io.Reader, format Format) *ErrorMapReader {
	n := format.BlockCount()
	return &ErrorMapReader{r: r, blocks: n, buf: make([]byte, (n+7)/8)}
}

// Next returns the next frame's map, or io.EOF after the last one.
func (r *ErrorMapReader) Next(ctx context.Context) (ErrorMap, error) {
	if err := ctx.Err(); err != nil {
		return ErrorMap{}, err
	}
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrorMap{}, fmt.Errorf("error map: truncated record: %w", err)
		}
		return ErrorMap{}, err
	}
	return ErrorMapFromBytes(r.buf, r.blocks)
}

// WriteErrorMap appends one frame's map to a sidecar stream.
func WriteErrorMap(w io.Writer, m ErrorMap) error {
	_, err := w.Write(m.bits)
	return err
}
