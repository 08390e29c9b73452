package merge

import (
	"fmt"

	"dvrestore/internal/dv"
	"dvrestore/internal/quality"
)

// Origin records where the bytes of an output block came from.
type Origin uint8

const (
	// OriginCapture means a capture held the block valid.
	OriginCapture Origin = iota
	// OriginUnresolved means no capture held the block valid; its bytes are zero.
	OriginUnresolved
	// OriginRedundant means the block was copied from its in-frame partner.
	OriginRedundant
	// OriginTemporal means the block was copied from a neighboring frame.
	OriginTemporal
	// OriginIrrecoverable means concealment failed and the block was zero-filled.
	OriginIrrecoverable
)

var originNames = [...]string{"capture", "unresolved", "redundant", "temporal", "irrecoverable"}

func (o Origin) String() string {
	if int(o) < len(originNames) {
		return originNames[o]
	}
	return fmt.Sprintf("origin(%d)", uint8(o))
}

// Resolved reports whether the block carries real tape content.
func (o Origin) Resolved() bool {
	return o == OriginCapture || o == OriginRedundant || o == OriginTemporal
}

// NoCapture marks provenance that did not come from a capture.
const NoCapture = -1

// Provenance attributes one output block.
type Provenance struct {
	Origin  Origin
	Capture int   // ordinal of the capture that supplied the bytes
	Frame   int64 // FrameIndex the bytes were read from
	Block   int   // block index the bytes were read from
}

// MergedFrame is the per-index merge output. Data always has the full frame
// size; unresolved blocks are zero-filled until repair rewrites them.
type MergedFrame struct {
	Index      int64
	Format     dv.Format
	Data       []byte
	Provenance []Provenance
	// Captures lists the ordinals that decoded a frame at this index.
	Captures []int
	// Best is the score of the cleanest candidate.
	Best quality.Score
}

func newMergedFrame(index int64, format dv.Format) *MergedFrame {
	return &MergedFrame{
		Index:      index,
		Format:     format,
		Data:       make([]byte, format.FrameSize()),
		Provenance: make([]Provenance, format.BlockCount()),
	}
}

// Block returns block i of the output frame.
func (m *MergedFrame) Block(i int) []byte {
	return m.Data[i*dv.BlockSize : (i+1)*dv.BlockSize]
}

// Resolved reports whether block i holds real tape content.
func (m *MergedFrame) Resolved(i int) bool {
	return m.Provenance[i].Origin.Resolved()
}

// Count returns the number of blocks with the given origin.
func (m *MergedFrame) Count(o Origin) int {
	n := 0
	for _, p := range m.Provenance {
		if p.Origin == o {
			n++
		}
	}
	return n
}

// Unresolved returns the indexes of blocks still waiting for concealment.
func (m *MergedFrame) Unresolved() []int {
	var out []int
	for i, p := range m.Provenance {
		if p.Origin == OriginUnresolved {
			out = append(out, i)
		}
	}
	return out
}

// SetBlock overwrites block i with src and records its provenance.
func (m *MergedFrame) SetBlock(i int, src []byte, p Provenance) {
	copy(m.Block(i), src)
	m.Provenance[i] = p
}
