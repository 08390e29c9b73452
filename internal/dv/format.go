package dv

import (
	"fmt"
	"math/big"
)

const (
	// BlockSize is the size of one DIF block in bytes.
	BlockSize = 80
	// BlocksPerSequence is the number of DIF blocks in one DIF sequence.
	BlocksPerSequence = 150
	// SequenceSize is the size of one DIF sequence in bytes.
	SequenceSize = BlockSize * BlocksPerSequence
)

// System identifies the broadcast timing system a frame was recorded under.
type System uint8

const (
	// System525_60 is 525 lines at 29.97 frames per second (NTSC).
	System525_60 System = iota
	// System625_50 is 625 lines at 25 frames per second (PAL/SECAM).
	System625_50
)

func (s System) String() string {
	switch s {
	case System525_60:
		return "525-60"
	case System625_50:
		return "625-50"
	default:
		return fmt.Sprintf("system(%d)", uint8(s))
	}
}

// Sequences returns the number of DIF sequences per channel.
func (s System) Sequences() int {
	if s == System625_50 {
		return 12
	}
	return 10
}

// FrameRate returns the nominal video frame rate.
func (s System) FrameRate() *big.Rat {
	if s == System625_50 {
		return big.NewRat(25, 1)
	}
	return big.NewRat(30000, 1001)
}

// ParseSystem maps user-facing names to a System.
func ParseSystem(name string) (System, error) {
	switch name {
	case "ntsc", "525-60":
		return System525_60, nil
	case "pal", "625-50":
		return System625_50, nil
	default:
		return 0, fmt.Errorf("unknown system %q", name)
	}
}

// Format is a tape format variant: timing system and DIF channel count.
type Format struct {
	System   System
	Channels int // 1 for 25 Mbps, 2 for 50 Mbps
}

var (
	FormatNTSC      = Format{System: System525_60, Channels: 1}
	FormatPAL       = Format{System: System625_50, Channels: 1}
	FormatNTSC50    = Format{System: System525_60, Channels: 2}
	FormatPAL50     = Format{System: System625_50, Channels: 2}
	SupportedFormat = []Format{FormatNTSC, FormatPAL, FormatNTSC50, FormatPAL50}
)

func (f Format) String() string {
	return fmt.Sprintf("%s/%dch", f.System, f.Channels)
}

// Validate reports whether the variant is one the codec supports.
func (f Format) Validate() error {
	if f.System != System525_60 && f.System != System625_50 {
		return fmt.Errorf("unsupported system %v", f.System)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	return nil
}

// Sequences returns the DIF sequence count per channel.
func (f Format) Sequences() int { return f.System.Sequences() }

// BlockCount returns the total number of DIF blocks in one frame.
func (f Format) BlockCount() int {
	return f.Channels * f.Sequences() * BlocksPerSequence
}

// FrameSize returns the size of one frame in bytes.
func (f Format) FrameSize() int {
	return f.BlockCount() * BlockSize
}

// AudioGroups returns the number of audio block groups per frame. Each DIF
// channel carries two groups, the first and second halves of its sequences.
func (f Format) AudioGroups() int {
	return 2 * f.Channels
}

// DetectFormat inspects the beginning of a stream and derives the variant from
// the first header block's DSF bit and the channel bit of the block that would
// start a second DIF channel.
func DetectFormat(head []byte) (Format, error) {
	if len(head) < BlockSize {
		return Format{}, fmt.Errorf("detect format: need at least %d bytes, have %d", BlockSize, len(head))
	}
	id := ParseBlockID(head[:3])
	// the DSF bit is not part of the ID, so either system's first header matches
	if !id.matches(FormatNTSC.ExpectedID(0)) {
		return Format{}, fmt.Errorf("detect format: stream does not start with a header block (section type %d, sequence %d, channel %d, number %d)",
			id.Type, id.DIFSequence, id.Channel, id.Number)
	}
	format := Format{System: System525_60, Channels: 1}
	if head[3]&0x80 != 0 {
		format.System = System625_50
	}
	second := format.Sequences() * SequenceSize
	if len(head) >= second+BlockSize {
		next := ParseBlockID(head[second : second+3])
		if next.Reserved && next.Type == KindHeader && next.Channel == 1 && next.DIFSequence == 0 {
			format.Channels = 2
		}
	}
	return format, nil
}
