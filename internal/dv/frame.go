package dv

import (
	"bytes"
	"fmt"

	"dvrestore/internal/faults"
)

// Status flags a block as bad. The zero value is a valid block.
type Status uint8

const (
	// StatusDeviceError is set when the capture device reported the block bad.
	StatusDeviceError Status = 1 << iota
	// StatusIntegrityError is set when the block fails the format's own checks.
	StatusIntegrityError
)

// Valid reports whether no flag is set.
func (s Status) Valid() bool { return s == 0 }

func (s Status) String() string {
	switch s {
	case 0:
		return "ok"
	case StatusDeviceError:
		return "device"
	case StatusIntegrityError:
		return "integrity"
	default:
		return "device+integrity"
	}
}

// Frame is one decoded tape frame. It owns a copy of the frame bytes.
type Frame struct {
	format Format
	data   []byte
	status []Status
	device ErrorMap
}

// Decode validates the frame layout and derives per-block status from the
// device error map and the embedded integrity fields. deviceErrors may be an
// empty map when the capture has no side channel.
func Decode(format Format, b []byte, deviceErrors ErrorMap) (*Frame, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrMalformedFrame, err)
	}
	if len(b) != format.FrameSize() {
		return nil, fmt.Errorf("%w: have %d bytes, want %d for %s", faults.ErrMalformedFrame, len(b), format.FrameSize(), format)
	}
	blocks := format.BlockCount()
	if deviceErrors.Len() != 0 && deviceErrors.Len() != blocks {
		return nil, fmt.Errorf("error map covers %d blocks, frame has %d", deviceErrors.Len(), blocks)
	}

	data := make([]byte, len(b))
	copy(data, b)
	f := &Frame{format: format, data: data, status: make([]Status, blocks), device: deviceErrors}
	if f.device.Len() == 0 {
		f.device = NewErrorMap(blocks)
	}

	for i := 0; i < blocks; i++ {
		if f.device.Has(i) {
			f.status[i] |= StatusDeviceError
		}
		if !f.checkStructure(i) {
			f.status[i] |= StatusIntegrityError
		}
	}
	for g := 0; g < format.AudioGroups(); g++ {
		f.checkAudioGroup(g)
	}
	return f, nil
}

func (f *Frame) checkStructure(i int) bool {
	block := f.Block(i)
	id := ParseBlockID(block)
	if !id.matches(f.format.ExpectedID(i)) {
		return false
	}
	switch f.format.KindAt(i) {
	case KindHeader:
		return id.Arbitrary == 0xF && checkHeader(f.format.System, block)
	case KindSubcode:
		return id.Arbitrary == 0xF && checkSubcode(block)
	case KindVAUX:
		return checkVAUX(block)
	case KindVideo:
		return checkVideo(block)
	}
	return true
}

func (f *Frame) checkAudioGroup(group int) {
	layout := audioLayout{quant: Linear16, samples: MaxSamples(f.format.System, Linear16)}
	if src, ok := AudioSource(f.format, f.data, group, f.Valid); ok {
		layout = audioLayout{quant: src.Quantization, samples: src.SamplesPerFrame}
	}
	half := f.format.Sequences() / 2
	channel := group / 2
	first := (group % 2) * half
	for seq := first; seq < first+half; seq++ {
		for dbn := 0; dbn < 9; dbn++ {
			i := f.format.AudioBlockIndex(channel, seq, dbn)
			if !checkAudio(f.format, f.format.Position(i), f.Block(i), layout) {
				f.status[i] |= StatusIntegrityError
			}
		}
	}
}

// Encode returns the frame bytes. Decode(f.Format(), Encode(f), f.DeviceErrors())
// reproduces f exactly.
func Encode(f *Frame) []byte {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

// Format returns the frame's format variant.
func (f *Frame) Format() Format { return f.format }

// Data returns the frame bytes. Callers must not modify the slice.
func (f *Frame) Data() []byte { return f.data }

// BlockCount returns the number of blocks in the frame.
func (f *Frame) BlockCount() int { return len(f.status) }

// Block returns block i. Callers must not modify the slice.
func (f *Frame) Block(i int) []byte {
	return f.data[i*BlockSize : (i+1)*BlockSize]
}

// Kind returns the static kind of block i.
func (f *Frame) Kind(i int) Kind { return f.format.KindAt(i) }

// Status returns the status flags of block i.
func (f *Frame) Status(i int) Status { return f.status[i] }

// Valid reports whether block i carries no error flag.
func (f *Frame) Valid(i int) bool { return f.status[i] == 0 }

// DeviceErrors returns the side-channel map the frame was decoded with.
func (f *Frame) DeviceErrors() ErrorMap { return f.device }

// AudioSource returns the frame's AAUX source pack for an audio group.
func (f *Frame) AudioSource(group int) (AAUXSource, bool) {
	return AudioSource(f.format, f.data, group, f.Valid)
}

// Timecode returns the frame's title timecode.
func (f *Frame) Timecode() (Timecode, bool) {
	return TitleTimecode(f.format, f.data, f.Valid)
}

// InvalidCount returns the number of invalid blocks of the given kind.
func (f *Frame) InvalidCount(kind Kind) int {
	n := 0
	for i, s := range f.status {
		if s != 0 && f.format.KindAt(i) == kind {
			n++
		}
	}
	return n
}

// Equal reports whether two frames have the same format, bytes, and status.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.format != other.format || !bytes.Equal(f.data, other.data) {
		return false
	}
	for i := range f.status {
		if f.status[i] != other.status[i] {
			return false
		}
	}
	return true
}
