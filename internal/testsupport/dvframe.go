package testsupport

import (
	"dvrestore/internal/dv"
)

// FrameOption customizes a synthetic frame.
type FrameOption func(*frameSpec)

type frameSpec struct {
	format    dv.Format
	timecode  *dv.Timecode
	audio     dv.AAUXSource
	noAudio   bool
	samples   func(group, n int) int16
	videoSeed byte
	badVideo  []int
}

// DefaultAudio returns a locked 48 kHz 16-bit source pack with the given
// per-frame sample count.
func DefaultAudio(system dv.System, samples int) dv.AAUXSource {
	return dv.AAUXSource{
		System:           system,
		SampleRate:       48000,
		Quantization:     dv.Linear16,
		SamplesPerFrame:  samples,
		Locked:           true,
		ChannelsPerBlock: 1,
	}
}

// WithTimecode stamps every subcode sync block with a title timecode.
func WithTimecode(tc dv.Timecode) FrameOption {
	return func(s *frameSpec) { s.timecode = &tc }
}

// WithAudio overrides the AAUX source pack written into every audio block.
func WithAudio(src dv.AAUXSource) FrameOption {
	return func(s *frameSpec) { s.audio = src }
}

// WithSamples sets the sample generator; n counts samples within the group.
func WithSamples(fn func(group, n int) int16) FrameOption {
	return func(s *frameSpec) { s.samples = fn }
}

// WithoutAudioPack writes NO INFO packs in every audio block.
func WithoutAudioPack() FrameOption {
	return func(s *frameSpec) { s.noAudio = true }
}

// WithVideoSeed varies the video payload so frames from different captures
// are distinguishable.
func WithVideoSeed(seed byte) FrameOption {
	return func(s *frameSpec) { s.videoSeed = seed }
}

// WithVideoError flags the given video blocks with a nonzero STA nibble
// after the frame is built.
func WithVideoError(blocks ...int) FrameOption {
	return func(s *frameSpec) { s.badVideo = append(s.badVideo, blocks...) }
}

// BuildFrame returns the bytes of a structurally valid frame that passes every
// integrity check.
func BuildFrame(format dv.Format, opts ...FrameOption) []byte {
	spec := frameSpec{format: format}
	nominal := 1602
	if format.System == dv.System625_50 {
		nominal = 1920
	}
	spec.audio = DefaultAudio(format.System, nominal)
	spec.samples = func(group, n int) int16 { return int16((group+1)*1000 + n%500) }
	for _, opt := range opts {
		opt(&spec)
	}

	data := make([]byte, format.FrameSize())
	for i := 0; i < format.BlockCount(); i++ {
		block := data[i*dv.BlockSize : (i+1)*dv.BlockSize]
		id := format.ExpectedID(i)
		switch id.Type {
		case dv.KindHeader:
			buildHeader(format, block)
		case dv.KindSubcode:
			buildSubcode(spec, block)
		case dv.KindVAUX:
			buildVAUX(block)
		case dv.KindAudio:
			id.Arbitrary = 0x0
			buildAudioPack(spec, block)
		case dv.KindVideo:
			id.Arbitrary = 0x0
			for j := 3; j < dv.BlockSize; j++ {
				block[j] = byte(i*7+j) ^ spec.videoSeed
			}
			block[3] &= 0x0F
		}
		id.Put(block)
	}
	if !spec.noAudio {
		for g := 0; g < format.AudioGroups(); g++ {
			samples := make([]int16, spec.audio.SamplesPerFrame)
			for n := range samples {
				samples[n] = spec.samples(g, n)
			}
			dv.EncodeAudioGroup(format, data, g, samples)
		}
	}
	for _, i := range spec.badVideo {
		SetVideoError(format, data, i)
	}
	return data
}

func buildHeader(format dv.Format, block []byte) {
	block[3] = 0x3F
	if format.System == dv.System625_50 {
		block[3] |= 0x80
	}
	block[4] = 0xFF
	block[5], block[6], block[7] = 0x7F, 0x7F, 0x7F
	for j := 8; j < dv.BlockSize; j++ {
		block[j] = 0xFF
	}
}

func buildSubcode(spec frameSpec, block []byte) {
	for j := 3; j < dv.BlockSize; j++ {
		block[j] = 0xFF
	}
	for s := 0; s < 6; s++ {
		ssyb := block[3+s*8 : 3+s*8+8]
		ssyb[0] = 0x80
		ssyb[1] = byte(s)
		ssyb[2] = 0xFF
		if spec.timecode != nil && (s == 0 || s == 3) {
			pack := spec.timecode.Pack()
			copy(ssyb[3:], pack[:])
		}
	}
}

func buildVAUX(block []byte) {
	for j := 3; j < dv.BlockSize; j++ {
		block[j] = 0xFF
	}
	// VAUX source pack with arbitrary but readable content
	copy(block[3:8], []byte{0x60, 0xFF, 0xFF, 0x00, 0xFF})
}

func buildAudioPack(spec frameSpec, block []byte) {
	for j := 3; j < 8; j++ {
		block[j] = 0xFF
	}
	if !spec.noAudio {
		pack := spec.audio.Pack()
		copy(block[3:8], pack[:])
	}
}

// SetVideoError writes a nonzero STA nibble into block i.
func SetVideoError(format dv.Format, data []byte, i int) {
	data[i*dv.BlockSize+3] |= 0x70
}

// SetAudioError writes the 16-bit error code into the first slot of block i.
func SetAudioError(format dv.Format, data []byte, i int) {
	data[i*dv.BlockSize+8] = 0x80
	data[i*dv.BlockSize+9] = 0x00
}

// BlocksOfKind returns every block index of a kind.
func BlocksOfKind(format dv.Format, kind dv.Kind) []int {
	var out []int
	for i := 0; i < format.BlockCount(); i++ {
		if format.KindAt(i) == kind {
			out = append(out, i)
		}
	}
	return out
}

// ErrorMapFor marks the given blocks bad.
func ErrorMapFor(format dv.Format, blocks ...int) dv.ErrorMap {
	m := dv.NewErrorMap(format.BlockCount())
	for _, i := range blocks {
		m.Set(i)
	}
	return m
}
