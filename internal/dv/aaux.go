package dv

import "fmt"

// Pack types used by the decoder.
const (
	PackTitleTimecode uint8 = 0x13
	PackAAUXSource    uint8 = 0x50
	PackNoInfo        uint8 = 0xFF
)

// Quantization is the audio sample encoding.
type Quantization uint8

const (
	Linear16    Quantization = 0
	Nonlinear12 Quantization = 1
)

func (q Quantization) String() string {
	switch q {
	case Linear16:
		return "16-bit"
	case Nonlinear12:
		return "12-bit"
	default:
		return fmt.Sprintf("quantization(%d)", uint8(q))
	}
}

var sampleRates = map[uint8]int{0: 48000, 1: 44100, 2: 32000}

// SampleRange is the inclusive window of per-frame sample counts a device may
// record for a system and rate.
type SampleRange struct {
	Min int
	Max int
}

var sampleRanges = map[System]map[int]SampleRange{
	System525_60: {
		32000: {1053, 1080},
		44100: {1452, 1489},
		48000: {1580, 1620},
	},
	System625_50: {
		32000: {1264, 1296},
		44100: {1742, 1786},
		48000: {1896, 1944},
	},
}

// SamplesPerFrameRange returns the AAUX-declared sample count window.
func SamplesPerFrameRange(system System, rate int) (SampleRange, bool) {
	r, ok := sampleRanges[system][rate]
	return r, ok
}

// AAUXSource is the decoded AAUX source pack of an audio group.
type AAUXSource struct {
	System           System
	SampleRate       int
	Quantization     Quantization
	SamplesPerFrame  int
	Locked           bool
	ChannelsPerBlock int // 1 in 16-bit mode, 2 when each block carries a 12-bit pair
	AudioMode        uint8
}

// ParseAAUXSource decodes a five byte pack. It fails on any field the
// resynchronizer cannot act on.
func ParseAAUXSource(pack []byte) (AAUXSource, error) {
	if len(pack) < 5 || pack[0] != PackAAUXSource {
		return AAUXSource{}, fmt.Errorf("aaux source: not a source pack")
	}
	src := AAUXSource{
		Locked:           pack[1]&0x80 == 0,
		AudioMode:        pack[2] & 0x0F,
		ChannelsPerBlock: 1,
	}
	switch (pack[2] >> 5) & 0x03 {
	case 0:
	case 1:
		src.ChannelsPerBlock = 2
	default:
		return AAUXSource{}, fmt.Errorf("aaux source: unsupported channel field %d", (pack[2]>>5)&0x03)
	}
	if pack[3]&0x20 != 0 {
		src.System = System625_50
	}
	rate, ok := sampleRates[(pack[4]>>3)&0x07]
	if !ok {
		return AAUXSource{}, fmt.Errorf("aaux source: unsupported sample frequency code %d", (pack[4]>>3)&0x07)
	}
	src.SampleRate = rate
	switch pack[4] & 0x07 {
	case 0:
		src.Quantization = Linear16
	case 1:
		src.Quantization = Nonlinear12
	default:
		return AAUXSource{}, fmt.Errorf("aaux source: unsupported quantization %d", pack[4]&0x07)
	}
	window := sampleRanges[src.System][src.SampleRate]
	src.SamplesPerFrame = window.Min + int(pack[1]&0x3F)
	if src.SamplesPerFrame > window.Max {
		return AAUXSource{}, fmt.Errorf("aaux source: sample count %d exceeds %d", src.SamplesPerFrame, window.Max)
	}
	if src.SamplesPerFrame > MaxSamples(src.System, src.Quantization) {
		return AAUXSource{}, fmt.Errorf("aaux source: sample count %d does not fit %s blocks", src.SamplesPerFrame, src.Quantization)
	}
	return src, nil
}

// Pack encodes the source pack.
func (s AAUXSource) Pack() [5]byte {
	window := sampleRanges[s.System][s.SampleRate]
	var p [5]byte
	p[0] = PackAAUXSource
	p[1] = 0x40 | byte(s.SamplesPerFrame-window.Min)&0x3F
	if !s.Locked {
		p[1] |= 0x80
	}
	chn := byte(0)
	if s.ChannelsPerBlock == 2 {
		chn = 1
	}
	p[2] = chn<<5 | s.AudioMode&0x0F
	p[3] = 0x80
	if s.System == System625_50 {
		p[3] |= 0x20
	}
	var smp byte
	for code, rate := range sampleRates {
		if rate == s.SampleRate {
			smp = code
		}
	}
	p[4] = smp<<3 | byte(s.Quantization)&0x07
	return p
}

// AudioSource returns the most common readable AAUX source pack among the
// usable audio blocks of one group. Groups are numbered channel*2 + half.
func AudioSource(format Format, data []byte, group int, usable func(int) bool) (AAUXSource, bool) {
	counts := make(map[AAUXSource]int)
	var best AAUXSource
	bestCount := 0
	half := format.Sequences() / 2
	channel := group / 2
	first := (group % 2) * half
	for seq := first; seq < first+half; seq++ {
		for dbn := 0; dbn < 9; dbn++ {
			i := format.AudioBlockIndex(channel, seq, dbn)
			if usable != nil && !usable(i) {
				continue
			}
			block := data[i*BlockSize : (i+1)*BlockSize]
			if block[3] != PackAAUXSource {
				continue
			}
			src, err := ParseAAUXSource(block[3:8])
			if err != nil || src.System != format.System {
				continue
			}
			counts[src]++
			// ties keep the first pack seen in transmission order
			if counts[src] > bestCount {
				best, bestCount = src, counts[src]
			}
		}
	}
	return best, bestCount > 0
}
