package dv

const (
	audioError16 int16  = -0x8000
	audioError12 uint16 = 0x800
)

// GroupSamples holds the decoded samples of one audio group, one slice per
// channel. Known is false for samples that came from an unusable block or
// carried the in-band error code.
type GroupSamples struct {
	Channels [][]int16
	Known    [][]bool
}

// DecodeAudioGroup deshuffles the first src.SamplesPerFrame samples of an
// audio group. Groups are numbered channel*2 + half, where half selects the
// first or second half of the channel's DIF sequences.
func DecodeAudioGroup(format Format, data []byte, group int, src AAUXSource, usable func(int) bool) GroupSamples {
	channels := 1
	if src.Quantization == Nonlinear12 {
		channels = 2
	}
	count := src.SamplesPerFrame
	if max := MaxSamples(format.System, src.Quantization); count > max {
		count = max
	}
	out := GroupSamples{
		Channels: make([][]int16, channels),
		Known:    make([][]bool, channels),
	}
	for c := range out.Channels {
		out.Channels[c] = make([]int16, count)
		out.Known[c] = make([]bool, count)
	}

	half := format.Sequences() / 2
	dif := group / 2
	first := (group % 2) * half
	positions := shufflePositions[format.Sequences()]
	for n := 0; n < count; n++ {
		p := positions[n]
		i := format.AudioBlockIndex(dif, first+p.seqOffset, p.dbn)
		ok := usable == nil || usable(i)
		payload := data[i*BlockSize+8 : (i+1)*BlockSize]
		if src.Quantization == Nonlinear12 {
			y, z := unpack12(payload[3*p.slot:])
			out.Channels[0][n] = Expand12(y)
			out.Channels[1][n] = Expand12(z)
			out.Known[0][n] = ok && y != audioError12
			out.Known[1][n] = ok && z != audioError12
			continue
		}
		v := int16(uint16(payload[2*p.slot])<<8 | uint16(payload[2*p.slot+1]))
		out.Channels[0][n] = v
		out.Known[0][n] = ok && v != audioError16
	}
	return out
}

// EncodeAudioGroup shuffles 16-bit samples for one group into frame data.
// It is the inverse of DecodeAudioGroup for linear quantization.
func EncodeAudioGroup(format Format, data []byte, group int, samples []int16) {
	half := format.Sequences() / 2
	dif := group / 2
	first := (group % 2) * half
	positions := shufflePositions[format.Sequences()]
	for n, v := range samples {
		if n >= len(positions) {
			return
		}
		p := positions[n]
		i := format.AudioBlockIndex(dif, first+p.seqOffset, p.dbn)
		payload := data[i*BlockSize+8 : (i+1)*BlockSize]
		payload[2*p.slot] = byte(uint16(v) >> 8)
		payload[2*p.slot+1] = byte(uint16(v))
	}
}

func unpack12(b []byte) (uint16, uint16) {
	y := uint16(b[0])<<4 | uint16(b[2]>>4)
	z := uint16(b[1])<<4 | uint16(b[2]&0x0F)
	return y, z
}

// Pack12 writes a pair of 12-bit codes into three bytes.
func Pack12(dst []byte, y, z uint16) {
	dst[0] = byte(y >> 4)
	dst[1] = byte(z >> 4)
	dst[2] = byte(y&0x0F)<<4 | byte(z&0x0F)
}

// Expand12 converts a 12-bit nonlinear code to a 16-bit linear sample.
func Expand12(code uint16) int16 {
	sample := code & 0x0FFF
	if sample >= 0x800 {
		sample |= 0xF000
	}
	shift := (sample & 0x0F00) >> 8
	var result uint16
	switch {
	case shift < 0x2 || shift > 0xD:
		result = sample
	case shift < 0x8:
		shift--
		result = (sample - 256*shift) << shift
	default:
		shift = 0xE - shift
		result = ((sample + (256*shift + 1)) << shift) - 1
	}
	return int16(result)
}

// MarkAudioLost fills the sample area of audio block b with the error code
// of its group's quantization, taken from the group's usable source packs.
// Linear16 is assumed when none is readable.
func MarkAudioLost(format Format, data []byte, b int, usable func(int) bool) {
	pos := format.Position(b)
	group := pos.Channel*2 + pos.Sequence/(format.Sequences()/2)
	q := Linear16
	if src, ok := AudioSource(format, data, group, usable); ok {
		q = src.Quantization
	}
	payload := data[b*BlockSize+8 : (b+1)*BlockSize]
	if q == Nonlinear12 {
		for i := 0; i+3 <= len(payload); i += 3 {
			Pack12(payload[i:], audioError12, audioError12)
		}
		return
	}
	for i := 0; i+2 <= len(payload); i += 2 {
		payload[i], payload[i+1] = 0x80, 0x00
	}
}
