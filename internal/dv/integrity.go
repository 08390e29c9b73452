package dv

// Checks for the fields the format itself guarantees on the digital interface.
// A block failing any of them is treated as bad regardless of what the
// capture device reported.

func allFF(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

func checkHeader(system System, b []byte) bool {
	dsf := b[3]&0x80 != 0
	if dsf != (system == System625_50) {
		return false
	}
	if b[3]&0x40 != 0 || b[3]&0x3F != 0x3F {
		return false
	}
	if b[4]&0x08 == 0 {
		return false
	}
	for _, v := range b[5:8] {
		// TFn must be zero, reserved nibble all ones
		if v&0x80 != 0 || v&0x78 != 0x78 {
			return false
		}
	}
	return allFF(b[8:])
}

func checkSubcode(b []byte) bool {
	syncBlocks := b[3:51]
	if allFF(syncBlocks) {
		return false
	}
	for s := 0; s < 6; s++ {
		if syncBlocks[s*8+2] != 0xFF {
			return false
		}
	}
	return allFF(b[51:])
}

func checkVAUX(b []byte) bool {
	if allFF(b[3:78]) {
		return false
	}
	return allFF(b[78:])
}

func checkVideo(b []byte) bool {
	return b[3]>>4 == 0
}

// audioLayout describes how one audio group is quantized and how many of its
// sample slots are in use.
type audioLayout struct {
	quant   Quantization
	samples int // samples per channel in the frame; slots at or past this are unused
}

func checkAudio(f Format, pos Position, b []byte, layout audioLayout) bool {
	half := f.Sequences() / 2
	numbers := blockSampleNumbers(f.Sequences(), pos.Sequence%half, pos.Number())
	data := b[8:]
	switch layout.quant {
	case Nonlinear12:
		for slot := 0; slot < 24 && slot < len(numbers); slot++ {
			if numbers[slot] >= layout.samples {
				break
			}
			y, z := unpack12(data[3*slot:])
			if y == audioError12 || z == audioError12 {
				return false
			}
		}
	default:
		for slot := 0; slot < 36 && slot < len(numbers); slot++ {
			if numbers[slot] >= layout.samples {
				break
			}
			if data[2*slot] == 0x80 && data[2*slot+1] == 0x00 {
				return false
			}
		}
	}
	return true
}
