package dv

// IEC 61834-2 section 6.7 audio shuffling. Sample n of one audio group lands
// in sequence offset (n/3 + 2(n%3)) mod half, block 3(n%3) + (n mod 9half)/(3half),
// at data slot n/(9half). The same pattern serves 16-bit mono and 12-bit
// paired samples because it is expressed in slots, not bytes.

type samplePosition struct {
	seqOffset int
	dbn       int
	slot      int
}

var (
	shufflePositions = map[int][]samplePosition{
		10: buildShuffle(10, 1620),
		12: buildShuffle(12, 1944),
	}
	shuffleNumbers = map[int][][9][]int{
		10: reverseShuffle(10, shufflePositions[10]),
		12: reverseShuffle(12, shufflePositions[12]),
	}
)

func buildShuffle(sequences, maxSamples int) []samplePosition {
	half := sequences / 2
	out := make([]samplePosition, maxSamples)
	for n := range out {
		out[n] = samplePosition{
			seqOffset: (n/3 + 2*(n%3)) % half,
			dbn:       3*(n%3) + (n%(9*half))/(3*half),
			slot:      n / (9 * half),
		}
	}
	return out
}

func reverseShuffle(sequences int, positions []samplePosition) [][9][]int {
	out := make([][9][]int, sequences/2)
	for n, p := range positions {
		out[p.seqOffset][p.dbn] = append(out[p.seqOffset][p.dbn], n)
	}
	return out
}

// blockSampleNumbers returns the group sample numbers stored in each data slot
// of the audio block at the given sequence offset and block number.
func blockSampleNumbers(sequences, seqOffset, dbn int) []int {
	return shuffleNumbers[sequences][seqOffset][dbn]
}

// MaxSamples returns the largest per-channel sample count an audio group can
// hold for the system and quantization.
func MaxSamples(system System, quant Quantization) int {
	slots := 36
	if quant == Nonlinear12 {
		slots = 24
	}
	return slots * 9 * system.Sequences() / 2
}
