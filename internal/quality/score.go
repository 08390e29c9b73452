// Package quality ranks frames by how many of their blocks are invalid.
package quality

import (
	"fmt"

	"dvrestore/internal/dv"
)

// Score counts invalid blocks by recoverability class. Scores order
// lexicographically: video errors first because nothing conceals them, then
// audio, then everything else.
type Score struct {
	Video int
	Audio int
	Other int
}

// Of scores a frame. Frames with identical invalid block sets score equal.
func Of(f *dv.Frame) Score {
	var s Score
	for i := 0; i < f.BlockCount(); i++ {
		if f.Valid(i) {
			continue
		}
		switch f.Kind(i) {
		case dv.KindVideo:
			s.Video++
		case dv.KindAudio:
			s.Audio++
		default:
			s.Other++
		}
	}
	return s
}

// Compare returns a positive number when a is cleaner than b, negative when
// it is dirtier, and zero when they are equivalent.
func Compare(a, b Score) int {
	switch {
	case a.Video != b.Video:
		return b.Video - a.Video
	case a.Audio != b.Audio:
		return b.Audio - a.Audio
	default:
		return b.Other - a.Other
	}
}

// Better reports whether a is strictly cleaner than b.
func (a Score) Better(b Score) bool { return Compare(a, b) > 0 }

// Clean reports whether no block is invalid.
func (a Score) Clean() bool { return a == Score{} }

// Invalid returns the total number of invalid blocks.
func (a Score) Invalid() int { return a.Video + a.Audio + a.Other }

func (a Score) String() string {
	return fmt.Sprintf("video=%d audio=%d other=%d", a.Video, a.Audio, a.Other)
}
