package metadata

import (
	"dvrestore/internal/dv"
)

// Info holds the editable fields of one frame.
type Info struct {
	Index       int64
	Arbitrary   uint8
	APT         uint8
	HasAPT      bool
	Timecode    dv.Timecode
	HasTimecode bool
}

// Extract reads the editable fields of a decoded frame. Only blocks the frame
// holds valid contribute.
func Extract(index int64, f *dv.Frame) Info {
	info := Info{Index: index, Arbitrary: dv.ArbitraryBits(f.Format(), f.Data())}
	info.APT, info.HasAPT = dv.TrackApplicationID(f.Format(), f.Data(), f.Valid)
	info.Timecode, info.HasTimecode = f.Timecode()
	return info
}

// Patch writes the fields of want that differ from have into the raw frame
// data and reports whether anything was written. A title timecode is only
// written where the frame already carries timecode packs.
func Patch(format dv.Format, data []byte, have, want Info) bool {
	changed := false
	if want.Arbitrary != have.Arbitrary {
		dv.SetArbitraryBits(format, data, want.Arbitrary)
		changed = true
	}
	if want.HasAPT && (!have.HasAPT || want.APT != have.APT) {
		dv.SetTrackApplicationID(format, data, want.APT)
		changed = true
	}
	if want.HasTimecode && (!have.HasTimecode || !sameTime(want.Timecode, have.Timecode)) {
		if dv.SetTitleTimecode(format, data, want.Timecode) > 0 {
			changed = true
		}
	}
	return changed
}

func sameTime(a, b dv.Timecode) bool {
	return a.Hours == b.Hours && a.Minutes == b.Minutes && a.Seconds == b.Seconds &&
		a.Frames == b.Frames && a.DropFrame == b.DropFrame
}
