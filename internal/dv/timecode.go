package dv

import (
	"fmt"
	"strconv"
	"strings"
)

// Timecode is a subcode title timecode.
type Timecode struct {
	Hours      int
	Minutes    int
	Seconds    int
	Frames     int
	DropFrame  bool
	ColorFrame bool
}

func (tc Timecode) String() string {
	sep := ':'
	if tc.DropFrame {
		sep = ';'
	}
	return fmt.Sprintf("%02d:%02d:%02d%c%02d", tc.Hours, tc.Minutes, tc.Seconds, sep, tc.Frames)
}

func bcd(tens, units byte) (int, bool) {
	if units > 9 {
		return 0, false
	}
	return int(tens)*10 + int(units), true
}

// ParseTimecode decodes a title timecode pack.
func ParseTimecode(system System, pack []byte) (Timecode, error) {
	if len(pack) < 5 || pack[0] != PackTitleTimecode {
		return Timecode{}, fmt.Errorf("timecode: not a title timecode pack")
	}
	if allFF(pack[1:5]) {
		return Timecode{}, fmt.Errorf("timecode: dropout")
	}
	frames, ok1 := bcd((pack[1]>>4)&0x03, pack[1]&0x0F)
	seconds, ok2 := bcd((pack[2]>>4)&0x07, pack[2]&0x0F)
	minutes, ok3 := bcd((pack[3]>>4)&0x07, pack[3]&0x0F)
	hours, ok4 := bcd((pack[4]>>4)&0x03, pack[4]&0x0F)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Timecode{}, fmt.Errorf("timecode: invalid BCD digit")
	}
	limit := 30
	if system == System625_50 {
		limit = 25
	}
	if frames >= limit || seconds >= 60 || minutes >= 60 || hours >= 24 {
		return Timecode{}, fmt.Errorf("timecode: field out of range")
	}
	return Timecode{
		Hours:      hours,
		Minutes:    minutes,
		Seconds:    seconds,
		Frames:     frames,
		ColorFrame: pack[1]&0x80 != 0,
		DropFrame:  system == System525_60 && pack[1]&0x40 != 0,
	}, nil
}

// Pack encodes the timecode as a title timecode pack.
func (tc Timecode) Pack() [5]byte {
	var p [5]byte
	p[0] = PackTitleTimecode
	p[1] = byte(tc.Frames/10)<<4 | byte(tc.Frames%10)
	if tc.ColorFrame {
		p[1] |= 0x80
	}
	if tc.DropFrame {
		p[1] |= 0x40
	}
	p[2] = 0x80 | byte(tc.Seconds/10)<<4 | byte(tc.Seconds%10)
	p[3] = 0x80 | byte(tc.Minutes/10)<<4 | byte(tc.Minutes%10)
	p[4] = 0xC0 | byte(tc.Hours/10)<<4 | byte(tc.Hours%10)
	return p
}

// FrameNumber converts the timecode to a frame count from 00:00:00:00,
// dropping frame numbers 0 and 1 of every minute not divisible by ten when
// drop-frame counting is in effect.
func (tc Timecode) FrameNumber(system System) int64 {
	fps := int64(30)
	if system == System625_50 {
		fps = 25
	}
	seconds := int64(tc.Hours)*3600 + int64(tc.Minutes)*60 + int64(tc.Seconds)
	n := seconds*fps + int64(tc.Frames)
	if tc.DropFrame && system == System525_60 {
		minutes := int64(tc.Hours)*60 + int64(tc.Minutes)
		n -= 2 * (minutes - minutes/10)
	}
	return n
}

// TimecodeFromFrameNumber is the inverse of FrameNumber.
func TimecodeFromFrameNumber(system System, n int64, dropFrame bool) Timecode {
	fps := int64(30)
	if system == System625_50 {
		fps = 25
		dropFrame = false
	}
	if dropFrame {
		// 17982 frames per ten minutes, 1798 per dropped minute
		tens := n / 17982
		rem := n % 17982
		if rem >= 2 {
			n += 18*tens + 2*((rem-2)/1798)
		} else {
			n += 18 * tens
		}
	}
	return Timecode{
		Hours:     int((n / (fps * 3600)) % 24),
		Minutes:   int((n / (fps * 60)) % 60),
		Seconds:   int((n / fps) % 60),
		Frames:    int(n % fps),
		DropFrame: dropFrame,
	}
}

// TitleTimecode returns the most common readable title timecode across the
// usable subcode blocks of a frame.
func TitleTimecode(format Format, data []byte, usable func(int) bool) (Timecode, bool) {
	counts := make(map[Timecode]int)
	var best Timecode
	bestCount := 0
	for ch := 0; ch < format.Channels; ch++ {
		for seq := 0; seq < format.Sequences(); seq++ {
			for dbn := 0; dbn < 2; dbn++ {
				i := format.SubcodeBlockIndex(ch, seq, dbn)
				if usable != nil && !usable(i) {
					continue
				}
				block := data[i*BlockSize : (i+1)*BlockSize]
				for s := 0; s < 6; s++ {
					pack := block[3+s*8+3 : 3+s*8+8]
					tc, err := ParseTimecode(format.System, pack)
					if err != nil {
						continue
					}
					counts[tc]++
					if counts[tc] > bestCount {
						best, bestCount = tc, counts[tc]
					}
				}
			}
		}
	}
	return best, bestCount > 0
}

// ParseTimecodeText reads "HH:MM:SS:FF". A ';' or '.' before the frame
// field selects drop-frame counting, which only 525/60 tapes use.
func ParseTimecodeText(system System, text string) (Timecode, error) {
	text = strings.TrimSpace(text)
	if len(text) != 11 || text[2] != ':' || text[5] != ':' {
		return Timecode{}, fmt.Errorf("timecode %q: want HH:MM:SS:FF", text)
	}
	var tc Timecode
	switch text[8] {
	case ':':
	case ';', '.':
		tc.DropFrame = true
	default:
		return Timecode{}, fmt.Errorf("timecode %q: want HH:MM:SS:FF", text)
	}
	fields := []*int{&tc.Hours, &tc.Minutes, &tc.Seconds, &tc.Frames}
	for i, dst := range fields {
		n, err := strconv.Atoi(text[i*3 : i*3+2])
		if err != nil || n < 0 {
			return Timecode{}, fmt.Errorf("timecode %q: bad field %q", text, text[i*3:i*3+2])
		}
		*dst = n
	}
	fps := 30
	if system == System625_50 {
		fps = 25
		if tc.DropFrame {
			return Timecode{}, fmt.Errorf("timecode %q: drop-frame needs a 525/60 tape", text)
		}
	}
	if tc.Frames >= fps || tc.Seconds >= 60 || tc.Minutes >= 60 || tc.Hours >= 24 {
		return Timecode{}, fmt.Errorf("timecode %q: field out of range", text)
	}
	return tc, nil
}

// Add returns the timecode n frames later, wrapping at 24 hours. Negative n
// counts backwards.
func (tc Timecode) Add(system System, n int64) Timecode {
	day := Timecode{Hours: 24, DropFrame: tc.DropFrame}.FrameNumber(system)
	pos := (tc.FrameNumber(system) + n) % day
	if pos < 0 {
		pos += day
	}
	next := TimecodeFromFrameNumber(system, pos, tc.DropFrame)
	next.ColorFrame = tc.ColorFrame
	return next
}

// PutTime rewrites the time digits and drop-frame flag of an existing title
// timecode pack. The color-frame, polarity and binary-group flags are kept.
func (tc Timecode) PutTime(pack []byte) {
	pack[0] = PackTitleTimecode
	pack[1] = pack[1]&0x80 | byte(tc.Frames/10)<<4 | byte(tc.Frames%10)
	if tc.DropFrame {
		pack[1] |= 0x40
	}
	pack[2] = pack[2]&0x80 | byte(tc.Seconds/10)<<4 | byte(tc.Seconds%10)
	pack[3] = pack[3]&0x80 | byte(tc.Minutes/10)<<4 | byte(tc.Minutes%10)
	pack[4] = pack[4]&0xC0 | byte(tc.Hours/10)<<4 | byte(tc.Hours%10)
}

// SetTitleTimecode rewrites every title timecode pack in the subcode blocks
// of data and returns how many packs it touched.
func SetTitleTimecode(format Format, data []byte, tc Timecode) int {
	n := 0
	for ch := 0; ch < format.Channels; ch++ {
		for seq := 0; seq < format.Sequences(); seq++ {
			for dbn := 0; dbn < 2; dbn++ {
				i := format.SubcodeBlockIndex(ch, seq, dbn)
				block := data[i*BlockSize : (i+1)*BlockSize]
				for s := 0; s < 6; s++ {
					pack := block[3+s*8+3 : 3+s*8+8]
					if pack[0] != PackTitleTimecode {
						continue
					}
					tc.PutTime(pack)
					n++
				}
			}
		}
	}
	return n
}
