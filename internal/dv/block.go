package dv

import "fmt"

// Kind is the DIF block section type.
type Kind uint8

const (
	KindHeader  Kind = 0
	KindSubcode Kind = 1
	KindVAUX    Kind = 2
	KindAudio   Kind = 3
	KindVideo   Kind = 4
)

// Kinds lists every block kind in section type order.
var Kinds = []Kind{KindHeader, KindSubcode, KindVAUX, KindAudio, KindVideo}

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindSubcode:
		return "subcode"
	case KindVAUX:
		return "vaux"
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown block kind %q", name)
}

// IEC 61834-2 transmission order within one DIF sequence.
var (
	slotKind   [BlocksPerSequence]Kind
	slotNumber [BlocksPerSequence]uint8
	// audioSlot maps an audio DBN to its slot in the sequence.
	audioSlot [9]int
	// subcodeSlot maps a subcode DBN to its slot in the sequence.
	subcodeSlot [2]int
)

func init() {
	order := []Kind{KindHeader, KindSubcode, KindSubcode, KindVAUX, KindVAUX, KindVAUX}
	for i := 0; i < 9; i++ {
		order = append(order, KindAudio)
		for j := 0; j < 15; j++ {
			order = append(order, KindVideo)
		}
	}
	var counts [5]uint8
	for slot, kind := range order {
		slotKind[slot] = kind
		slotNumber[slot] = counts[kind]
		switch kind {
		case KindAudio:
			audioSlot[counts[kind]] = slot
		case KindSubcode:
			subcodeSlot[counts[kind]] = slot
		}
		counts[kind]++
	}
}

// Position locates a block within a frame.
type Position struct {
	Channel  int
	Sequence int
	Slot     int // 0..149 within the sequence
}

// Kind returns the static kind of the block at this position.
func (p Position) Kind() Kind { return slotKind[p.Slot] }

// Number returns the block number among blocks of the same kind in the sequence.
func (p Position) Number() int { return int(slotNumber[p.Slot]) }

func (p Position) String() string {
	return fmt.Sprintf("ch%d/seq%d/%s%d", p.Channel, p.Sequence, p.Kind(), p.Number())
}

// Position returns the location of block index i.
func (f Format) Position(i int) Position {
	seqs := f.Sequences()
	return Position{
		Channel:  i / (seqs * BlocksPerSequence),
		Sequence: (i / BlocksPerSequence) % seqs,
		Slot:     i % BlocksPerSequence,
	}
}

// Index returns the block index of a position.
func (f Format) Index(p Position) int {
	return (p.Channel*f.Sequences()+p.Sequence)*BlocksPerSequence + p.Slot
}

// KindAt returns the static kind of block index i.
func (f Format) KindAt(i int) Kind {
	return slotKind[i%BlocksPerSequence]
}

// Redundant returns the in-frame partner of block i, which carries the same
// block number in the opposite half of the channel's sequences. Only audio and
// subcode blocks have partners.
func (f Format) Redundant(i int) (int, bool) {
	kind := f.KindAt(i)
	if kind != KindAudio && kind != KindSubcode {
		return 0, false
	}
	pos := f.Position(i)
	half := f.Sequences() / 2
	pos.Sequence = (pos.Sequence + half) % f.Sequences()
	return f.Index(pos), true
}

// AudioBlockIndex returns the block index of audio block dbn in the given
// channel and sequence.
func (f Format) AudioBlockIndex(channel, sequence, dbn int) int {
	return f.Index(Position{Channel: channel, Sequence: sequence, Slot: audioSlot[dbn]})
}

// SubcodeBlockIndex returns the block index of subcode block dbn in the given
// channel and sequence.
func (f Format) SubcodeBlockIndex(channel, sequence, dbn int) int {
	return f.Index(Position{Channel: channel, Sequence: sequence, Slot: subcodeSlot[dbn]})
}

// BlockID is the three byte identifier at the start of every DIF block.
type BlockID struct {
	Type        Kind
	Arbitrary   uint8 // "Seq" nibble; 0xF for header and subcode blocks
	DIFSequence uint8
	Channel     uint8
	Number      uint8
	Reserved    bool // reserved bits carry their mandated values
}

// ParseBlockID decodes the first three bytes of a block.
func ParseBlockID(b []byte) BlockID {
	return BlockID{
		Type:        Kind(b[0] >> 5),
		Arbitrary:   b[0] & 0x0F,
		DIFSequence: b[1] >> 4,
		Channel:     (b[1] >> 3) & 0x1,
		Number:      b[2],
		Reserved:    b[0]&0x10 != 0 && b[1]&0x07 == 0x07,
	}
}

// Put writes the identifier into the first three bytes of dst.
func (id BlockID) Put(dst []byte) {
	dst[0] = byte(id.Type)<<5 | 0x10 | id.Arbitrary&0x0F
	dst[1] = id.DIFSequence<<4 | (id.Channel&0x1)<<3 | 0x07
	dst[2] = id.Number
}

// ExpectedID returns the identifier a block at index i must carry.
func (f Format) ExpectedID(i int) BlockID {
	pos := f.Position(i)
	return BlockID{
		Type:        pos.Kind(),
		Arbitrary:   0xF,
		DIFSequence: uint8(pos.Sequence),
		Channel:     uint8(pos.Channel),
		Number:      uint8(pos.Number()),
		Reserved:    true,
	}
}

func (id BlockID) matches(want BlockID) bool {
	return id.Reserved &&
		id.Type == want.Type &&
		id.DIFSequence == want.DIFSequence &&
		id.Channel == want.Channel &&
		id.Number == want.Number
}

// ArbitraryBits returns the most common arbitrary-bit nibble across the block
// IDs of a frame. Ties go to the smaller value.
func ArbitraryBits(format Format, data []byte) uint8 {
	var counts [16]int
	for i := 0; i < format.BlockCount(); i++ {
		counts[data[i*BlockSize]&0x0F]++
	}
	best := 0
	for v := 1; v < len(counts); v++ {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return uint8(best)
}

// SetArbitraryBits writes v into the arbitrary-bit nibble of every block ID.
func SetArbitraryBits(format Format, data []byte, v uint8) {
	for i := 0; i < format.BlockCount(); i++ {
		data[i*BlockSize] = data[i*BlockSize]&0xF0 | v&0x0F
	}
}

// TrackApplicationID returns the APT field most header blocks agree on.
func TrackApplicationID(format Format, data []byte, usable func(int) bool) (uint8, bool) {
	var counts [8]int
	seen := false
	for ch := 0; ch < format.Channels; ch++ {
		for seq := 0; seq < format.Sequences(); seq++ {
			i := format.Index(Position{Channel: ch, Sequence: seq, Slot: 0})
			if usable != nil && !usable(i) {
				continue
			}
			counts[data[i*BlockSize+4]&0x07]++
			seen = true
		}
	}
	best := 0
	for v := 1; v < len(counts); v++ {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return uint8(best), seen
}

// SetTrackApplicationID writes apt into every header block.
func SetTrackApplicationID(format Format, data []byte, apt uint8) {
	for ch := 0; ch < format.Channels; ch++ {
		for seq := 0; seq < format.Sequences(); seq++ {
			i := format.Index(Position{Channel: ch, Sequence: seq, Slot: 0})
			data[i*BlockSize+4] = data[i*BlockSize+4]&0xF8 | apt&0x07
		}
	}
}
