package dv

import (
	"encoding/hex"
	"fmt"
	"io"
)

// DumpOptions selects what Dump prints.
type DumpOptions struct {
	Kinds map[Kind]bool // empty prints every kind
	Hex   bool
	// OnlyInvalid limits output to blocks with a status flag.
	OnlyInvalid bool
}

// Dump writes a block-by-block listing of one frame.
func Dump(w io.Writer, index int64, f *Frame, opts DumpOptions) error {
	if _, err := fmt.Fprintf(w, "frame %d format=%s", index, f.Format()); err != nil {
		return err
	}
	if tc, ok := f.Timecode(); ok {
		fmt.Fprintf(w, " timecode=%s", tc)
	}
	if src, ok := f.AudioSource(0); ok {
		fmt.Fprintf(w, " audio=%dHz/%s/%d", src.SampleRate, src.Quantization, src.SamplesPerFrame)
	}
	fmt.Fprintln(w)
	for i := 0; i < f.BlockCount(); i++ {
		kind := f.Kind(i)
		if len(opts.Kinds) > 0 && !opts.Kinds[kind] {
			continue
		}
		if opts.OnlyInvalid && f.Valid(i) {
			continue
		}
		id := ParseBlockID(f.Block(i))
		line := fmt.Sprintf("  %4d %-22s status=%-16s id=%d/%X/%d/%d/%d",
			i, f.Format().Position(i), f.Status(i), id.Type, id.Arbitrary, id.DIFSequence, id.Channel, id.Number)
		if opts.Hex {
			line += " " + hex.EncodeToString(f.Block(i)[3:])
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
