package faults

import (
	"fmt"
	"strings"
)

// Kind classifies a per-frame defect. Defects are values that flow alongside
// the output; none of them stops a run.
type Kind string

const (
	KindMalformedFrame   Kind = "malformed_frame"
	KindMissingFrame     Kind = "missing_frame"
	KindIrrecoverable    Kind = "irrecoverable"
	KindScheduleMismatch Kind = "schedule_mismatch"
)

// Severity returns the log level name used when reporting the kind.
func (k Kind) Severity() string {
	switch k {
	case KindScheduleMismatch, KindMissingFrame, KindMalformedFrame:
		return "warn"
	default:
		return "error"
	}
}

// NoBlock marks a diagnostic that applies to a whole frame.
const NoBlock = -1

// Diagnostic attributes a defect to a frame index, and where known to a
// capture and block.
type Diagnostic struct {
	Kind    Kind
	Capture string
	Frame   int64
	Block   int
	Detail  string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s frame=%d", d.Kind, d.Frame)
	if d.Capture != "" {
		fmt.Fprintf(&b, " capture=%s", d.Capture)
	}
	if d.Block != NoBlock {
		fmt.Fprintf(&b, " block=%d", d.Block)
	}
	if d.Detail != "" {
		b.WriteString(": ")
		b.WriteString(d.Detail)
	}
	return b.String()
}

// MalformedFrame reports a capture frame that failed structural decode.
func MalformedFrame(capture string, frame int64, err error) Diagnostic {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return Diagnostic{Kind: KindMalformedFrame, Capture: capture, Frame: frame, Block: NoBlock, Detail: detail}
}

// MissingFrame reports an index no capture covers.
func MissingFrame(frame int64) Diagnostic {
	return Diagnostic{Kind: KindMissingFrame, Frame: frame, Block: NoBlock}
}

// Irrecoverable reports a block no concealment policy could resolve.
func Irrecoverable(frame int64, block int, detail string) Diagnostic {
	return Diagnostic{Kind: KindIrrecoverable, Frame: frame, Block: block, Detail: detail}
}

// ScheduleMismatch reports an audio window whose sample count lies outside
// every band the timing schedule allows.
func ScheduleMismatch(frame int64, detail string) Diagnostic {
	return Diagnostic{Kind: KindScheduleMismatch, Frame: frame, Block: NoBlock, Detail: detail}
}

// Counts tallies diagnostics by kind.
func Counts(diags []Diagnostic) map[Kind]int {
	out := make(map[Kind]int, 4)
	for _, d := range diags {
		out[d.Kind]++
	}
	return out
}
