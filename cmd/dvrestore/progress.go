package main

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"dvrestore/internal/restore"
)

// frameProgress drives a terminal progress bar from restore progress events.
// It stays silent when w is not a terminal.
type frameProgress struct {
	bar *progressbar.ProgressBar
}

func newFrameProgress(w io.Writer, description string) *frameProgress {
	if !isTerminal(w) {
		return &frameProgress{}
	}
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
	return &frameProgress{bar: bar}
}

func (p *frameProgress) update(ev restore.Progress) {
	if p.bar == nil {
		return
	}
	if ev.Estimate > 0 && p.bar.GetMax64() != max(ev.Estimate, ev.Frames) {
		p.bar.ChangeMax64(max(ev.Estimate, ev.Frames))
	}
	_ = p.bar.Set64(ev.Frames)
}

func (p *frameProgress) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
