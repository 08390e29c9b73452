package resync

import (
	"dvrestore/internal/dv"
	"dvrestore/internal/merge"
)

// Layout fixes the output channel arrangement of a stream.
type Layout struct {
	Format dv.Format
	Rate   int
	// GroupChannels holds the output channel count of each audio group.
	GroupChannels []int
}

// Channels returns the total number of output channels.
func (l Layout) Channels() int {
	n := 0
	for _, c := range l.GroupChannels {
		n += c
	}
	return n
}

// DetectLayout derives the layout from the first frame of a stream. Groups
// without a readable source pack inherit the quantization of the first group
// that has one; with no pack at all every group is one 16-bit channel at
// defaultRate.
func DetectLayout(f *merge.MergedFrame, defaultRate int) Layout {
	groups := f.Format.AudioGroups()
	l := Layout{Format: f.Format, Rate: defaultRate, GroupChannels: make([]int, groups)}
	srcs, has := frameSources(f)
	fallback := 1
	for g := 0; g < groups; g++ {
		if has[g] {
			l.Rate = srcs[g].SampleRate
			fallback = channelsFor(srcs[g].Quantization)
			break
		}
	}
	for g := 0; g < groups; g++ {
		l.GroupChannels[g] = fallback
		if has[g] {
			l.GroupChannels[g] = channelsFor(srcs[g].Quantization)
		}
	}
	return l
}

func channelsFor(q dv.Quantization) int {
	if q == dv.Nonlinear12 {
		return 2
	}
	return 1
}

func frameSources(f *merge.MergedFrame) ([]dv.AAUXSource, []bool) {
	groups := f.Format.AudioGroups()
	srcs := make([]dv.AAUXSource, groups)
	has := make([]bool, groups)
	for g := 0; g < groups; g++ {
		srcs[g], has[g] = dv.AudioSource(f.Format, f.Data, g, f.Resolved)
	}
	return srcs, has
}

// Window is the audio carried by one frame, deshuffled into output channels.
// Samples from unresolved blocks and error-coded samples are not Known.
type Window struct {
	Index     int64
	Source    dv.AAUXSource
	HasSource bool
	// Count is the per-channel sample count announced by the source pack.
	Count   int
	Samples [][]int16
	Known   [][]bool
}

// Unknown returns the largest number of unknown samples on any channel.
func (w Window) Unknown() int {
	most := 0
	for _, known := range w.Known {
		n := 0
		for _, k := range known {
			if !k {
				n++
			}
		}
		most = max(most, n)
	}
	return most
}

// ExtractWindow decodes a frame's audio into the layout. Without a readable
// source pack the window is empty.
func ExtractWindow(f *merge.MergedFrame, layout Layout) Window {
	w := Window{
		Index:   f.Index,
		Samples: make([][]int16, layout.Channels()),
		Known:   make([][]bool, layout.Channels()),
	}
	srcs, has := frameSources(f)
	for g := range has {
		if has[g] {
			w.Source, w.HasSource = srcs[g], true
			break
		}
	}
	if !w.HasSource {
		return w
	}
	w.Count = w.Source.SamplesPerFrame

	ch := 0
	for g, width := range layout.GroupChannels {
		src := w.Source
		if g < len(has) && has[g] {
			src = srcs[g]
		}
		src.SamplesPerFrame = w.Count
		var gs dv.GroupSamples
		if g < len(has) {
			gs = dv.DecodeAudioGroup(f.Format, f.Data, g, src, f.Resolved)
		}
		for k := 0; k < width; k++ {
			samples := make([]int16, w.Count)
			known := make([]bool, w.Count)
			if k < len(gs.Channels) {
				copy(samples, gs.Channels[k])
				copy(known, gs.Known[k])
			}
			w.Samples[ch], w.Known[ch] = samples, known
			ch++
		}
	}
	return w
}
