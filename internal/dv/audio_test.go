package dv_test

import (
	"testing"

	"dvrestore/internal/dv"
	"dvrestore/internal/testsupport"
)

func TestAAUXSourcePackRoundTrip(t *testing.T) {
	cases := []dv.AAUXSource{
		{System: dv.System525_60, SampleRate: 48000, Quantization: dv.Linear16, SamplesPerFrame: 1602, Locked: true, ChannelsPerBlock: 1},
		{System: dv.System525_60, SampleRate: 32000, Quantization: dv.Nonlinear12, SamplesPerFrame: 1068, ChannelsPerBlock: 2},
		{System: dv.System625_50, SampleRate: 44100, Quantization: dv.Linear16, SamplesPerFrame: 1764, Locked: true, ChannelsPerBlock: 1},
		{System: dv.System625_50, SampleRate: 48000, Quantization: dv.Linear16, SamplesPerFrame: 1944, ChannelsPerBlock: 1},
	}
	for _, want := range cases {
		pack := want.Pack()
		got, err := dv.ParseAAUXSource(pack[:])
		if err != nil {
			t.Fatalf("ParseAAUXSource(%x): %v", pack, err)
		}
		if got != want {
			t.Fatalf("got %+v want %+v", got, want)
		}
	}
}

func TestAAUXSourceRejectsUnusablePacks(t *testing.T) {
	good := testsupport.DefaultAudio(dv.System525_60, 1600).Pack()
	bad := good
	bad[4] = bad[4]&^0x38 | 0x38 // reserved sample frequency
	if _, err := dv.ParseAAUXSource(bad[:]); err == nil {
		t.Fatal("expected error for reserved sample frequency")
	}
	bad = good
	bad[1] |= 0x3F // 1580 + 63 overflows the 48 kHz window
	if _, err := dv.ParseAAUXSource(bad[:]); err == nil {
		t.Fatal("expected error for out of range sample count")
	}
	if _, err := dv.ParseAAUXSource([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}); err == nil {
		t.Fatal("expected error for NO INFO pack")
	}
}

func TestShuffleCoversEverySlotOnce(t *testing.T) {
	for _, system := range []dv.System{dv.System525_60, dv.System625_50} {
		format := dv.Format{System: system, Channels: 1}
		max := dv.MaxSamples(system, dv.Linear16)
		samples := make([]int16, max)
		for n := range samples {
			samples[n] = int16(n + 1)
		}
		data := make([]byte, format.FrameSize())
		dv.EncodeAudioGroup(format, data, 1, samples)
		src := dv.AAUXSource{System: system, SampleRate: 48000, Quantization: dv.Linear16, SamplesPerFrame: max}
		got := dv.DecodeAudioGroup(format, data, 1, src, nil)
		for n := range samples {
			if got.Channels[0][n] != samples[n] || !got.Known[0][n] {
				t.Fatalf("%s: sample %d = %d known=%v", system, n, got.Channels[0][n], got.Known[0][n])
			}
		}
		// group 0 must be untouched
		zero := dv.DecodeAudioGroup(format, data, 0, src, nil)
		for n, v := range zero.Channels[0] {
			if v != 0 {
				t.Fatalf("%s: group 0 sample %d overwritten with %d", system, n, v)
			}
		}
	}
}

func TestDecodeAudioGroupMarksUnusableSamplesUnknown(t *testing.T) {
	format := dv.FormatNTSC
	raw := testsupport.BuildFrame(format)
	frame, err := dv.Decode(format, raw, dv.ErrorMap{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	src, ok := frame.AudioSource(0)
	if !ok {
		t.Fatal("expected readable AAUX source")
	}
	if src.SamplesPerFrame != 1602 || src.SampleRate != 48000 {
		t.Fatalf("unexpected source %+v", src)
	}
	lost := format.AudioBlockIndex(0, 2, 3)
	usable := func(i int) bool { return i != lost }
	got := dv.DecodeAudioGroup(format, frame.Data(), 0, src, usable)
	unknown := 0
	for n, known := range got.Known[0] {
		if !known {
			unknown++
			continue
		}
		if want := int16(1000 + n%500); got.Channels[0][n] != want {
			t.Fatalf("sample %d = %d want %d", n, got.Channels[0][n], want)
		}
	}
	// every slot of this block holds a sample below 1602
	if unknown != 36 {
		t.Fatalf("expected 36 unknown samples from the lost block, got %d", unknown)
	}
}

func TestExpand12(t *testing.T) {
	cases := map[uint16]int16{
		0x000: 0,
		0x0FF: 0x0FF,
		0x100: 0x100,
		0x200: 0x200,
		0x2FF: 0x3FE,
		0x7FF: 0x7FC0,
		0xFFF: -1,
		0x800: -32705,
	}
	for code, want := range cases {
		if got := dv.Expand12(code); got != want {
			t.Fatalf("Expand12(%#x) = %d want %d", code, got, want)
		}
	}
}

func TestPack12RoundTrip(t *testing.T) {
	format := dv.FormatNTSC
	data := make([]byte, format.FrameSize())
	block := format.AudioBlockIndex(0, 0, 0)
	dv.Pack12(data[block*dv.BlockSize+8:], 0x123, 0x456)
	src := dv.AAUXSource{System: format.System, SampleRate: 32000, Quantization: dv.Nonlinear12, SamplesPerFrame: 1068, ChannelsPerBlock: 2}
	got := dv.DecodeAudioGroup(format, data, 0, src, nil)
	if len(got.Channels) != 2 {
		t.Fatalf("expected two channels in 12-bit mode, got %d", len(got.Channels))
	}
	if got.Channels[0][0] != dv.Expand12(0x123) || got.Channels[1][0] != dv.Expand12(0x456) {
		t.Fatalf("unexpected 12-bit pair %d/%d", got.Channels[0][0], got.Channels[1][0])
	}
}
