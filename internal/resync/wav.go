package resync

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter encodes planar 16-bit samples as interleaved little-endian PCM.
type WAVWriter struct {
	enc      *wav.Encoder
	buf      *audio.IntBuffer
	channels int
}

// NewWAVWriter starts a PCM WAV stream on w. The header is finalized by Close.
func NewWAVWriter(w io.WriteSeeker, rate, channels int) *WAVWriter {
	return &WAVWriter{
		enc: wav.NewEncoder(w, rate, 16, channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
			SourceBitDepth: 16,
		},
		channels: channels,
	}
}

// Write appends one block of planar samples; every channel must have the
// same length.
func (w *WAVWriter) Write(planar [][]int16) error {
	if len(planar) != w.channels {
		return fmt.Errorf("wav: got %d channels, want %d", len(planar), w.channels)
	}
	n := len(planar[0])
	data := w.buf.Data[:0]
	for i := 0; i < n; i++ {
		for c := range planar {
			data = append(data, int(planar[c][i]))
		}
	}
	w.buf.Data = data
	return w.enc.Write(w.buf)
}

// Close writes the final chunk sizes.
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}
