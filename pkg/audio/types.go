// Package audio holds the PCM plumbing shared by capture and scoring: the
// [Frame] type that devices emit, format conversion between device and
// session formats, and the RIFF/WAVE container used on the wire.
//
// All sample data is little-endian signed 16-bit PCM.
package audio

import "time"

// Frame is a chunk of interleaved PCM emitted by a capture stream.
type Frame struct {
	// Data is little-endian int16 PCM, interleaved when Channels > 1.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for a browser microphone).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to take start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameFormat returns the format of f.
func (f Frame) FrameFormat() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Duration returns the playback length of pcm in format f.
func (f Format) Duration(pcmBytes int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := pcmBytes / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
