package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Converter normalises frames to a target format: resample first, then
// channel convert. It logs once on the first mismatch and once on the first
// misaligned frame. Create one per stream; it is not safe for concurrent use.
type Converter struct {
	Target Format

	// Logger receives the one-shot warnings. Nil means slog.Default().
	Logger *slog.Logger

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// NewConverter returns a Converter targeting f.
func NewConverter(f Format, logger *slog.Logger) *Converter {
	return &Converter{Target: f, Logger: logger}
}

func (c *Converter) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Convert returns frame in the target format. A frame whose byte count is not
// a whole number of sample frames is dropped (Data is nil). A frame already in
// the target format is returned as is.
func (c *Converter) Convert(frame Frame) Frame {
	channels := max(frame.Channels, 1)
	if len(frame.Data)%(2*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			c.logger().Warn("audio: misaligned PCM frame, dropping",
				"bytes", len(frame.Data),
				"format", formatString(frame.SampleRate, frame.Channels),
			)
		})
		return Frame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}

	if frame.FrameFormat() == c.Target {
		return frame
	}

	c.warnedMismatch.Do(func() {
		c.logger().Info("audio: converting device format",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	// Downmix before resampling when the target is mono so fewer samples are
	// interpolated.
	if c.Target.Channels == 1 && channels > 1 {
		pcm = Downmix16(pcm, channels)
		channels = 1
	}
	if frame.SampleRate != c.Target.SampleRate {
		pcm = Resample16(pcm, channels, frame.SampleRate, c.Target.SampleRate)
	}
	if channels == 1 && c.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
		channels = 2
	}

	return Frame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   channels,
		Timestamp:  frame.Timestamp,
	}
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		lo, hi := pcm[i*2], pcm[i*2+1]
		out[i*4], out[i*4+1] = lo, hi
		out[i*4+2], out[i*4+3] = lo, hi
	}
	return out
}

// StereoToMono averages L and R of each stereo frame.
func StereoToMono(pcm []byte) []byte {
	return Downmix16(pcm, 2)
}

// Downmix16 averages the channels of interleaved PCM into mono. Trailing
// bytes that do not form a full sample frame are dropped.
func Downmix16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(sampleAt(pcm, i*channels+ch))
		}
		putSample(out, i, clamp16(sum/int32(channels)))
	}
	return out
}

// Resample16 converts interleaved PCM from srcRate to dstRate with linear
// interpolation per channel. Non-positive rates or equal rates return pcm
// unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	channels = max(channels, 1)
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*channels*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

// ResampleMono16 is Resample16 for mono input.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return Resample16(pcm, 1, srcRate, dstRate)
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}

func clamp16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}

// formatString renders a format for logs, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	switch {
	case channels == 1:
		return fmt.Sprintf("%dHz mono", rate)
	case channels == 2:
		return fmt.Sprintf("%dHz stereo", rate)
	}
	return fmt.Sprintf("%dHz %dch", rate, channels)
}
