package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAVHeaderSize is the size of the canonical PCM RIFF/WAVE header written by
// [EncodePCM16WAV].
const WAVHeaderSize = 44

// ErrInvalidWAV is returned by [ParseWAV] for anything that is not a
// RIFF/WAVE container with a data chunk.
var ErrInvalidWAV = errors.New("audio: invalid WAV")

// WAVInfo describes the layout of a parsed RIFF/WAVE container.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int

	// DataOffset is the byte offset of the first PCM sample.
	DataOffset int

	// DataSize is the declared size of the data chunk, clamped to the bytes
	// actually present.
	DataSize int
}

// PCM returns the data chunk of wav described by info.
func (info WAVInfo) PCM(wav []byte) []byte {
	return wav[info.DataOffset : info.DataOffset+info.DataSize]
}

// EncodeSilentWAV returns a mono 16-bit WAV holding floor(duration*sampleRate)
// zero samples, and never fewer than one. It is the warm-up payload sent to
// wake a cold scoring backend.
func EncodeSilentWAV(duration float64, sampleRate int) []byte {
	n := 0
	if sampleRate > 0 && duration > 0 && !math.IsInf(duration, 0) {
		n = int(math.Floor(duration * float64(sampleRate)))
	}
	n = max(n, 1)
	return EncodePCM16WAV(make([]byte, n*2), sampleRate, 1)
}

// EncodePCM16WAV wraps little-endian int16 PCM in a 44-byte RIFF/WAVE header.
// A trailing odd byte in pcm is dropped.
func EncodePCM16WAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	dataSize := len(pcm) &^ 1
	blockAlign := channels * 2

	out := make([]byte, WAVHeaderSize+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[44:], pcm[:dataSize])
	return out
}

// ParseWAV walks the RIFF chunks of wav and returns the format of the first
// "fmt " chunk and the location of the "data" chunk. Chunks it does not know
// (LIST, fact, ...) are skipped.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, fmt.Errorf("%w: %d bytes is too short for a RIFF header", ErrInvalidWAV, len(wav))
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVInfo{}, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("%w: missing WAVE identifier", ErrInvalidWAV)
	}

	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(wav) {
				return WAVInfo{}, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidWAV)
			}
			f := wav[body:]
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return WAVInfo{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			info.DataOffset = body
			info.DataSize = min(chunkSize, len(wav)-body)
			return info, nil
		}

		// Chunks are word-aligned.
		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}
