package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MIMETypeWAV is the media type of containers produced by this package.
const MIMETypeWAV = "audio/wav"

// ErrInvalidDataURL is returned by [ParseDataURL] for malformed input.
var ErrInvalidDataURL = errors.New("audio: invalid data URL")

// DataURL encodes b as "data:<mime>;base64,<payload>".
func DataURL(mime string, b []byte) string {
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mime) + base64.StdEncoding.EncodedLen(len(b)))
	sb.WriteString("data:")
	sb.WriteString(mime)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(b))
	return sb.String()
}

// SilentDataURL is the data URL of EncodeSilentWAV(duration, sampleRate).
func SilentDataURL(duration float64, sampleRate int) string {
	return DataURL(MIMETypeWAV, EncodeSilentWAV(duration, sampleRate))
}

// ParseDataURL splits a base64 data URL into its media type and decoded bytes.
// Media type parameters (e.g. ";codecs=opus") are kept in mime.
func ParseDataURL(s string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURL)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURL)
	}
	mime, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	return mime, data, nil
}
