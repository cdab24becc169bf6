package scoring

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/pointread/internal/observe"
	"github.com/MrWong99/pointread/internal/resilience"
)

type ttsRequest struct {
	Value string `json:"value"`
}

// ttsCandidates returns the primary and legacy synthesis URLs for base. A
// base that already names an endpoint is used verbatim as the primary.
func ttsCandidates(base string) (primary, secondary string) {
	primary = base + ttsPath
	if strings.HasSuffix(base, ttsPath) || strings.HasSuffix(base, legacyPath) {
		primary = base
	}
	return primary, base + legacyPath
}

// SynthesizeSpeech returns reference audio (WAV bytes) for text. The primary
// URL is tried first and the legacy /getAudioFromText path second; each is
// guarded by its own circuit breaker. Without a TTS base URL it fails with a
// [*ConfigurationError] and callers are expected to fall back to local speech.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if c.tts == nil {
		return nil, &ConfigurationError{Endpoint: EndpointTTS}
	}

	ctx, span := observe.StartSpan(ctx, "scoring.SynthesizeSpeech")
	defer span.End()

	start := time.Now()
	wav, err := resilience.ExecuteWithResult(ctx, c.tts, func(ctx context.Context, url string) ([]byte, error) {
		return c.synthesize(ctx, url, text)
	})
	c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scoring: synthesize speech: %w", err)
	}
	return wav, nil
}

func (c *Client) synthesize(ctx context.Context, url, text string) ([]byte, error) {
	resp, err := c.post(ctx, url, ttsRequest{Value: text})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.hardError(url)
	}

	m, ok := resp.Payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned non-object TTS response", ErrMalformedResponse, url)
	}
	if _, has := m["wavBase64"]; !has {
		if inner, ok := unwrapEnvelope(m).(map[string]any); ok {
			m = inner
		}
	}
	b64, _ := m["wavBase64"].(string)
	if b64 == "" {
		return nil, fmt.Errorf("%w: wavBase64 not found in TTS response from %s", ErrMalformedResponse, url)
	}
	wav, err := decodeBase64(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: wavBase64 from %s: %w", ErrMalformedResponse, url, err)
	}
	return wav, nil
}

// decodeBase64 accepts padded or unpadded standard base64 with embedded
// whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
