package scoring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/pointread/internal/observe"
	"github.com/MrWong99/pointread/pkg/types"
)

// Sample categories accepted by the backend. CategoryAny draws from all
// lengths; the others select short, medium and long sentences.
const (
	CategoryAny    = 0
	CategoryShort  = 1
	CategoryMedium = 2
	CategoryLong   = 3
)

type sampleRequest struct {
	Category string `json:"category"`
	Language string `json:"language"`
}

// FetchSample asks the backend for a practice sentence.
//
// When the sample endpoint has no base URL, development clients get
// [FallbackSentence] and all others a [*ConfigurationError]. In development
// an unreachable dev fallback backend also yields FallbackSentence so the
// practice loop stays usable offline. Non-2xx responses are returned as
// [*HardServiceError] and are not retried.
func (c *Client) FetchSample(ctx context.Context, category int, language string) (types.SampleSentence, error) {
	if category < CategoryAny || category > CategoryLong {
		return types.SampleSentence{}, fmt.Errorf("%w: %d (want 0..3)", ErrInvalidCategory, category)
	}

	base := c.BaseURL(EndpointSample)
	if base == "" {
		if c.cfg.IsDevelopment {
			return types.SampleSentence{Text: FallbackSentence}, nil
		}
		return types.SampleSentence{}, &ConfigurationError{Endpoint: EndpointSample}
	}
	url := base + samplePath

	ctx, span := observe.StartSpan(ctx, "scoring.FetchSample", trace.WithAttributes(
		attribute.Int("category", category),
		attribute.String("language", language),
	))
	defer span.End()
	log := observe.LoggerFrom(ctx, c.log)

	start := time.Now()
	resp, err := c.post(ctx, url, sampleRequest{Category: strconv.Itoa(category), Language: language})
	c.metrics.SampleDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if c.offlineDevFallback() && ctx.Err() == nil {
			log.Warn("sample backend unreachable, using fallback sentence", "url", url, "err", err)
			return types.SampleSentence{Text: FallbackSentence}, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return types.SampleSentence{}, err
	}
	if !resp.ok() {
		herr := resp.hardError(url)
		span.SetStatus(codes.Error, herr.Error())
		return types.SampleSentence{}, herr
	}

	s, err := parseSample(unwrapEnvelope(resp.Payload))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.SampleSentence{}, fmt.Errorf("%w from %s", err, url)
	}
	log.Debug("fetched sample", "category", category, "text", s.Text)
	return s, nil
}

// offlineDevFallback reports whether the sample URL in use is the implicit
// dev fallback rather than a configured one.
func (c *Client) offlineDevFallback() bool {
	return c.cfg.IsDevelopment && c.cfg.SampleBaseURL == ""
}

// parseSample maps a sample payload onto a SampleSentence. real_transcript
// may be a string or a list, in which case its first element is used.
func parseSample(v any) (types.SampleSentence, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return types.SampleSentence{}, fmt.Errorf("%w: sample is %T, want object", ErrMalformedResponse, v)
	}
	text := m["real_transcript"]
	if list, ok := text.([]any); ok {
		if len(list) == 0 {
			text = nil
		} else {
			text = list[0]
		}
	}
	s := types.SampleSentence{
		Text:        stringify(text),
		IPA:         stringify(m["ipa_transcript"]),
		Translation: stringify(m["transcript_translation"]),
	}
	if s.Text == "" {
		return types.SampleSentence{}, fmt.Errorf("%w: sample has no real_transcript", ErrMalformedResponse)
	}
	return s, nil
}
