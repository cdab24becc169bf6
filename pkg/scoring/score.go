package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/pointread/internal/observe"
	"github.com/MrWong99/pointread/internal/resilience"
	"github.com/MrWong99/pointread/pkg/audio"
	"github.com/MrWong99/pointread/pkg/types"
)

// WarmupTitle is the title sent with the silent warm-up probe.
const WarmupTitle = "warmup"

// gatewayStatuses are the gateway-timeout class responses a sleeping backend
// produces while it boots.
var gatewayStatuses = []int{502, 504, 524}

// Outcome is the result of one scoring attempt as seen by a [RetryPolicy].
type Outcome struct {
	Attempt int

	// StatusCode is 0 when the request never got a response.
	StatusCode int

	// Payload is the decoded response after envelope unwrapping.
	Payload any

	// Err is the transport failure, if any.
	Err error
}

// Usable reports whether the attempt produced a real score.
func (o Outcome) Usable() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300 &&
		!IsColdStartEmptyScore(o.Payload) && HasValidScore(o.Payload)
}

// RetryPolicy is the cold-start retry schedule of ScoreRecording: one initial
// attempt plus one retry per entry of Delays.
type RetryPolicy struct {
	Delays []time.Duration

	// IsRetryable classifies a failed attempt. Nil means [IsRetryable].
	IsRetryable func(Outcome) bool
}

// DefaultRetryPolicy waits 1.5 s, 3 s and 5 s between four attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delays:      []time.Duration{1500 * time.Millisecond, 3 * time.Second, 5 * time.Second},
		IsRetryable: IsRetryable,
	}
}

// IsRetryable is the default retry classifier. Transport failures, gateway
// timeouts (502, 504, 524) and 2xx responses without a usable score are
// retryable; every other status is not.
func IsRetryable(o Outcome) bool {
	switch {
	case o.Err != nil:
		return true
	case slices.Contains(gatewayStatuses, o.StatusCode):
		return true
	case o.StatusCode >= 200 && o.StatusCode < 300:
		return !o.Usable()
	}
	return false
}

// IsColdStartEmptyScore reports whether a decoded response is a cold-start
// placeholder: nil, false, zero, a blank string, or an empty object or list.
func IsColdStartEmptyScore(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return strings.TrimSpace(x) == ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case float64:
		return x == 0
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

// HasValidScore reports whether v is an object whose pronunciation_accuracy
// parses as a finite integer. It is the same predicate as
// [types.ScoreResult.Accuracy].
func HasValidScore(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = types.ParseAccuracy(stringify(m["pronunciation_accuracy"]))
	return ok
}

type scoreRequest struct {
	Title       string `json:"title"`
	Base64Audio string `json:"base64Audio"`
	Language    string `json:"language"`
}

// ScoreRecording submits a recorded attempt for scoring.
//
// Attempts that the retry policy classifies as transient are retried after
// the policy's delays. Exhaustion returns a [*ColdStartExhaustedError]; any
// other non-2xx status returns a [*HardServiceError] at once. Cancelling ctx
// aborts a pending wait and returns ctx.Err().
func (c *Client) ScoreRecording(ctx context.Context, title, audioDataURL, language string) (*types.ScoreResult, error) {
	base := c.BaseURL(EndpointSTS)
	if base == "" {
		return nil, &ConfigurationError{Endpoint: EndpointSTS}
	}
	url := base + scorePath
	req := scoreRequest{Title: title, Base64Audio: audioDataURL, Language: language}

	ctx, span := observe.StartSpan(ctx, "scoring.ScoreRecording", trace.WithAttributes(
		attribute.String("title", title),
		attribute.Int("audio.bytes", len(audioDataURL)*3/4),
	))
	defer span.End()
	log := observe.LoggerFrom(ctx, c.log)

	policy := resilience.RetryPolicy{
		Delays: c.retry.Delays,
		IsRetryable: func(err error) bool {
			return errors.Is(err, ErrTransient)
		},
		Sleep: c.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.metrics.ColdStartRetries.Add(ctx, 1)
			log.Info("scoring backend not ready, retrying",
				"attempt", attempt, "delay", delay, "err", err)
		},
	}

	start := time.Now()
	res, err := resilience.Retry(ctx, policy, func(ctx context.Context, attempt int) (*types.ScoreResult, error) {
		return c.scoreAttempt(ctx, url, req, attempt)
	})
	c.metrics.ScoreDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		var exhausted *resilience.ExhaustedError
		if errors.As(err, &exhausted) {
			err = &ColdStartExhaustedError{Attempts: exhausted.Attempts, Last: exhausted.Last}
		}
		span.SetStatus(codes.Error, err.Error())
		log.Warn("scoring failed", "url", url, "err", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("accuracy", res.PronunciationAccuracy))
	return res, nil
}

// scoreAttempt performs one POST and classifies it.
func (c *Client) scoreAttempt(ctx context.Context, url string, req scoreRequest, attempt int) (*types.ScoreResult, error) {
	out := Outcome{Attempt: attempt}
	resp, err := c.post(ctx, url, req)
	if err != nil {
		out.Err = err
	} else {
		out.StatusCode = resp.StatusCode
		out.Payload = unwrapEnvelope(resp.Payload)
	}

	if out.Usable() {
		c.metrics.RecordScoreAttempt(ctx, observe.OutcomeScored)
		return toScoreResult(out.Payload.(map[string]any)), nil
	}

	if c.retry.IsRetryable(out) {
		terr := &TransientServiceError{Attempt: attempt, StatusCode: out.StatusCode, Err: out.Err}
		switch {
		case out.Err != nil:
			terr.Reason = "backend unreachable"
			c.metrics.RecordScoreAttempt(ctx, observe.OutcomeTransport)
		case slices.Contains(gatewayStatuses, out.StatusCode):
			terr.Reason = "gateway timeout"
			c.metrics.RecordScoreAttempt(ctx, observe.OutcomeStatus)
		default:
			terr.Reason = "empty or cold response"
			c.metrics.RecordScoreAttempt(ctx, observe.OutcomeCold)
		}
		return nil, terr
	}

	c.metrics.RecordScoreAttempt(ctx, observe.OutcomeHard)
	switch {
	case out.Err != nil:
		return nil, out.Err
	case resp.ok():
		// A custom policy declined to retry an unusable 2xx.
		return nil, &ColdStartExhaustedError{Attempts: attempt, Last: fmt.Errorf("%w: no usable score", ErrMalformedResponse)}
	default:
		return nil, resp.hardError(url)
	}
}

// Warmup sends a silent WAV of the given length through ScoreRecording to
// wake a sleeping backend. Whatever comes back is discarded; only the error
// is reported.
func (c *Client) Warmup(ctx context.Context, duration float64, sampleRate int, language string) error {
	_, err := c.ScoreRecording(ctx, WarmupTitle, audio.SilentDataURL(duration, sampleRate), language)
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.metrics.RecordWarmup(ctx, result)
	return err
}

func toScoreResult(m map[string]any) *types.ScoreResult {
	return &types.ScoreResult{
		RealTranscript:          stringify(m["real_transcript"]),
		IPATranscript:           stringify(m["ipa_transcript"]),
		PronunciationAccuracy:   stringify(m["pronunciation_accuracy"]),
		RealTranscripts:         stringify(m["real_transcripts"]),
		MatchedTranscripts:      stringify(m["matched_transcripts"]),
		RealTranscriptsIPA:      stringify(m["real_transcripts_ipa"]),
		MatchedTranscriptsIPA:   stringify(m["matched_transcripts_ipa"]),
		PairAccuracyCategory:    stringify(m["pair_accuracy_category"]),
		StartTime:               stringify(m["start_time"]),
		EndTime:                 stringify(m["end_time"]),
		IsLetterCorrectAllWords: stringify(m["is_letter_correct_all_words"]),
	}
}

// stringify renders a decoded JSON value the way the backend's string fields
// are meant to be read. Lists are joined with commas.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ",")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
