// Package scoring is the client for the remote pronunciation backend. It
// fetches practice sentences, scores recorded attempts and synthesises
// reference audio.
//
// All three operations share one transport convention: a JSON POST body,
// Content-Type application/json, and an X-Api-Key header when a key is
// configured. Responses are read as text and decoded leniently because the
// backend sometimes double-encodes its payload inside a "body" string.
//
// Scoring is the only operation that retries. A sleeping backend answers with
// gateway timeouts or empty placeholders until it has loaded its models, so
// [Client.ScoreRecording] follows a fixed [RetryPolicy] before giving up with
// a [*ColdStartExhaustedError].
//
// Typical usage:
//
//	c := scoring.New(scoring.ClientConfig{
//	    SampleBaseURL: "https://api.example.com",
//	    STSBaseURL:    "https://api.example.com",
//	    APIKey:        key,
//	})
//	s, err := c.FetchSample(ctx, 1, "en")
//	res, err := c.ScoreRecording(ctx, s.Text, attempt.DataURL, "en")
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/pointread/internal/observe"
	"github.com/MrWong99/pointread/internal/resilience"
)

const (
	// DevFallbackURL is the base used in development when an endpoint has no
	// configured URL.
	DevFallbackURL = "http://127.0.0.1:3000"

	// FallbackSentence is returned by FetchSample in development when no
	// sample backend can be reached.
	FallbackSentence = "I like English"

	defaultTimeout = 90 * time.Second

	samplePath = "/getSample"
	scorePath  = "/GetAccuracyFromRecordedAudio"
	ttsPath    = "/tts"
	legacyPath = "/getAudioFromText"

	// maxErrorBody bounds the response excerpt kept in HardServiceError.
	maxErrorBody = 512
)

// Endpoint names one of the three backend services.
type Endpoint string

const (
	EndpointSample Endpoint = "sample"
	EndpointSTS    Endpoint = "sts"
	EndpointTTS    Endpoint = "tts"
)

// ClientConfig carries the backend configuration. Base URLs are independent;
// any of them may be empty.
type ClientConfig struct {
	SampleBaseURL string
	STSBaseURL    string
	TTSBaseURL    string
	APIKey        string

	// IsDevelopment enables the local dev fallback URL and the offline
	// fallback sentence.
	IsDevelopment bool
}

// Client talks to the pronunciation backend. It is safe for concurrent use.
type Client struct {
	cfg         ClientConfig
	devFallback string
	httpClient  *http.Client
	retry       RetryPolicy
	sleep       resilience.SleepFunc
	metrics     *observe.Metrics
	log         *slog.Logger
	breaker     resilience.CircuitBreakerConfig

	tts *resilience.FallbackGroup[string]
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (90 s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces [DefaultRetryPolicy] for ScoreRecording.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithSleep replaces the wait between scoring attempts. Tests use it to
// record delays without waiting.
func WithSleep(fn resilience.SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithMetrics records instruments on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithDevFallbackURL overrides [DevFallbackURL]. An empty string disables the
// dev fallback URL entirely.
func WithDevFallbackURL(u string) Option {
	return func(c *Client) { c.devFallback = u }
}

// WithCircuitBreaker tunes the breakers guarding the TTS candidates.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.breaker = cfg }
}

// New creates a [Client]. It never fails: missing configuration is reported
// per operation as a [*ConfigurationError].
func New(cfg ClientConfig, opts ...Option) *Client {
	c := &Client{
		cfg:         cfg,
		devFallback: DevFallbackURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		retry:       DefaultRetryPolicy(),
		sleep:       resilience.Sleep,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.retry.IsRetryable == nil {
		c.retry.IsRetryable = IsRetryable
	}
	if c.breaker.Logger == nil {
		c.breaker.Logger = c.log
	}

	if base := c.BaseURL(EndpointTTS); base != "" {
		primary, secondary := ttsCandidates(base)
		c.tts = resilience.NewFallbackGroup(primary, primary, resilience.FallbackConfig{CircuitBreaker: c.breaker})
		c.tts.AddFallback(secondary, secondary)
	}
	return c
}

// BaseURL resolves the base URL of e: the configured value, else the dev
// fallback in development, else "". Trailing slashes are removed.
func (c *Client) BaseURL(e Endpoint) string {
	var base string
	switch e {
	case EndpointSample:
		base = c.cfg.SampleBaseURL
	case EndpointSTS:
		base = c.cfg.STSBaseURL
	case EndpointTTS:
		base = c.cfg.TTSBaseURL
	}
	if base == "" && c.cfg.IsDevelopment {
		base = c.devFallback
	}
	return strings.TrimRight(base, "/")
}

// response is a read and leniently decoded HTTP response.
type response struct {
	StatusCode int
	Status     string
	Text       string

	// Payload is the decoded JSON value, or Text itself when the body is not
	// JSON.
	Payload any
}

func (r *response) ok() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

func (r *response) hardError(url string) *HardServiceError {
	status := r.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode))
	}
	body := r.Text
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &HardServiceError{URL: url, StatusCode: r.StatusCode, Status: status, Body: body}
}

// post sends body as JSON to url and returns the decoded response. Only
// transport failures are returned as errors; status handling is up to the
// caller.
func (c *Client) post(ctx context.Context, url string, body any) (*response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("scoring: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("scoring: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring: POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scoring: read %s response: %w", url, err)
	}
	return &response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Text:       string(raw),
		Payload:    decodeFlexible(raw),
	}, nil
}

// decodeFlexible parses raw as JSON, keeping numbers as json.Number. Bodies
// that are not JSON come back as the raw string.
func decodeFlexible(raw []byte) any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	if dec.More() {
		return string(raw)
	}
	return v
}

// unwrapEnvelope removes one level of {"body": "<json>"} wrapping. An empty
// or unparsable body string yields an empty object.
func unwrapEnvelope(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	body, ok := m["body"].(string)
	if !ok {
		return v
	}
	if strings.TrimSpace(body) == "" {
		return map[string]any{}
	}
	inner := decodeFlexible([]byte(body))
	if _, isString := inner.(string); isString {
		// Not JSON at all.
		return map[string]any{}
	}
	return inner
}
