// Package mock provides a test double for the scoring client used by the
// practice controller.
//
// Example:
//
//	c := &mock.Client{
//	    Samples:     []types.SampleSentence{{Text: "I like English"}},
//	    ScoreResult: &types.ScoreResult{PronunciationAccuracy: "90"},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/pointread/pkg/types"
)

// FetchSampleCall records a single invocation of FetchSample.
type FetchSampleCall struct {
	Category int
	Language string
}

// ScoreCall records a single invocation of ScoreRecording.
type ScoreCall struct {
	Title        string
	AudioDataURL string
	Language     string
}

// WarmupCall records a single invocation of Warmup.
type WarmupCall struct {
	Duration   float64
	SampleRate int
	Language   string
}

// Client is a programmable stand-in for *scoring.Client.
type Client struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Samples are returned by FetchSample in order; the last one repeats.
	Samples []types.SampleSentence

	// SampleErr, if non-nil, is returned by FetchSample.
	SampleErr error

	// ScoreResult and ScoreErr are returned by ScoreRecording unless
	// ScoreFunc is set.
	ScoreResult *types.ScoreResult
	ScoreErr    error

	// ScoreFunc, if set, handles ScoreRecording. It may block on ctx to
	// simulate a slow backend.
	ScoreFunc func(ctx context.Context, title, audioDataURL, language string) (*types.ScoreResult, error)

	// WarmupFunc, if set, handles Warmup. Otherwise Warmup returns WarmupErr.
	WarmupFunc func(ctx context.Context) error
	WarmupErr  error

	// SpeechResult and SpeechErr are returned by SynthesizeSpeech.
	SpeechResult []byte
	SpeechErr    error

	// --- Call records ---

	FetchSampleCalls []FetchSampleCall
	ScoreCalls       []ScoreCall
	WarmupCalls      []WarmupCall
	SpeechCalls      []string
}

// FetchSample implements the practice Scorer interface.
func (c *Client) FetchSample(_ context.Context, category int, language string) (types.SampleSentence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.FetchSampleCalls)
	c.FetchSampleCalls = append(c.FetchSampleCalls, FetchSampleCall{Category: category, Language: language})
	if c.SampleErr != nil {
		return types.SampleSentence{}, c.SampleErr
	}
	if len(c.Samples) == 0 {
		return types.SampleSentence{Text: "I like English"}, nil
	}
	return c.Samples[min(n, len(c.Samples)-1)], nil
}

// ScoreRecording implements the practice Scorer interface.
func (c *Client) ScoreRecording(ctx context.Context, title, audioDataURL, language string) (*types.ScoreResult, error) {
	c.mu.Lock()
	c.ScoreCalls = append(c.ScoreCalls, ScoreCall{Title: title, AudioDataURL: audioDataURL, Language: language})
	fn, res, err := c.ScoreFunc, c.ScoreResult, c.ScoreErr
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, title, audioDataURL, language)
	}
	return res, err
}

// Warmup implements the practice Scorer interface.
func (c *Client) Warmup(ctx context.Context, duration float64, sampleRate int, language string) error {
	c.mu.Lock()
	c.WarmupCalls = append(c.WarmupCalls, WarmupCall{Duration: duration, SampleRate: sampleRate, Language: language})
	fn, err := c.WarmupFunc, c.WarmupErr
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return err
}

// SynthesizeSpeech implements the practice Scorer interface.
func (c *Client) SynthesizeSpeech(_ context.Context, text string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SpeechCalls = append(c.SpeechCalls, text)
	return c.SpeechResult, c.SpeechErr
}

// Calls returns copies of the recorded calls.
func (c *Client) Calls() (samples []FetchSampleCall, scores []ScoreCall, warmups []WarmupCall, speech []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FetchSampleCall(nil), c.FetchSampleCalls...),
		append([]ScoreCall(nil), c.ScoreCalls...),
		append([]WarmupCall(nil), c.WarmupCalls...),
		append([]string(nil), c.SpeechCalls...)
}

// Reset clears all recorded calls.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FetchSampleCalls = nil
	c.ScoreCalls = nil
	c.WarmupCalls = nil
	c.SpeechCalls = nil
}
