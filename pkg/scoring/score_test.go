package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/pointread/pkg/audio"
)

var defaultDelays = []time.Duration{1500 * time.Millisecond, 3 * time.Second, 5 * time.Second}

func newScoreClient(t *testing.T, url string, sleep *recordingSleep, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithSleep(sleep.Sleep)}, opts...)
	return New(ClientConfig{STSBaseURL: url}, opts...)
}

func TestIsColdStartEmptyScore(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"blank string", "  \n", true},
		{"empty object", map[string]any{}, true},
		{"empty list", []any{}, true},
		{"false", false, true},
		{"zero", json.Number("0"), true},
		{"score", map[string]any{"pronunciation_accuracy": "82"}, false},
		{"text", "warming up", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsColdStartEmptyScore(tt.in); got != tt.want {
				t.Errorf("IsColdStartEmptyScore(%#v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestHasValidScore(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"string int", map[string]any{"pronunciation_accuracy": "82"}, true},
		{"number", map[string]any{"pronunciation_accuracy": json.Number("75")}, true},
		{"leading int", map[string]any{"pronunciation_accuracy": "82.7"}, true},
		{"empty", map[string]any{"pronunciation_accuracy": ""}, false},
		{"missing", map[string]any{"real_transcript": "x"}, false},
		{"nan", map[string]any{"pronunciation_accuracy": "NaN"}, false},
		{"not an object", "82", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasValidScore(tt.in); got != tt.want {
				t.Errorf("HasValidScore(%#v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		o    Outcome
		want bool
	}{
		{"transport", Outcome{Err: errors.New("connection refused")}, true},
		{"502", Outcome{StatusCode: 502}, true},
		{"504", Outcome{StatusCode: 504}, true},
		{"524", Outcome{StatusCode: 524}, true},
		{"500", Outcome{StatusCode: 500}, false},
		{"404", Outcome{StatusCode: 404}, false},
		{"cold 200", Outcome{StatusCode: 200, Payload: map[string]any{}}, true},
		{"200 without score", Outcome{StatusCode: 200, Payload: map[string]any{"real_transcript": "x"}}, true},
		{"usable 200", Outcome{StatusCode: 200, Payload: map[string]any{"pronunciation_accuracy": "1"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.o); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreRecording_ColdThenScore(t *testing.T) {
	fb, srv := newFakeBackend(t, func(n int, w http.ResponseWriter, _ *http.Request) {
		switch n {
		case 0:
			writeJSON(w, http.StatusOK, map[string]any{})
		case 1:
			writeJSON(w, http.StatusOK, map[string]any{"body": ""})
		case 2:
			w.WriteHeader(http.StatusGatewayTimeout)
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"pronunciation_accuracy":      "88",
				"is_letter_correct_all_words": "1 1111 1111111",
				"real_transcript":             "I like English",
			})
		}
	})
	sleep := &recordingSleep{}
	c := newScoreClient(t, srv.URL, sleep)

	res, err := c.ScoreRecording(context.Background(), "I like English", "data:audio/wav;base64,AAAA", "en")
	if err != nil {
		t.Fatalf("ScoreRecording: %v", err)
	}
	if acc, ok := res.Accuracy(); !ok || acc != 88 {
		t.Errorf("Accuracy = (%d, %v), want (88, true)", acc, ok)
	}
	if res.IsLetterCorrectAllWords != "1 1111 1111111" {
		t.Errorf("flags = %q", res.IsLetterCorrectAllWords)
	}

	reqs := fb.Requests()
	if len(reqs) != 4 {
		t.Fatalf("requests = %d, want 4", len(reqs))
	}
	if !slices.Equal(sleep.Delays(), defaultDelays) {
		t.Errorf("delays = %v, want %v", sleep.Delays(), defaultDelays)
	}
	first := reqs[0]
	if first.Path != "/GetAccuracyFromRecordedAudio" {
		t.Errorf("path = %q", first.Path)
	}
	if first.Body["title"] != "I like English" || first.Body["base64Audio"] != "data:audio/wav;base64,AAAA" || first.Body["language"] != "en" {
		t.Errorf("body = %v", first.Body)
	}
}

func TestScoreRecording_AllCold(t *testing.T) {
	responses := []struct {
		name    string
		respond func(w http.ResponseWriter)
	}{
		{"empty object", func(w http.ResponseWriter) { writeJSON(w, http.StatusOK, map[string]any{}) }},
		{"empty string body", func(w http.ResponseWriter) { w.WriteHeader(http.StatusOK) }},
		{"no accuracy", func(w http.ResponseWriter) { writeJSON(w, http.StatusOK, map[string]any{"real_transcript": "x"}) }},
		{"bad gateway", func(w http.ResponseWriter) { w.WriteHeader(http.StatusBadGateway) }},
		{"cloudflare 524", func(w http.ResponseWriter) { w.WriteHeader(524) }},
		{"malformed envelope", func(w http.ResponseWriter) { writeJSON(w, http.StatusOK, map[string]any{"body": "{oops"}) }},
	}
	for _, tt := range responses {
		t.Run(tt.name, func(t *testing.T) {
			fb, srv := newFakeBackend(t, func(_ int, w http.ResponseWriter, _ *http.Request) { tt.respond(w) })
			sleep := &recordingSleep{}
			c := newScoreClient(t, srv.URL, sleep)

			_, err := c.ScoreRecording(context.Background(), "t", "data:audio/wav;base64,", "en")
			var cold *ColdStartExhaustedError
			if !errors.As(err, &cold) {
				t.Fatalf("err = %v, want *ColdStartExhaustedError", err)
			}
			if cold.Attempts != 4 {
				t.Errorf("Attempts = %d, want 4", cold.Attempts)
			}
			if !errors.Is(err, ErrColdStart) || !errors.Is(err, ErrTransient) {
				t.Error("error should match ErrColdStart and wrap ErrTransient")
			}
			if n := len(fb.Requests()); n != 4 {
				t.Errorf("requests = %d, want 4", n)
			}
			if got := sleep.Delays(); len(got) != 3 {
				t.Errorf("sleeps = %v, want 3 (none after final attempt)", got)
			}
		})
	}
}

func TestScoreRecording_HardErrorNoRetry(t *testing.T) {
	fb, srv := newFakeBackend(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	})
	sleep := &recordingSleep{}
	c := newScoreClient(t, srv.URL, sleep)

	_, err := c.ScoreRecording(context.Background(), "t", "data:audio/wav;base64,", "en")
	var herr *HardServiceError
	if !errors.As(err, &herr) {
		t.Fatalf("err = %v, want *HardServiceError", err)
	}
	if herr.StatusCode != 400 || !strings.Contains(herr.Status, "400") {
		t.Errorf("HardServiceError = %+v", herr)
	}
	if !strings.Contains(herr.Body, "bad audio") {
		t.Errorf("Body = %q, want excerpt of response", herr.Body)
	}
	if n := len(fb.Requests()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
	if len(sleep.Delays()) != 0 {
		t.Error("hard errors must not sleep")
	}
}

func TestScoreRecording_EnvelopeUnwrapped(t *testing.T) {
	_, srv := newFakeBackend(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"body": `{"pronunciation_accuracy":"75"}`})
	})
	c := newScoreClient(t, srv.URL, &recordingSleep{})

	res, err := c.ScoreRecording(context.Background(), "t", "data:audio/wav;base64,", "en")
	if err != nil {
		t.Fatalf("ScoreRecording: %v", err)
	}
	if acc, ok := res.Accuracy(); !ok || acc != 75 {
		t.Errorf("Accuracy = (%d, %v), want (75, true)", acc, ok)
	}
}

func TestScoreRecording_NumericFields(t *testing.T) {
	_, srv := newFakeBackend(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pronunciation_accuracy": 64, "start_time": "0.1 0.5", "end_time": "0.4 0.9"}`))
	})
	c := newScoreClient(t, srv.URL, &recordingSleep{})

	res, err := c.ScoreRecording(context.Background(), "t", "data:audio/wav;base64,", "en")
	if err != nil {
		t.Fatalf("ScoreRecording: %v", err)
	}
	if res.PronunciationAccuracy != "64" {
		t.Errorf("PronunciationAccuracy = %q, want \"64\"", res.PronunciationAccuracy)
	}
	if timings := res.WordTimings(); len(timings) != 2 || timings[1].End != 900*time.Millisecond {
		t.Errorf("WordTimings = %v", timings)
	}
}

func TestScoreRecording_TransportErrorRetried(t *testing.T) {
	sleep := &recordingSleep{}
	c := newScoreClient(t, "http://127.0.0.1:1", sleep)

	_, err := c.ScoreRecording(context.Background(), "t", "data:audio/wav;base64,", "en")
	if !errors.Is(err, ErrColdStart) {
		t.Fatalf("err = %v, want ErrColdStart", err)
	}
	if len(sleep.Delays()) != 3 {
		t.Errorf("sleeps = %d, want 3", len(sleep.Delays()))
	}
}

func TestScoreRecording_CancelDuringBackoff(t *testing.T) {
	_, srv := newFakeBackend(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	c := New(ClientConfig{STSBaseURL: srv.URL}, WithRetryPolicy(RetryPolicy{Delays: []time.Duration{time.Hour}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.ScoreRecording(ctx, "t", "data:audio/wav;base64,", "en")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ScoreRecording did not return after cancel")
	}
}

func TestScoreRecording_CustomPolicy(t *testing.T) {
	fb, srv := newFakeBackend(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	sleep := &recordingSleep{}
	c := newScoreClient(t, srv.URL, sleep, WithRetryPolicy(RetryPolicy{
		Delays: []time.Duration{time.Second},
		IsRetryable: func(o Outcome) bool {
			return o.StatusCode == http.StatusServiceUnavailable || IsRetryable(o)
		},
	}))

	_, err := c.ScoreRecording(context.Background(), "t", "data:audio/wav;base64,", "en")
	if !errors.Is(err, ErrColdStart) {
		t.Fatalf("err = %v, want ErrColdStart", err)
	}
	if n := len(fb.Requests()); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestScoreRecording_Unconfigured(t *testing.T) {
	_, err := New(ClientConfig{}).ScoreRecording(context.Background(), "t", "", "en")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestWarmup(t *testing.T) {
	fb, srv := newFakeBackend(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"pronunciation_accuracy": "3"})
	})
	c := newScoreClient(t, srv.URL, &recordingSleep{})

	if err := c.Warmup(context.Background(), 0.3, 48000, "en"); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	req := fb.Requests()[0]
	if req.Body["title"] != WarmupTitle {
		t.Errorf("title = %v, want %q", req.Body["title"], WarmupTitle)
	}
	if req.Body["base64Audio"] != audio.SilentDataURL(0.3, 48000) {
		t.Error("warm-up payload is not the silent WAV data URL")
	}
}
