package devserver_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/pointread/internal/config"
	"github.com/MrWong99/pointread/internal/devserver"
	"github.com/MrWong99/pointread/pkg/audio"
	"github.com/MrWong99/pointread/pkg/scoring"
	"github.com/MrWong99/pointread/pkg/types"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newServer(t *testing.T, cfg config.DevServerConfig, opts ...devserver.Option) (*devserver.Server, *httptest.Server) {
	t.Helper()
	opts = append([]devserver.Option{
		devserver.WithRand(rand.New(rand.NewPCG(1, 2))),
		devserver.WithSleep(noSleep),
	}, opts...)
	s := devserver.New(cfg, opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, url string, body any, hdr ...string) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, raw
}

// tone returns a 16 kHz mono WAV data URL of a loud 440 Hz sine.
func tone(seconds float64) string {
	n := int(seconds * 16000)
	pcm := make([]byte, n*2)
	for i := range n {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.DataURL(audio.MIMETypeWAV, audio.EncodePCM16WAV(pcm, 16000, 1))
}

func TestSample(t *testing.T) {
	_, ts := newServer(t, config.DevServerConfig{})

	for _, cat := range []int{0, 1, 2, 3} {
		resp, raw := post(t, ts.URL+"/getSample", map[string]any{"category": cat, "language": "en"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("category %d: status = %d, body %s", cat, resp.StatusCode, raw)
		}
		var got struct {
			RealTranscript []string `json:"real_transcript"`
		}
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatal(err)
		}
		if len(got.RealTranscript) != 1 {
			t.Fatalf("real_transcript = %v, want one sentence", got.RealTranscript)
		}
		if cat != 0 && devserver.Category(got.RealTranscript[0]) != cat {
			t.Errorf("category %d: got %q (category %d)", cat, got.RealTranscript[0], devserver.Category(got.RealTranscript[0]))
		}
	}

	t.Run("string category", func(t *testing.T) {
		resp, raw := post(t, ts.URL+"/getSample", map[string]any{"category": "1", "language": "en"})
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, body %s", resp.StatusCode, raw)
		}
	})
	t.Run("out of range", func(t *testing.T) {
		resp, _ := post(t, ts.URL+"/getSample", map[string]any{"category": 7, "language": "en"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
	t.Run("unknown language", func(t *testing.T) {
		resp, _ := post(t, ts.URL+"/getSample", map[string]any{"category": 0, "language": "xx"})
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestEnvelope(t *testing.T) {
	_, ts := newServer(t, config.DevServerConfig{Envelope: true})

	resp, raw := post(t, ts.URL+"/getSample", map[string]any{"category": 0, "language": "de"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var env struct {
		StatusCode int    `json:"statusCode"`
		Body       string `json:"body"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}
	if env.StatusCode != 200 || !strings.Contains(env.Body, "real_transcript") {
		t.Errorf("envelope = %+v", env)
	}
}

func TestCommonHeaders(t *testing.T) {
	_, ts := newServer(t, config.DevServerConfig{APIKey: "secret"})

	t.Run("missing key", func(t *testing.T) {
		resp, _ := post(t, ts.URL+"/getSample", map[string]any{"language": "en"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
			t.Error("CORS header missing on rejected request")
		}
	})
	t.Run("valid key", func(t *testing.T) {
		resp, _ := post(t, ts.URL+"/getSample", map[string]any{"language": "en"}, "X-Api-Key", "secret", "X-Request-Id", "abc")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		if got := resp.Header.Get("X-Request-Id"); got != "abc" {
			t.Errorf("X-Request-Id = %q, want echoed", got)
		}
	})
	t.Run("preflight", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/GetAccuracyFromRecordedAudio", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("status = %d, want 204", resp.StatusCode)
		}
	})
}

func TestHealth(t *testing.T) {
	empty, err := devserver.LoadBank(strings.NewReader("en: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	s, ts := newServer(t, config.DevServerConfig{}, devserver.WithBank(empty))

	get := func() int {
		resp, err := http.Get(ts.URL + "/readyz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if got := get(); got != http.StatusServiceUnavailable {
		t.Errorf("empty bank: /readyz = %d, want 503", got)
	}
	s.SetBank(devserver.DefaultBank())
	if got := get(); got != http.StatusOK {
		t.Errorf("default bank: /readyz = %d, want 200", got)
	}
}

func TestScore(t *testing.T) {
	_, ts := newServer(t, config.DevServerConfig{})

	score := func(t *testing.T, title, dataURL string) *types.ScoreResult {
		t.Helper()
		resp, raw := post(t, ts.URL+"/GetAccuracyFromRecordedAudio", map[string]string{
			"title": title, "base64Audio": dataURL, "language": "en",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
		}
		var res types.ScoreResult
		if err := json.Unmarshal(raw, &res); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		return &res
	}

	t.Run("speech", func(t *testing.T) {
		res := score(t, "I like English", tone(1.5))
		acc, ok := res.Accuracy()
		if !ok || acc <= 0 || acc > 100 {
			t.Errorf("accuracy = %q", res.PronunciationAccuracy)
		}
		flags := strings.Fields(res.IsLetterCorrectAllWords)
		if len(flags) != 3 || len(flags[0]) != 1 || len(flags[1]) != 4 || len(flags[2]) != 7 {
			t.Errorf("flags = %q, want one per letter", res.IsLetterCorrectAllWords)
		}
		if res.IPATranscript == "" {
			t.Error("IPA missing for a bank sentence")
		}
		timings := res.WordTimings()
		if len(timings) != 3 || timings[2].End != 1500*time.Millisecond {
			t.Errorf("timings = %v", timings)
		}
		if got := len(res.PairCategories()); got != 3 {
			t.Errorf("pair categories = %d, want 3", got)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a := score(t, "I like English", tone(1))
		b := score(t, "I like English", tone(1))
		if *a != *b {
			t.Errorf("same recording scored differently:\n%+v\n%+v", a, b)
		}
	})

	t.Run("silence", func(t *testing.T) {
		res := score(t, "I like English", audio.SilentDataURL(1, 16000))
		if res.PronunciationAccuracy != "0" {
			t.Errorf("accuracy = %q, want 0", res.PronunciationAccuracy)
		}
		if res.IsLetterCorrectAllWords != "0 0000 0000000" {
			t.Errorf("flags = %q", res.IsLetterCorrectAllWords)
		}
		if res.MatchedTranscripts != "- - -" {
			t.Errorf("matched = %q", res.MatchedTranscripts)
		}
	})

	t.Run("unreadable audio", func(t *testing.T) {
		resp, raw := post(t, ts.URL+"/GetAccuracyFromRecordedAudio", map[string]string{
			"title": "x", "base64Audio": "not a data url", "language": "en",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var env struct {
			Body *string `json:"body"`
		}
		if err := json.Unmarshal(raw, &env); err != nil || env.Body == nil || *env.Body != "" {
			t.Errorf("response = %s, want empty body envelope", raw)
		}
	})
}

func TestScoringClientRoundTrip(t *testing.T) {
	s, ts := newServer(t, config.DevServerConfig{ColdStartRequests: 2, Envelope: true})

	var waits []time.Duration
	client := scoring.New(scoring.ClientConfig{
		SampleBaseURL: ts.URL,
		STSBaseURL:    ts.URL,
		TTSBaseURL:    ts.URL,
	}, scoring.WithSleep(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))
	ctx := context.Background()

	sent, err := client.FetchSample(ctx, scoring.CategoryShort, "en")
	if err != nil {
		t.Fatalf("FetchSample: %v", err)
	}
	if devserver.Category(sent.Text) != 1 {
		t.Errorf("sample %q is not short", sent.Text)
	}

	res, err := client.ScoreRecording(ctx, sent.Text, tone(1), "en")
	if err != nil {
		t.Fatalf("ScoreRecording: %v", err)
	}
	if _, ok := res.Accuracy(); !ok {
		t.Errorf("accuracy = %q", res.PronunciationAccuracy)
	}
	if len(waits) != 2 {
		t.Errorf("retries = %d, want 2 cold responses retried", len(waits))
	}

	t.Run("cold start exhausted", func(t *testing.T) {
		cfg := config.DevServerConfig{ColdStartRequests: 10, Envelope: true}
		s.Apply(cfg)
		_, err := client.ScoreRecording(ctx, sent.Text, tone(1), "en")
		if !errors.Is(err, scoring.ErrColdStart) {
			t.Errorf("err = %v, want ErrColdStart", err)
		}
	})

	t.Run("speech", func(t *testing.T) {
		wav, err := client.SynthesizeSpeech(ctx, "hello there")
		if err != nil {
			t.Fatalf("SynthesizeSpeech: %v", err)
		}
		info, err := audio.ParseWAV(wav)
		if err != nil {
			t.Fatal(err)
		}
		if info.SampleRate != 16000 || info.Channels != 1 || info.DataSize == 0 {
			t.Errorf("wav = %+v", info)
		}
	})
}

func TestTTS(t *testing.T) {
	_, ts := newServer(t, config.DevServerConfig{})

	for _, path := range []string{"/tts", "/getAudioFromText"} {
		resp, raw := post(t, ts.URL+path, map[string]string{"value": "I like English"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", path, resp.StatusCode)
		}
		var got struct {
			WavBase64 string `json:"wavBase64"`
		}
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatal(err)
		}
		wav, err := base64.StdEncoding.DecodeString(got.WavBase64)
		if err != nil {
			t.Fatal(err)
		}
		info, err := audio.ParseWAV(wav)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		// Three words of 250 ms tone plus 50 ms gap each.
		f := audio.Format{SampleRate: info.SampleRate, Channels: info.Channels}
		if d := f.Duration(info.DataSize); d != 900*time.Millisecond {
			t.Errorf("%s: duration = %v, want 900ms", path, d)
		}
	}

	resp, _ := post(t, ts.URL+"/tts", map[string]string{"value": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty text: status = %d, want 400", resp.StatusCode)
	}
}

func TestLatency(t *testing.T) {
	var slept []time.Duration
	_, ts := newServer(t, config.DevServerConfig{Latency: 250 * time.Millisecond},
		devserver.WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}))

	post(t, ts.URL+"/GetAccuracyFromRecordedAudio", map[string]string{
		"title": "hi", "base64Audio": tone(0.2), "language": "en",
	})
	if len(slept) != 1 || slept[0] != 250*time.Millisecond {
		t.Errorf("slept = %v, want [250ms]", slept)
	}
}
