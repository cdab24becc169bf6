// Package devserver is a local stand-in for the pronunciation backend. It
// serves the sample, scoring and speech endpoints with the same request and
// response shapes as the hosted services, including Lambda-style "body"
// envelopes and a simulated cold start, so the practice client can be run
// and tested without network access.
//
// Scores are simulated: the per-letter flags are derived deterministically
// from the submitted audio, and silent recordings score zero.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/pointread/internal/config"
	"github.com/MrWong99/pointread/internal/health"
	"github.com/MrWong99/pointread/internal/observe"
)

// maxBodyBytes bounds request bodies; recordings are sent inline as base64.
const maxBodyBytes = 32 << 20

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics sets the metrics instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRand sets the random source used to pick sentences.
func WithRand(r *rand.Rand) Option {
	return func(s *Server) { s.rng = r }
}

// WithBank replaces the built-in sentence bank.
func WithBank(b *Bank) Option {
	return func(s *Server) { s.bank = b }
}

// WithSleep replaces the latency sleep, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(s *Server) { s.sleep = fn }
}

// Server implements the backend endpoints. All methods are safe for
// concurrent use.
type Server struct {
	log     *slog.Logger
	metrics *observe.Metrics
	sleep   func(context.Context, time.Duration) error

	mu         sync.Mutex
	cfg        config.DevServerConfig
	bank       *Bank
	rng        *rand.Rand
	coldServed int
}

// New creates a Server for cfg.
func New(cfg config.DevServerConfig, opts ...Option) *Server {
	s := &Server{
		cfg: cfg,
		log: slog.Default(),
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.bank == nil {
		s.bank = DefaultBank()
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Apply updates the request handling settings. Changing the cold start
// count restarts the simulated cold start.
func (s *Server) Apply(cfg config.DevServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.ColdStartRequests != s.cfg.ColdStartRequests {
		s.coldServed = 0
	}
	s.cfg = cfg
	s.log.Info("devserver: settings applied",
		"cold_start_requests", cfg.ColdStartRequests,
		"envelope", cfg.Envelope,
		"latency", cfg.Latency,
	)
}

// SetBank replaces the sentence bank.
func (s *Server) SetBank(b *Bank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bank = b
	s.log.Info("devserver: sentence bank loaded", "sentences", b.Len(), "languages", b.Languages())
}

// BankSize returns the number of loaded sentences.
func (s *Server) BankSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank.Len()
}

func (s *Server) settings() config.DevServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Handler returns the HTTP handler with all routes, health probes and
// telemetry middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /getSample", s.handleSample)
	mux.HandleFunc("POST /GetAccuracyFromRecordedAudio", s.handleScore)
	mux.HandleFunc("POST /tts", s.handleTTS)
	mux.HandleFunc("POST /getAudioFromText", s.handleTTS)
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	h := health.New(health.NotEmpty("sentences", "sentence bank is empty", s.BankSize))
	h.Register(mux)

	return observe.Middleware(s.metrics,
		observe.WithAccessLogger(s.log),
		observe.WithRoutes(routes...),
	)(s.common(mux))
}

// routes are the served paths, used as metric labels.
var routes = []string{
	"/getSample", "/GetAccuracyFromRecordedAudio", "/tts", "/getAudioFromText", "/healthz", "/readyz",
}

// common sets CORS headers and enforces the API key.
func (s *Server) common(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		hdr.Set("Access-Control-Allow-Headers", "*")
		hdr.Set("Access-Control-Allow-Methods", "OPTIONS,POST,GET")

		if key := s.settings().APIKey; key != "" && r.Method == http.MethodPost && r.Header.Get("X-Api-Key") != key {
			writeError(w, http.StatusUnauthorized, "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("want a number, got %s", b)
		}
		n = json.Number(s)
	}
	v, err := strconv.Atoi(string(n))
	if err != nil {
		return fmt.Errorf("want an integer, got %q", n)
	}
	*f = flexInt(v)
	return nil
}

type sampleRequest struct {
	Category flexInt `json:"category"`
	Language string  `json:"language"`
}

type sampleResponse struct {
	RealTranscript        []string `json:"real_transcript"`
	IPATranscript         string   `json:"ipa_transcript"`
	TranscriptTranslation string   `json:"transcript_translation"`
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Category < 0 || req.Category > 3 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("category %d out of range", req.Category))
		return
	}

	s.mu.Lock()
	sent, err := s.bank.Pick(s.rng, req.Language, int(req.Category))
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.reply(w, sampleResponse{
		RealTranscript:        []string{sent.Text},
		IPATranscript:         sent.IPA,
		TranscriptTranslation: sent.Translation,
	})
}

// reply writes v as JSON, wrapped in a {"body": "<json>"} envelope when
// configured.
func (s *Server) reply(w http.ResponseWriter, v any) {
	if !s.settings().Envelope {
		writeJSON(w, http.StatusOK, v)
		return
	}
	inner, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{StatusCode: http.StatusOK, Body: string(inner)})
}

// envelope is the shape returned by Lambda proxy integrations.
type envelope struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
