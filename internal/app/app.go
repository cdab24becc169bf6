// Package app wires the pointread practice client into a running
// application.
//
// The App struct owns the full lifecycle: New creates and connects the
// scoring client, the capture session and the practice controller, Run
// drives the console loop, and Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithScorer,
// WithDevice, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/pointread/internal/config"
	"github.com/MrWong99/pointread/internal/health"
	"github.com/MrWong99/pointread/internal/observe"
	"github.com/MrWong99/pointread/internal/practice"
	"github.com/MrWong99/pointread/pkg/capture"
	"github.com/MrWong99/pointread/pkg/capture/wavfile"
	"github.com/MrWong99/pointread/pkg/scoring"
)

// ErrNoInput is returned by New when neither an input file nor a device is
// configured.
var ErrNoInput = errors.New("app: no capture input configured")

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics
	out     io.Writer
	color   bool

	// Subsystems, initialised in New and torn down in Shutdown.
	scorer  practice.Scorer
	device  capture.Device
	session *capture.Session
	ctrl    *practice.Controller
	player  practice.Player
	speaker practice.Speaker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithScorer injects a scorer instead of creating a scoring client.
func WithScorer(s practice.Scorer) Option {
	return func(a *App) { a.scorer = s }
}

// WithDevice injects a capture device instead of replaying the input file.
func WithDevice(d capture.Device) Option {
	return func(a *App) { a.device = d }
}

// WithPlayer injects the sample audio player. Default: a [FilePlayer] in
// the configured output directory.
func WithPlayer(p practice.Player) Option {
	return func(a *App) { a.player = p }
}

// WithOutput sets where the console is rendered. Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithColor enables ANSI colouring of scored letters.
func WithColor(on bool) Option {
	return func(a *App) { a.color = on }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetrics sets the metrics instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
		out: os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Scoring client ────────────────────────────────────────────────
	if a.scorer == nil {
		sopts := []scoring.Option{
			scoring.WithHTTPClient(&http.Client{
				Timeout:   cfg.Backend.Timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}),
			scoring.WithRetryPolicy(cfg.RetryPolicy()),
			scoring.WithMetrics(a.metrics),
			scoring.WithLogger(a.log),
		}
		if u := cfg.Backend.DevFallbackURL; u != "" {
			sopts = append(sopts, scoring.WithDevFallbackURL(u))
		}
		a.scorer = scoring.New(cfg.ClientConfig(), sopts...)
	}

	// ── 2. Capture ───────────────────────────────────────────────────────
	if a.device == nil {
		if cfg.Capture.InputFile == "" {
			return nil, fmt.Errorf("%w: set capture.input_file", ErrNoInput)
		}
		a.device = wavfile.New(cfg.Capture.InputFile,
			wavfile.WithFrameDuration(cfg.Capture.FrameDuration),
			wavfile.WithRealtime(!cfg.Capture.NoRealtime),
		)
	}
	a.session = capture.New(a.device,
		capture.WithSampleRate(cfg.Capture.SampleRate),
		capture.WithLogger(a.log),
		capture.WithMetrics(a.metrics),
	)

	// ── 3. Playback ──────────────────────────────────────────────────────
	if a.player == nil {
		a.player = NewFilePlayer(cfg.Practice.OutputDir, a.log)
	}
	a.speaker = &ConsoleSpeaker{W: a.out}

	// ── 4. Practice controller ───────────────────────────────────────────
	popts := []practice.Option{
		practice.WithLanguage(cfg.Practice.Language),
		practice.WithCategory(cfg.Practice.Category),
		practice.WithPlayer(a.player),
		practice.WithSpeaker(a.speaker),
		practice.WithLogger(a.log),
		practice.WithMetrics(a.metrics),
		practice.WithOnChange(func(v practice.View) {
			a.log.Debug("practice state", "state", v.State, "warming_up", v.WarmingUp, "failure", v.Failure)
		}),
	}
	if !cfg.Practice.Warmup.Disabled {
		popts = append(popts, practice.WithWarmup(cfg.Practice.Warmup.Duration, cfg.Practice.Warmup.SampleRate))
	}
	a.ctrl = practice.New(a.scorer, a.session, popts...)
	a.closers = append(a.closers, a.ctrl.Close)

	return a, nil
}

// Controller returns the practice controller.
func (a *App) Controller() *practice.Controller { return a.ctrl }

// Handler serves readiness probes for the practice client. Readiness
// requires a configured scoring endpoint.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	h := health.New(health.NotEmpty("scoring", "scoring endpoint not configured", func() int {
		if c, ok := a.scorer.(*scoring.Client); ok {
			return len(c.BaseURL(scoring.EndpointSTS))
		}
		return 1
	}))
	h.Register(mux)
	return mux
}

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
