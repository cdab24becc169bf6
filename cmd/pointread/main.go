// Command pointread is a console client for read-aloud pronunciation
// practice: it fetches a sentence, records an attempt from a WAV file and
// shows the per-letter score returned by the backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/pointread/internal/app"
	"github.com/MrWong99/pointread/internal/config"
	"github.com/MrWong99/pointread/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	envDir := flag.String("env-dir", ".", "directory holding .env and .env.local")
	input := flag.String("input", "", "WAV file replayed as the microphone (overrides capture.input_file)")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics, /healthz and /readyz on this address")
	noColor := flag.Bool("no-color", false, "disable coloured letters")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath, *envDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pointread: %v\n", err)
		return 1
	}
	if *input != "" {
		cfg.Capture.InputFile = *input
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "pointread"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(cfg,
		app.WithLogger(logger),
		app.WithMetrics(tel.Metrics),
		app.WithColor(!*noColor && isTerminal(os.Stdout)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pointread: %v\n", err)
		return 1
	}

	slog.Debug("pointread starting",
		"config", *configPath,
		"environment", cfg.Backend.Environment,
		"input", cfg.Capture.InputFile,
		"language", cfg.Practice.Language,
	)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", tel.Handler())
		mux.Handle("/", application.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer cancelRun()
		err := application.Run(runCtx, os.Stdin)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return 1
	}
	return 0
}

// loadConfig reads the YAML file (or defaults) and overlays the dotenv files
// and process environment.
func loadConfig(path, envDir string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
		}
		return nil, err
	}
	env, err := config.LoadEnv(envDir)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, env); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(level)}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
