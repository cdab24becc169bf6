// Command pointread-devserver runs a local stand-in for the pronunciation
// backend on :3000, the address the practice client falls back to in
// development.
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

	"github.com/MrWong99/pointread/internal/config"
	"github.com/MrWong99/pointread/internal/devserver"
	"github.com/MrWong99/pointread/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional, reloaded on change)")
	listen := flag.String("listen", "", "listen address (overrides devserver.listen_addr)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pointread-devserver: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.DevServer.ListenAddr = *listen
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "pointread-devserver"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(sctx)
	}()

	// ── Sentence bank ─────────────────────────────────────────────────────────
	bank, err := loadBank(cfg.DevServer.SentencesFile)
	if err != nil {
		slog.Error("failed to load sentences", "err", err)
		return 1
	}
	srv := devserver.New(cfg.DevServer,
		devserver.WithLogger(logger),
		devserver.WithMetrics(tel.Metrics),
		devserver.WithBank(bank),
	)

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, func(_, next *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
			}
			if d.SentencesChanged {
				b, err := loadBank(next.DevServer.SentencesFile)
				if err != nil {
					slog.Warn("sentence reload failed, keeping the current bank", "err", err)
				} else {
					srv.SetBank(b)
				}
			}
			if d.SimulationChanged {
				srv.Apply(next.DevServer)
			}
			for _, field := range d.RestartRequired {
				slog.Warn("config change requires a restart", "field", field)
			}
		}, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
		defer w.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", tel.Handler())
	mux.Handle("/", srv.Handler())
	httpSrv := &http.Server{Addr: cfg.DevServer.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("devserver listening",
			"addr", cfg.DevServer.ListenAddr,
			"sentences", srv.BankSize(),
			"cold_start_requests", cfg.DevServer.ColdStartRequests,
			"envelope", cfg.DevServer.Envelope,
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping...")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("devserver error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func loadBank(path string) (*devserver.Bank, error) {
	if path == "" {
		return devserver.DefaultBank(), nil
	}
	return devserver.LoadBankFile(path)
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
