// Command earshotd is the main entry point for the Earshot wake word server.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/earshot-io/earshot/internal/config"
	"github.com/earshot-io/earshot/internal/health"
	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/internal/pool"
	"github.com/earshot-io/earshot/internal/registry"
	"github.com/earshot-io/earshot/internal/server"
	"github.com/earshot-io/earshot/internal/session"
	"github.com/earshot-io/earshot/internal/wake/porcupine"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshotd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshotd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("earshot starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: server.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Keyword discovery ─────────────────────────────────────────────────────
	system := cfg.Wake.System
	if system == "" {
		system = registry.DefaultSystem()
	}
	reg, err := registry.Discover(cfg.Wake.DataDir, system)
	if err != nil {
		slog.Error("keyword discovery failed", "data_dir", cfg.Wake.DataDir, "system", system, "err", err)
		return 1
	}
	slog.Info("keywords discovered", "system", system, "count", reg.Len())

	// ── Engine and detector pool ──────────────────────────────────────────────
	engine := porcupine.NewEngine()
	poolOpts := []pool.Option{pool.WithMetrics(metrics)}
	if cfg.Wake.MaxIdleDetectors > 0 {
		poolOpts = append(poolOpts, pool.WithMaxIdle(cfg.Wake.MaxIdleDetectors))
	}
	detectors := pool.New(engine, reg, poolOpts...)
	defer func() {
		if err := detectors.Close(); err != nil {
			slog.Warn("detector pool close error", "err", err)
		}
	}()

	// ── Event server ──────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Defaults: session.Defaults{
			Keyword:     cfg.Wake.DefaultKeyword,
			Sensitivity: cfg.Wake.Sensitivity,
		},
	}, reg, detectors, metrics)
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	printStartupSummary(cfg, system, reg.Len())
	slog.Info("server ready — press Ctrl+C to shut down")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })

	// ── HTTP sidecar (WebSocket transport, health, metrics) ───────────────────
	if cfg.Server.HTTPAddr != "" {
		httpSrv := newSidecar(cfg, srv, reg, detectors, metrics)
		g.Go(func() error {
			slog.Info("http sidecar listening", "addr", cfg.Server.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http sidecar: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newSidecar assembles the HTTP server carrying the WebSocket event
// transport, Prometheus metrics, and health endpoints.
func newSidecar(cfg *config.Config, srv *server.Server, reg *registry.Registry, detectors *pool.Pool, metrics *observe.Metrics) *http.Server {
	checks := health.New(
		health.Checker{
			Name: "registry",
			Check: func(context.Context) error {
				if reg.Len() == 0 {
					return errors.New("no keywords discovered")
				}
				return nil
			},
		},
		health.Checker{
			Name: "engine",
			Check: func(ctx context.Context) error {
				// Constructing and parking a detector proves the native
				// engine loads, and warms the pool as a side effect.
				names := reg.Keywords()
				if len(names) == 0 {
					return errors.New("no keywords to probe with")
				}
				lease, err := detectors.Acquire(ctx, pool.Config{
					Names:       []string{names[0].Name},
					Sensitivity: cfg.Wake.Sensitivity,
				})
				if err != nil {
					return err
				}
				lease.Release()
				return nil
			},
		},
	)

	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", srv.WSHandler())

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, system string, keywords int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Earshot — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Engine", "porcupine1")
	printField("System", system)
	printField("Keywords", fmt.Sprintf("%d", keywords))
	printField("Default keyword", orNone(cfg.Wake.DefaultKeyword))
	printField("Sensitivity", fmt.Sprintf("%.2f", cfg.Wake.Sensitivity))
	printField("Listen addr", cfg.Server.ListenAddr)
	printField("HTTP addr", orNone(cfg.Server.HTTPAddr))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", name, value)
}

func orNone(s string) string {
	if s == "" {
		return "(not configured)"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
