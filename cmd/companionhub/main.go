// Command companionhub serves the companion and adventure tools over MCP.
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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/companionhub/internal/artwork"
	"github.com/MrWong99/companionhub/internal/config"
	"github.com/MrWong99/companionhub/internal/content"
	"github.com/MrWong99/companionhub/internal/health"
	"github.com/MrWong99/companionhub/internal/hub"
	"github.com/MrWong99/companionhub/internal/mcpserver"
	"github.com/MrWong99/companionhub/internal/observe"
	"github.com/MrWong99/companionhub/internal/progression"
	"github.com/MrWong99/companionhub/internal/resilience"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env-file", ".env", "optional dotenv file loaded before the environment overlay")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "companionhub: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "companionhub: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("companionhub starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Content ───────────────────────────────────────────────────────────────
	store, err := content.LoadFile(cfg.Content.Path)
	if err != nil {
		slog.Error("failed to load content", "path", cfg.Content.Path, "err", err)
		return 1
	}
	slog.Info("content loaded",
		"path", cfg.Content.Path,
		"personas", len(store.Personas()),
		"adventures", len(store.Adventures()),
	)

	// ── Hub ───────────────────────────────────────────────────────────────────
	ledger := progression.NewLedger(store, progression.WithBaseRating(cfg.Game.BaseRating))
	fetcher := artwork.New(artwork.Config{
		Timeout:  cfg.Artwork.Timeout,
		MaxBytes: cfg.Artwork.MaxBytes,
		Breaker:  breakerConfig(cfg.Artwork.Breaker),
		Metrics:  metrics,
	})
	svc := hub.New(hub.Config{
		Content:         store,
		Ledger:          ledger,
		Artwork:         fetcher,
		BonusWindow:     cfg.Game.BonusWindow,
		MemoryCapacity:  cfg.Game.MemoryCapacity,
		LeaderboardSize: cfg.Game.LeaderboardSize,
		OwnerNumber:     cfg.Auth.OwnerNumber,
		Metrics:         metrics,
	})
	tools := mcpserver.New(mcpserver.Config{Hub: svc, Version: version, Metrics: metrics})

	// ── HTTP ──────────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.MCPPath, mcpserver.RequireBearer(cfg.Auth.Token)(tools.Handler()))
	mux.Handle("GET /metrics", telemetry.MetricsHandler)
	health.New(health.Checker{Name: "artwork", Check: fetcher.Check}).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics, "/healthz", "/readyz", "/metrics")(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", srv.Addr, "mcp_path", cfg.Server.MCPPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…", "records", ledger.Len())
		for kind, n := range ledger.ActiveSessions() {
			slog.Warn("discarding in-progress sessions", "kind", kind.String(), "count", n)
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), telemetry.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func breakerConfig(c config.BreakerConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:         "artwork",
		MaxFailures:  c.MaxFailures,
		ResetTimeout: c.ResetTimeout,
	}
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
