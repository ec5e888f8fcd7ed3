package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	arhttp "github.com/Strob0t/agentrouter/internal/adapter/http"
	"github.com/Strob0t/agentrouter/internal/adapter/mcp"
	arnats "github.com/Strob0t/agentrouter/internal/adapter/nats"
	"github.com/Strob0t/agentrouter/internal/adapter/natsagent"
	"github.com/Strob0t/agentrouter/internal/adapter/natskv"
	arotel "github.com/Strob0t/agentrouter/internal/adapter/otel"
	"github.com/Strob0t/agentrouter/internal/adapter/postgres"
	"github.com/Strob0t/agentrouter/internal/adapter/ristretto"
	"github.com/Strob0t/agentrouter/internal/adapter/tiered"
	"github.com/Strob0t/agentrouter/internal/adapter/ws"
	"github.com/Strob0t/agentrouter/internal/config"
	"github.com/Strob0t/agentrouter/internal/logger"
	"github.com/Strob0t/agentrouter/internal/middleware"
	"github.com/Strob0t/agentrouter/internal/port/agentbackend"
	"github.com/Strob0t/agentrouter/internal/port/audit"
	"github.com/Strob0t/agentrouter/internal/port/broadcast"
	"github.com/Strob0t/agentrouter/internal/port/cache"
	"github.com/Strob0t/agentrouter/internal/secrets"
	"github.com/Strob0t/agentrouter/internal/service"
)

const version = "0.1.0"

// secretMCPAPIKey names the MCP API key in the secret vault.
const secretMCPAPIKey = "mcp_api_key"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"agents", len(cfg.Agents),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOTel, err := arotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := arotel.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	migrated, err := postgres.RunMigrations(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied", "version", migrated)

	// NATS
	queue, err := arnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Output cache
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache l1: %w", err)
	}
	defer l1.Close()

	var l2 cache.Cache
	if cfg.Cache.L2Bucket != "" {
		kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("cache l2: %w", err)
		}
		l2 = natskv.New(kv)
	}
	outputCache := tiered.New(l1, l2, cfg.Cache.L1TTL)

	// --- Services ---

	store := postgres.NewStore(pool)
	hub := ws.NewHub(cfg.Server.CORSOrigin)
	events := broadcast.Fanout{hub, arnats.NewBroadcaster(queue)}

	reviewSvc := service.NewReviewService(store, events)

	outputSvc := service.NewOutputService(store, reviewSvc, &cfg.Escalation)
	outputSvc.SetScorer(service.FieldScorer{})
	outputSvc.SetAudit(audit.Multi{audit.FromStore(store), arnats.NewAuditSink(queue)})
	outputSvc.SetBroadcaster(events)
	outputSvc.SetCache(outputCache, cfg.Cache.L2TTL)

	orchestrator := service.NewOrchestratorService(&cfg.Router)
	orchestrator.SetMetrics(metrics)
	orchestrator.SetBroadcaster(events)

	// --- Agent Backends ---

	backends := agentbackend.NewRegistry()
	if err := backends.Register(natsagent.Transport, natsagent.Factory(queue, cfg.Breaker)); err != nil {
		return fmt.Errorf("register nats transport: %w", err)
	}
	if err := backends.Register(mcp.Transport, mcp.Factory(mcp.Dial, cfg.Breaker)); err != nil {
		return fmt.Errorf("register mcp transport: %w", err)
	}

	closers, err := registerAgents(orchestrator, backends, outputSvc, cfg.Agents)
	if err != nil {
		return err
	}
	defer closeAgents(closers)

	// --- HTTP ---

	handlers := &arhttp.Handlers{
		Orchestrator: orchestrator,
		Reviews:      reviewSvc,
		Outputs:      outputSvc,
	}

	opts := arhttp.RouteOptions{
		LiveFeed: hub.HandleWS,
		Health: arhttp.HealthHandler(map[string]arhttp.HealthCheck{
			"postgres": store.Ping,
			"nats": func(context.Context) error {
				if !queue.IsConnected() {
					return errors.New("disconnected")
				}
				return nil
			},
		}),
	}

	var vault *secrets.Vault
	if cfg.MCP.Enabled {
		vault, err = secrets.NewVault(secrets.Chain(
			secrets.Static(map[string]string{secretMCPAPIKey: cfg.MCP.APIKey}),
			secrets.FileLoader(map[string]string{secretMCPAPIKey: cfg.MCP.APIKeyFile}),
		))
		if err != nil {
			return fmt.Errorf("mcp secrets: %w", err)
		}

		mcpSrv := mcp.NewServer(
			mcp.ServerConfig{Name: "agentrouter", Version: version, APIKey: vault.Getter(secretMCPAPIKey)},
			mcp.ServerDeps{Dispatcher: orchestrator, Agents: orchestrator, Reviews: reviewSvc, Outputs: outputSvc},
		)
		opts.MCP = mcpSrv.Handler()
		slog.Info("mcp server enabled", "path", "/mcp", "api_key", vault.Redacted(secretMCPAPIKey))
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.DispatchRate > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.DispatchRate, cfg.Server.DispatchBurst)
		opts.DispatchLimit = limiter.Handler
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(arhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(arhttp.SecurityHeaders)
	r.Use(arhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(arotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	arhttp.MountRoutes(r, handlers, opts)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(gctx, time.Minute, 10*time.Minute)
			return nil
		})
	}

	if vault != nil && cfg.MCP.APIKeyFile != "" {
		g.Go(func() error {
			reloadSecretsOnHangup(gctx, vault)
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// reloadSecretsOnHangup re-reads the vault on every SIGHUP until ctx is done.
func reloadSecretsOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed, keeping previous values", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "generation", vault.Generation(), "mcp_api_key", vault.Redacted(secretMCPAPIKey))
		}
	}
}
