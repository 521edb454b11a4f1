package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	rlhttp "github.com/runlens/runlens/internal/adapter/http"
	"github.com/runlens/runlens/internal/adapter/memory"
	rlnats "github.com/runlens/runlens/internal/adapter/nats"
	"github.com/runlens/runlens/internal/adapter/natskv"
	rlotel "github.com/runlens/runlens/internal/adapter/otel"
	"github.com/runlens/runlens/internal/adapter/postgres"
	"github.com/runlens/runlens/internal/adapter/ristretto"
	"github.com/runlens/runlens/internal/adapter/tiered"
	"github.com/runlens/runlens/internal/adapter/ws"
	"github.com/runlens/runlens/internal/bus"
	"github.com/runlens/runlens/internal/config"
	"github.com/runlens/runlens/internal/logger"
	"github.com/runlens/runlens/internal/port/cache"
	"github.com/runlens/runlens/internal/port/runstore"
	"github.com/runlens/runlens/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "admin: %v\n", err)
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
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Observability ---
	var metrics *rlotel.Metrics
	if cfg.OTel.Enabled {
		shutdown, err := rlotel.Setup(ctx, cfg.Logging.Service, cfg.OTel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("otel shutdown failed", "error", err)
			}
		}()

		metrics, err = rlotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Storage ---
	var store runstore.Store
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		slog.Info("postgres connected")

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")

		store = postgres.NewStore(pool)
	case "memory":
		store = memory.NewStore()
		slog.Warn("using in-memory storage, runs are not persisted")
	}

	// --- Core services ---
	eventBus := bus.New(cfg.Bus.Buffer)
	defer eventBus.Close()

	localCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer localCache.Close()
	var summaryCache cache.Cache = localCache

	// --- Optional NATS relay + shared cache tier ---
	if cfg.NATS.URL != "" {
		queue, err := rlnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()

		stopRelay := service.StartEventRelay(ctx, eventBus, queue)
		defer stopRelay()

		kv, err := queue.KeyValue(ctx, "runlens-cache", cfg.Cache.SummaryTTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		summaryCache = tiered.New(localCache, natskv.New(kv), cfg.Cache.SummaryTTL)
		slog.Info("shared snapshot cache enabled", "bucket", "runlens-cache")
	}

	statsSvc := service.NewStatsService(store, summaryCache, cfg.Cache.SummaryTTL)
	hierarchySvc := service.NewHierarchyService(store, cfg.Hierarchy.MaxDepth, cfg.Hierarchy.MaxNodes)
	querySvc := service.NewQueryService(store, hierarchySvc, statsSvc)
	ingestSvc := service.NewIngestService(store, eventBus, statsSvc, metrics)

	hub := ws.NewHub(eventBus)
	defer hub.Close()

	// --- HTTP ---
	handlers := &rlhttp.Handlers{
		Ingest: ingestSvc,
		Query:  querySvc,
	}
	if cfg.Server.IngestRPS > 0 {
		limiter := rlhttp.NewRateLimiter(cfg.Server.IngestRPS, cfg.Server.IngestBurst)
		stopSweep := limiter.StartCleanup(time.Minute, 10*time.Minute)
		defer stopSweep()
		handlers.IngestLimiter = limiter.Handler
		slog.Info("ingest rate limiting enabled",
			"rps", cfg.Server.IngestRPS,
			"burst", cfg.Server.IngestBurst,
		)
	}

	r := chi.NewRouter()
	r.Use(rlhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RequestID)
	r.Use(rlhttp.RequestID)
	r.Use(rlhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.OTel.Enabled {
		r.Use(rlotel.HTTPMiddleware(cfg.Logging.Service))
	}

	r.Get("/health", healthHandler(cfg, hub))

	// The live channel stays outside the timeout group: connections are
	// long-lived by design.
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		rlhttp.MountRoutes(r, handlers)
	})

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, hub *ws.Hub) http.HandlerFunc {
	type healthStatus struct {
		Status      string `json:"status"`
		Storage     string `json:"storage"`
		Connections int    `json:"ws_connections"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:      "ok",
			Storage:     cfg.Storage.Driver,
			Connections: hub.ConnectionCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
