package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/admin"
	"github.com/Guizzs26/go-meta-sync/internal/app"
	"github.com/Guizzs26/go-meta-sync/internal/config"
	"github.com/Guizzs26/go-meta-sync/internal/db"
	"github.com/Guizzs26/go-meta-sync/internal/scheduler"
	"github.com/Guizzs26/go-meta-sync/pkg/infra"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Meta sync service initializing...", "pid", os.Getpid())

	repo := connectPostgres(ctx, cfg, logger)
	if repo == nil {
		return
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("FATAL: schema migration failed", "error", err)
		os.Exit(1)
	}

	rdb := app.NewRedisClient(cfg)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Sessions fail closed until Redis is back; reconciliation does not need it
		logger.Warn("Redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	}

	rt := app.NewRuntime(cfg, repo, logger, nil)
	defer rt.Close()
	rt.Warmup(ctx)

	sched, err := scheduler.New(cfg.SyncTimezone, logger)
	if err != nil {
		logger.Error("FATAL: scheduler setup failed", "error", err)
		os.Exit(1)
	}
	schedules := map[string]string{
		"branch":   cfg.BranchSyncCron,
		"customer": cfg.CustomerSyncCron,
		"region":   cfg.RegionSyncCron,
	}
	for _, s := range rt.Syncers() {
		if err := sched.Register(schedules[s.Domain()], s); err != nil {
			logger.Error("FATAL: invalid sync schedule", "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	authSvc := app.NewAuthService(cfg, repo, rdb, logger)
	adminHandler := admin.NewHandler(authSvc, rt.Syncers(), sched.Today, logger)

	server := newOpsServer(cfg.OpsPort, adminHandler, rt, repo, rdb)
	go func() {
		logger.Info("Observability server online", "url", "http://localhost:"+cfg.OpsPort+"/metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Observability server failed", "error", err)
			stop()
		}
	}()

	logger.Info("Meta sync service started")
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Observability server shutdown failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("Running sync jobs did not finish in time", "error", err)
	}
	logger.Info("Shutdown complete")
}

// connectPostgres retries until Postgres answers or the process is asked to stop
func connectPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) *db.PostgresRepository {
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	for {
		repo, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
		if err == nil {
			return repo
		}

		wait := backoff.Next()
		logger.Error("Postgres connection failed, retrying...", "attempt", backoff.Attempts(), "wait_duration", wait, "error", err)

		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received before connection")
			return nil
		case <-time.After(wait):
		}
	}
}

func newOpsServer(port string, adminHandler *admin.Handler, rt *app.Runtime, repo *db.PostgresRepository, rdb *redis.Client) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("SYNCD ALIVE"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]any{"postgres": "ok", "redis": "ok"}
		code := http.StatusOK
		if err := repo.Ping(ctx); err != nil {
			status["postgres"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
		}

		endpoints := make(map[string]string)
		for domain, st := range rt.States() {
			endpoints[domain] = st.Status.String()
		}
		status["endpoints"] = endpoints

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})

	adminHandler.Register(mux)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}
}
