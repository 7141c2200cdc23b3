// Command analytics runs the standalone query-analytics service.
//
// It consumes query events published by linematch servers from Kafka,
// aggregates them in memory (results, latency percentiles, top queries and
// top missing queries), optionally persists periodic snapshots to
// PostgreSQL, and serves GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-persist]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linematch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	persist := flag.Bool("persist", false, "persist periodic snapshots to PostgreSQL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port, "topic", cfg.Kafka.Topics.QueryEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	checker := health.NewChecker(2 * time.Second)

	var lister analytics.SnapshotLister
	if *persist {
		store, db, err := openStore(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer db.Close()
			lister = store
			if prev, err := store.LatestSnapshot(ctx); err != nil {
				slog.Warn("could not load previous snapshot", "error", err)
			} else if prev != nil {
				agg.Seed(*prev)
				slog.Info("aggregator seeded from snapshot", "total_queries", prev.TotalQueries)
			}
			saveDone := make(chan struct{})
			go func() {
				defer close(saveDone)
				aggregator.RunPeriodicSave(ctx, store, agg, cfg.Analytics.SnapshotInterval)
			}()
			defer func() { <-saveDone }()
			checker.RegisterOptional("postgres", func(ctx context.Context) health.ComponentHealth {
				if err := db.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
		}
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents, agg.HandleMessage)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()
	checker.Register("aggregator", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Details: map[string]any{"total_queries": agg.Stats().TotalQueries},
		}
	})

	m := metrics.New(nil)
	h := analytics.NewHandler(agg, lister)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.Chain(mux, middleware.Metrics(m), middleware.Timeout(10*time.Second)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func openStore(ctx context.Context, cfg config.PostgresConfig) (*aggregator.Store, *postgres.Client, error) {
	var db *postgres.Client
	err := resilience.Retry(ctx, "postgres", resilience.RetryConfig{MaxAttempts: 5}, func(context.Context) error {
		c, err := postgres.New(cfg)
		if err != nil {
			return err
		}
		db = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	store := aggregator.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
