// Command linematch serves exact-line lookups over TCP (optionally TLS)
// against a single corpus file.
//
// Usage:
//
//	go run ./cmd/linematch [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/linematch/internal/admission"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/server"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/linematch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("lookup server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("lookup server exited")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	store := corpus.NewStore(cfg.Corpus, corpus.WithMetrics(m))
	opts := []server.Option{server.WithMetrics(m)}

	checker := health.NewChecker(2 * time.Second)
	checker.Register("corpus", corpusCheck(store))

	if cfg.Admission.Enabled {
		var redisClient *pkgredis.Client
		if cfg.Admission.Backend == "redis" {
			err := resilience.Retry(ctx, "redis", resilience.RetryConfig{MaxAttempts: 5}, func(context.Context) error {
				c, err := pkgredis.NewClient(cfg.Redis)
				if err != nil {
					return err
				}
				redisClient = c
				return nil
			})
			if err != nil {
				return fmt.Errorf("connecting to redis for admission: %w", err)
			}
			defer redisClient.Close()
			checker.RegisterOptional("redis", func(ctx context.Context) health.ComponentHealth {
				if err := redisClient.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
		}
		limiter, err := admission.New(cfg.Admission, redisClient, cfg.Redis.KeyPrefix)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithLimiter(limiter))
		slog.Info("admission control enabled",
			"backend", cfg.Admission.Backend,
			"limit", cfg.Admission.Limit,
			"window", cfg.Admission.Window,
		)
	}

	if cfg.Analytics.Enabled {
		breaker := resilience.NewCircuitBreaker("kafka-query-events", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer producer.Close()

		// The collector is closed only after the server has drained, so
		// events from the last connections are still published.
		collector := analytics.NewCollector(producer, cfg.Analytics, breaker)
		collector.Start(context.Background())
		defer collector.Close()

		opts = append(opts, server.WithTracker(collector))
		checker.RegisterOptional("kafka", func(ctx context.Context) health.ComponentHealth {
			state := breaker.GetState()
			status := health.StatusUp
			if state == resilience.StateOpen {
				status = health.StatusDown
			}
			return health.ComponentHealth{
				Status:  status,
				Message: "publisher circuit " + state.String(),
				Details: map[string]any{
					"published": collector.Published(),
					"dropped":   collector.Dropped(),
				},
			}
		})
		slog.Info("query analytics enabled", "topic", cfg.Kafka.Topics.QueryEvents)
	}

	if cfg.Corpus.Watch {
		if cfg.Corpus.RereadOnQuery {
			slog.Warn("corpus.watch ignored in reread mode")
		} else if w, err := corpus.NewWatcher(cfg.Corpus.Path, store.Cache(), 0); err != nil {
			slog.Warn("corpus watcher disabled", "error", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil {
					slog.Error("corpus watcher stopped", "error", err)
				}
			}()
		}
	}

	if cfg.Metrics.Enabled {
		wrap := func(h http.Handler) http.Handler { return middleware.Chain(h, middleware.Metrics(m)) }
		shutdown := metrics.StartServer(cfg.Metrics.Port,
			metrics.Route{Pattern: "/health/live", Handler: wrap(checker.LiveHandler())},
			metrics.Route{Pattern: "/health/ready", Handler: wrap(checker.ReadyHandler())},
		)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	srv := server.New(*cfg, store, opts...)
	return srv.ListenAndServe(ctx)
}

// corpusCheck reports the corpus file's presence and, once loaded, the
// cached snapshot it is serving.
func corpusCheck(store *corpus.Store) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		info, err := os.Stat(store.Path())
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		details := map[string]any{
			"mode":  store.Mode(),
			"bytes": info.Size(),
		}
		if snap := store.Cache().Current(); snap != nil {
			details["lines"] = snap.Len()
			details["digest"] = fmt.Sprintf("%016x", snap.Digest())
			details["loaded_at"] = snap.LoadedAt().UTC().Format(time.RFC3339)
		}
		return health.ComponentHealth{Status: health.StatusUp, Details: details}
	}
}
