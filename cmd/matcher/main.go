// Command matcher serves the company-to-domain matcher over HTTP.
//
// It exposes single and inline batch matching, stored batch reports, the
// candidate cache controls and verdict analytics, plus liveness and
// readiness probes. Prometheus metrics are served on a separate port.
//
// Usage:
//
//	go run ./cmd/matcher [-config configs/development.yaml]
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting matcher service",
		"port", cfg.Server.Port,
		"index_backend", cfg.Index.Backend,
		"index", cfg.Index.Name,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		wait := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Server.ShutdownTimeout)
		defer func() {
			stop()
			wait()
		}()
	}

	p, err := pipeline.Build(ctx, cfg, pipeline.Options{Metrics: m})
	if err != nil {
		slog.Error("failed to build match pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	checker := health.NewChecker()
	checker.Register("index", p.Index.Health)
	if p.Redis != nil {
		checker.RegisterOptional("redis", p.Redis.Ping)
	}

	var apiOpts []api.Option
	if p.Cache != nil {
		apiOpts = append(apiOpts, api.WithCache(p.Cache))
	}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, batch persistence and analytics snapshots disabled", "error", err)
	} else {
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			slog.Error("failed to create schema", "error", err)
			os.Exit(1)
		}
		apiOpts = append(apiOpts, api.WithReports(store.NewVerdictStore(db)))
		checker.RegisterOptional("postgres", db.Ping)
	}

	agg := analytics.NewAggregator()
	var tracker analytics.Tracker = agg
	if cfg.Analytics.Enabled {
		topic := cfg.Kafka.Topics.MatchAnalytics
		producer := kafka.NewProducer(cfg.Kafka, topic)
		defer producer.Close()

		bc := collector.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		bc.Start(ctx)
		defer func() {
			stop()
			bc.Close()
			if n := bc.Dropped(); n > 0 {
				slog.Warn("analytics events dropped while the broker was unreachable", "events", n)
			}
		}()
		tracker = bc

		consumer := kafka.NewConsumer(cfg.Kafka, topic, analytics.HandleEvent(agg))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		slog.Info("analytics pipeline started", "topic", topic)
	}
	apiOpts = append(apiOpts, api.WithTracker(tracker))

	if db != nil {
		snapshots := aggregator.NewStore(db)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create analytics schema", "error", err)
			os.Exit(1)
		}
		snapshots.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
	}

	h := api.New(p.Matcher, p.Orchestrator, cfg.Server.MaxBatchSize, apiOpts...)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m)}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateWindow)
		defer limiter.Stop()
		mws = append(mws, middleware.RateLimit(limiter))
		slog.Info("rate limiting enabled", "limit", cfg.Server.RateLimit, "window", cfg.Server.RateWindow)
	}
	mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))
	chain := middleware.Chain(mux, mws...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
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

	slog.Info("matcher service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("matcher service stopped")
}
