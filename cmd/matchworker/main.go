// Command matchworker runs match batches requested over Kafka.
//
// It consumes match-requests, runs each request through the batch
// orchestrator, persists the report to PostgreSQL when available and
// publishes every verdict followed by a batch summary to match-verdicts.
//
// Usage:
//
//	go run ./cmd/matchworker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/stream"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/postgres"
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
	slog.Info("starting match worker",
		"requests_topic", cfg.Kafka.Topics.MatchRequests,
		"verdicts_topic", cfg.Kafka.Topics.MatchVerdicts,
		"concurrency", cfg.Batch.Concurrency,
		"deadline", cfg.Batch.Deadline,
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

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MatchVerdicts)
	defer producer.Close()

	opts := []stream.Option{stream.WithMaxNames(cfg.Server.MaxBatchSize)}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, batch reports will not be persisted", "error", err)
	} else {
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			slog.Error("failed to create schema", "error", err)
			os.Exit(1)
		}
		opts = append(opts, stream.WithSaver(store.NewVerdictStore(db)))
	}

	if cfg.Analytics.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MatchAnalytics)
		defer analyticsProducer.Close()
		bc := collector.NewBatchCollector(analyticsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		bc.Start(ctx)
		defer func() {
			stop()
			bc.Close()
			if n := bc.Dropped(); n > 0 {
				slog.Warn("analytics events dropped while the broker was unreachable", "events", n)
			}
		}()
		opts = append(opts, stream.WithTracker(bc))
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.MatchAnalytics)
	}

	handler := stream.NewHandler(p.Orchestrator, producer, opts...)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.MatchRequests, handler.Handle)
	defer consumer.Close()

	slog.Info("match worker ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.MatchRequests,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	st := consumer.Stats()
	slog.Info("match worker stopped", "handled", st.Handled, "failed", st.Failed)
}
