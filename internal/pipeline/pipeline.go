// Package pipeline assembles the matcher from configuration: index
// backend, optional Redis candidate cache, retriever, scoring policy and
// batch orchestrator. Every binary builds its pipeline here.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/batch"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index/meili"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index/memory"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/rank"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/retrieve"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/tracing"
)

// Pipeline holds the assembled components. Close releases the Redis
// connection when one was opened.
type Pipeline struct {
	Index        index.Index
	Normalizer   *normalize.Normalizer
	Retriever    *retrieve.Retriever
	Matcher      *matcher.Matcher
	Orchestrator *batch.Orchestrator
	Cache        *retrieve.Cache
	Redis        *pkgredis.Client
}

// Options are the optional collaborators of Build.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Index overrides the configured backend.
	Index index.Index
}

// Build wires a Pipeline from cfg. A memory backend is preloaded from
// cfg.Ingest.CSVPath when set. Redis is optional: when cfg.Cache.Enabled is
// set but Redis cannot be reached the pipeline runs uncached.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Pipeline, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	policy, err := rank.NewPolicy(cfg.Matcher)
	if err != nil {
		return nil, fmt.Errorf("building decision policy: %w", err)
	}
	norm := normalize.New(cfg.Matcher.LegalSuffixes)

	p := &Pipeline{Normalizer: norm, Index: opts.Index}
	if p.Index == nil {
		p.Index = NewIndex(cfg, log)
		if mem, ok := p.Index.(*memory.Index); ok {
			if cfg.Ingest.CSVPath != "" {
				if _, err := LoadCSV(ctx, mem, cfg, norm, cfg.Ingest.CSVPath, opts.Metrics, log); err != nil {
					return nil, err
				}
			}
			log.Info("in-memory index ready", "documents", mem.DocCount())
		}
	}

	retrieveOpts := []retrieve.Option{retrieve.WithLogger(log)}
	if opts.Metrics != nil {
		retrieveOpts = append(retrieveOpts, retrieve.WithMetrics(opts.Metrics))
	}
	if cfg.Cache.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, candidate caching disabled", "error", err)
		} else {
			p.Redis = client
			p.Cache = retrieve.NewCache(client, cfg.Cache.TTL, log)
			retrieveOpts = append(retrieveOpts, retrieve.WithCache(p.Cache))
			log.Info("candidate cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
		}
	}
	p.Retriever = retrieve.New(p.Index, cfg.Index, retrieveOpts...)

	tracer := tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate, log)
	matcherOpts := []matcher.Option{matcher.WithTracer(tracer), matcher.WithLogger(log)}
	batchOpts := []batch.Option{batch.WithLogger(log)}
	if opts.Metrics != nil {
		matcherOpts = append(matcherOpts, matcher.WithMetrics(opts.Metrics))
		batchOpts = append(batchOpts, batch.WithMetrics(opts.Metrics))
	}
	p.Matcher = matcher.New(norm, p.Retriever, policy, cfg.Matcher.TopK, matcherOpts...)
	p.Orchestrator = batch.New(p.Matcher, cfg.Batch, batchOpts...)
	return p, nil
}

// NewIndex creates the configured index backend. No request is made.
func NewIndex(cfg *config.Config, log *slog.Logger) index.Index {
	if cfg.Index.Backend == "memory" {
		return memory.New()
	}
	return meili.New(cfg.Index, log)
}

// LoadCSV ingests the company CSV at path into idx.
func LoadCSV(ctx context.Context, idx ingest.Uploader, cfg *config.Config, norm *normalize.Normalizer, path string, m *metrics.Metrics, log *slog.Logger) (ingest.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ingest.Stats{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	loader := NewLoader(idx, cfg, norm, log).WithMetrics(m)
	stats, err := loader.Load(ctx, ingest.NewCSVSource(f))
	if err != nil {
		return stats, fmt.Errorf("loading %s: %w", path, err)
	}
	return stats, nil
}

// NewLoader creates a loader using the configured upload settings.
func NewLoader(idx ingest.Uploader, cfg *config.Config, norm *normalize.Normalizer, log *slog.Logger) *ingest.Loader {
	return ingest.NewLoader(idx, ingest.NewDocumentBuilder(norm), ingest.Options{
		BatchSize:   cfg.Index.UploadBatchSize,
		Concurrency: cfg.Index.UploadConcurrency,
		SkipInvalid: cfg.Ingest.SkipInvalid,
	}, log)
}

// Close releases held connections.
func (p *Pipeline) Close() error {
	if p.Redis != nil {
		return p.Redis.Close()
	}
	return nil
}
