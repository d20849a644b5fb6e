package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/resilience"
)

// Uploader receives document batches. index.Index implementations satisfy it.
type Uploader interface {
	AddDocuments(ctx context.Context, docs []index.Document) error
}

// Invalidator drops cached lookups that a reload may have made stale.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Options tunes a Loader. Zero values fall back to defaults.
type Options struct {
	BatchSize   int
	Concurrency int
	SkipInvalid bool
	Retry       resilience.RetryConfig
}

// Stats summarises one Load.
type Stats struct {
	Read       int           `json:"read"`
	Indexed    int           `json:"indexed"`
	Invalid    int           `json:"invalid"`
	Duplicates int           `json:"duplicates"`
	Batches    int           `json:"batches"`
	Duration   time.Duration `json:"duration"`
}

// Loader streams records from a Source into an Uploader.
type Loader struct {
	uploader    Uploader
	builder     *DocumentBuilder
	opts        Options
	invalidator Invalidator
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(uploader Uploader, builder *DocumentBuilder, opts Options, logger *slog.Logger) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ingest")
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}
	return &Loader{
		uploader: uploader,
		builder:  builder,
		opts:     opts,
		logger:   logger,
	}
}

// WithInvalidator makes Load clear inv after a successful run.
func (l *Loader) WithInvalidator(inv Invalidator) *Loader {
	l.invalidator = inv
	return l
}

// WithMetrics counts uploaded documents.
func (l *Loader) WithMetrics(m *metrics.Metrics) *Loader {
	l.metrics = m
	return l
}

// Load reads every record from src, validates it, builds its document and
// uploads documents in batches of Options.BatchSize with at most
// Options.Concurrency uploads in flight. Repeated ids keep their first
// occurrence. Invalid records fail the load unless SkipInvalid is set.
func (l *Loader) Load(ctx context.Context, src Source) (Stats, error) {
	start := time.Now()
	var stats Stats
	var indexed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)

	seen := make(map[string]struct{})
	batch := make([]index.Document, 0, l.opts.BatchSize)
	submit := func() {
		if len(batch) == 0 {
			return
		}
		docs := batch
		batch = make([]index.Document, 0, l.opts.BatchSize)
		stats.Batches++
		n := stats.Batches
		g.Go(func() error {
			if err := l.upload(gctx, n, docs); err != nil {
				return err
			}
			indexed.Add(int64(len(docs)))
			return nil
		})
	}

	readErr := src.Each(gctx, func(rec company.CompanyRecord) error {
		stats.Read++
		if err := rec.Validate(); err != nil {
			stats.Invalid++
			if !l.opts.SkipInvalid {
				return fmt.Errorf("record %d: %w", stats.Read, err)
			}
			l.logger.Warn("skipping invalid record", "error", err)
			return nil
		}
		if _, dup := seen[rec.ID]; dup {
			stats.Duplicates++
			return nil
		}
		seen[rec.ID] = struct{}{}
		batch = append(batch, l.builder.Build(rec))
		if len(batch) >= l.opts.BatchSize {
			submit()
		}
		return nil
	})
	if readErr == nil {
		submit()
	}
	uploadErr := g.Wait()

	stats.Indexed = int(indexed.Load())
	stats.Duration = time.Since(start)
	if err := errors.Join(uploadErr, readErr); err != nil {
		l.logger.Error("ingest failed", "read", stats.Read, "indexed", stats.Indexed, "error", err)
		if uploadErr != nil {
			return stats, fmt.Errorf("uploading documents: %w", uploadErr)
		}
		return stats, fmt.Errorf("reading records: %w", readErr)
	}

	if l.invalidator != nil {
		if _, err := l.invalidator.Invalidate(ctx); err != nil {
			l.logger.Warn("cache invalidation after ingest failed", "error", err)
		}
	}
	l.logger.Info("ingest complete",
		"read", stats.Read,
		"indexed", stats.Indexed,
		"invalid", stats.Invalid,
		"duplicates", stats.Duplicates,
		"batches", stats.Batches,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

func (l *Loader) upload(ctx context.Context, n int, docs []index.Document) error {
	start := time.Now()
	err := resilience.Retry(ctx, "index-upload", l.opts.Retry, func() error {
		return l.uploader.AddDocuments(ctx, docs)
	})
	if err != nil {
		return fmt.Errorf("batch %d (%d docs): %w", n, len(docs), err)
	}
	if l.metrics != nil {
		l.metrics.DocsIndexedTotal.Add(float64(len(docs)))
	}
	l.logger.Debug("batch uploaded", "batch", n, "docs", len(docs), "duration_ms", time.Since(start).Milliseconds())
	return nil
}
