// Package retrieve fetches candidate records for a normalized company name
// from the search index. Each lookup runs under a per-attempt timeout,
// retries transient failures once by default and is guarded by a circuit
// breaker; failures come back as an empty candidate list plus a classified
// error so callers can record a NO_MATCH reason instead of aborting.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/resilience"
)

const (
	// DefaultK is used when a caller asks for k <= 0.
	DefaultK = 20
	// MaxK caps the candidate list size.
	MaxK = 100

	breakerName = "index"
)

// errCallerDone marks attempts cut short by the caller's own context. They
// say nothing about index health, so the breaker ignores them.
var errCallerDone = errors.New("caller context done")

// Retriever is safe for concurrent use.
type Retriever struct {
	searcher index.Searcher
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	timeout  time.Duration
	cache    *Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithCache puts a candidate cache in front of the index.
func WithCache(c *Cache) Option {
	return func(r *Retriever) { r.cache = c }
}

// WithMetrics records retrieval latency, errors and breaker state.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// New creates a Retriever over searcher using the timeout, retry and
// breaker settings in cfg.
func New(searcher index.Searcher, cfg config.IndexConfig, opts ...Option) *Retriever {
	r := &Retriever{
		searcher: searcher,
		timeout:  cfg.Timeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "retriever")

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	r.retry = resilience.RetryConfig{
		MaxAttempts:  1 + max(cfg.RetryCount, 0),
		InitialDelay: backoff,
		MaxDelay:     10 * backoff,
		Retryable:    retryable,
		Logger:       r.logger,
	}
	r.breaker = resilience.NewCircuitBreaker(breakerName, resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		ResetTimeout:     cfg.BreakerReset,
		IsFailure:        index.Transient,
		IsIgnored:        callerDone,
		OnStateChange: func(_, to resilience.State) {
			if r.metrics != nil {
				r.metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(to))
			}
		},
	})
	return r
}

// Retrieve returns up to k candidates for a normalized name, best lexical
// match first. On failure it returns an empty, non-nil slice and an error
// wrapping ErrRetrievalTimeout, ErrRetrievalUnavailable or ErrInvalidInput.
func (r *Retriever) Retrieve(ctx context.Context, normalized string, k int) ([]company.Candidate, error) {
	if normalized == "" {
		return []company.Candidate{}, apperrors.New(apperrors.ErrInvalidInput, 0, "empty normalized name")
	}
	k = clampK(k)

	start := time.Now()
	var (
		hits   []index.Hit
		cached bool
		err    error
	)
	if r.cache != nil {
		hits, cached, err = r.cache.GetOrCompute(ctx, normalized, k, func(ctx context.Context) ([]index.Hit, error) {
			return r.search(ctx, normalized, k)
		})
	} else {
		hits, err = r.search(ctx, normalized, k)
	}
	r.observe(start, cached, err)
	if err != nil {
		err = index.Classify(err)
		r.logger.Debug("retrieval failed", "query", normalized, "error", err)
		return []company.Candidate{}, err
	}

	candidates := make([]company.Candidate, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if h.Record.ID == "" {
			continue
		}
		if _, dup := seen[h.Record.ID]; dup {
			continue
		}
		seen[h.Record.ID] = struct{}{}
		candidates = append(candidates, company.Candidate{
			RecordID:     h.Record.ID,
			Record:       h.Record,
			LexicalScore: h.Score,
		})
	}
	if r.metrics != nil {
		r.metrics.CandidatesPerQuery.Observe(float64(len(candidates)))
	}
	return candidates, nil
}

// BreakerState reports the index circuit breaker state.
func (r *Retriever) BreakerState() resilience.State {
	return r.breaker.GetState()
}

// Cache returns the candidate cache, or nil.
func (r *Retriever) Cache() *Cache {
	return r.cache
}

func (r *Retriever) search(ctx context.Context, normalized string, k int) ([]index.Hit, error) {
	q := index.Query{
		Text:     normalized,
		Phonetic: normalize.PhoneticCodes(normalized),
		Limit:    k,
	}
	var hits []index.Hit
	err := resilience.Retry(ctx, "index-search", r.retry, func() error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", errCallerDone, err)
		}
		return r.breaker.Execute(func() error {
			h, err := resilience.WithTimeoutValue(ctx, r.timeout, "index search", func(ctx context.Context) ([]index.Hit, error) {
				return r.searcher.Search(ctx, q)
			})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return fmt.Errorf("%w: %w", errCallerDone, ctxErr)
				}
				return index.Classify(err)
			}
			hits = h
			return nil
		})
	})
	return hits, err
}

func callerDone(err error) bool {
	return errors.Is(err, errCallerDone)
}

func retryable(err error) bool {
	return !callerDone(err) && index.Transient(err)
}

func (r *Retriever) observe(start time.Time, cached bool, err error) {
	if r.metrics == nil {
		return
	}
	status := "miss"
	switch {
	case r.cache == nil:
		status = "none"
	case cached:
		status = "hit"
		r.metrics.CacheHitsTotal.Inc()
	default:
		r.metrics.CacheMissesTotal.Inc()
	}
	r.metrics.RetrievalLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.RetrievalErrors.WithLabelValues(errorKind(index.Classify(err))).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrRetrievalTimeout):
		return "timeout"
	case errors.Is(err, apperrors.ErrRetrievalUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

func clampK(k int) int {
	switch {
	case k <= 0:
		return DefaultK
	case k > MaxK:
		return MaxK
	default:
		return k
	}
}
