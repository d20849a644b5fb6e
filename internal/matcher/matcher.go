// Package matcher runs the single-query pipeline: normalize the name,
// retrieve candidates, score them and let the decision policy pick a
// verdict. Every outcome, failures included, is a MatchVerdict.
package matcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/rank"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/score"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/tracing"
)

// Retriever is the candidate source the pipeline depends on.
type Retriever interface {
	Retrieve(ctx context.Context, normalized string, k int) ([]company.Candidate, error)
}

// Matcher is safe for concurrent use.
type Matcher struct {
	norm      *normalize.Normalizer
	retriever Retriever
	scorer    *score.Scorer
	policy    *rank.Policy
	topK      int
	tracer    *tracing.Tracer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithTracer samples per-query spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(m *Matcher) { m.tracer = t }
}

// WithMetrics records verdict counts and query latency.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Matcher) { m.metrics = mt }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// New assembles a Matcher. topK is the number of candidates requested from
// the retriever per query.
func New(norm *normalize.Normalizer, retriever Retriever, policy *rank.Policy, topK int, opts ...Option) *Matcher {
	m := &Matcher{
		norm:      norm,
		retriever: retriever,
		scorer:    score.New(norm),
		policy:    policy,
		topK:      topK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "matcher")
	return m
}

// Normalizer returns the normalizer used for queries.
func (m *Matcher) Normalizer() *normalize.Normalizer {
	return m.norm
}

// Match runs the pipeline for one raw company name.
func (m *Matcher) Match(ctx context.Context, raw string) company.MatchVerdict {
	return m.MatchQuery(ctx, company.QueryName{Raw: raw})
}

// MatchQuery runs the pipeline for q. q.Normalized is derived from q.Raw
// when empty.
func (m *Matcher) MatchQuery(ctx context.Context, q company.QueryName) company.MatchVerdict {
	start := time.Now()
	traceID := logger.RequestID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx, span := m.tracer.StartSpan(ctx, "match", traceID)
	v := m.run(ctx, q)
	span.SetAttr("decision", string(v.Decision))
	span.SetAttr("reason", v.Reason)
	m.tracer.Finish(span)

	if m.metrics != nil {
		m.metrics.VerdictsTotal.WithLabelValues(string(v.Decision), v.Reason).Inc()
		m.metrics.MatchLatency.Observe(time.Since(start).Seconds())
	}
	return v
}

func (m *Matcher) run(ctx context.Context, q company.QueryName) company.MatchVerdict {
	if q.Normalized == "" {
		_, span := tracing.StartChildSpan(ctx, "normalize")
		nq, err := m.norm.Query(q.Raw)
		span.End()
		if err != nil {
			return company.NoMatch(nq, apperrors.ReasonInvalidInput, err)
		}
		q = nq
	}

	rctx, span := tracing.StartChildSpan(ctx, "retrieve")
	candidates, err := m.retriever.Retrieve(rctx, q.Normalized, m.topK)
	span.SetAttr("candidates", len(candidates))
	span.End()
	if err != nil {
		reason := apperrors.ReasonFor(err)
		logger.FromContext(ctx).Debug("retrieval failed", "query", q.Raw, "reason", reason, "error", err)
		return company.NoMatch(q, reason, err)
	}

	_, span = tracing.StartChildSpan(ctx, "score")
	scored := make([]company.Candidate, 0, len(candidates))
	for _, c := range candidates {
		sc := m.scorer.Score(q, c.Record)
		sc.LexicalScore = c.LexicalScore
		scored = append(scored, sc)
	}
	v := m.policy.Decide(q, scored)
	span.SetAttr("confidence", v.Confidence)
	span.End()
	return v
}
