package matcher

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index/memory"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/rank"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/retrieve"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/tracing"
)

var corpus = ingest.SliceSource{
	{ID: "c1", CanonicalName: "ACME CORP", Domain: "acme.com"},
	{ID: "c2", CanonicalName: "Globex Corporation", Domain: "globex.com"},
	{ID: "c3", CanonicalName: "International Business Machines Corporation", Domain: "ibm.com", Aliases: []string{"IBM"}},
	{ID: "c4", CanonicalName: "Acme Widgets", Domain: "acmewidgets.io"},
	{ID: "c5", CanonicalName: "Heal Within", Domain: "heal-within.com"},
}

// countingSearcher counts calls to the wrapped searcher.
type countingSearcher struct {
	index.Searcher
	calls atomic.Int32
}

func (c *countingSearcher) Search(ctx context.Context, q index.Query) ([]index.Hit, error) {
	c.calls.Add(1)
	return c.Searcher.Search(ctx, q)
}

type failingSearcher struct{ err error }

func (f failingSearcher) Search(context.Context, index.Query) ([]index.Hit, error) {
	return nil, f.err
}

func newPipeline(t *testing.T, searcher index.Searcher, opts ...Option) *Matcher {
	t.Helper()
	cfg := config.Default()
	cfg.Index.RetryBackoff = time.Millisecond
	norm := normalize.New(cfg.Matcher.LegalSuffixes)
	policy, err := rank.NewPolicy(cfg.Matcher)
	require.NoError(t, err)
	return New(norm, retrieve.New(searcher, cfg.Index), policy, cfg.Matcher.TopK, opts...)
}

func loadedIndex(t *testing.T) *memory.Index {
	t.Helper()
	idx := memory.New()
	norm := normalize.New(config.DefaultLegalSuffixes)
	_, err := ingest.NewLoader(idx, ingest.NewDocumentBuilder(norm), ingest.Options{}, nil).
		Load(context.Background(), corpus)
	require.NoError(t, err)
	return idx
}

func TestMatchExactCompany(t *testing.T) {
	m := newPipeline(t, loadedIndex(t))

	v := m.Match(context.Background(), "Acme Corporation")
	assert.Equal(t, company.DecisionMatch, v.Decision)
	assert.GreaterOrEqual(t, v.Confidence, 0.85)
	assert.Equal(t, "c1", v.MatchedRecordID)
	assert.Equal(t, "acme.com", v.MatchedDomain)
	assert.Equal(t, "acme", v.NormalizedQuery)
	assert.Empty(t, v.Reason)
	require.NotEmpty(t, v.Signals)
}

func TestMatchUnrelatedName(t *testing.T) {
	m := newPipeline(t, loadedIndex(t))

	v := m.Match(context.Background(), "Unrelated Biz XYZ")
	assert.Equal(t, company.DecisionNoMatch, v.Decision)
	assert.Empty(t, v.MatchedRecordID)
	assert.LessOrEqual(t, v.Confidence, 0.5)
}

func TestMatchAliasAndJoinedDomain(t *testing.T) {
	m := newPipeline(t, loadedIndex(t))

	v := m.Match(context.Background(), "IBM")
	assert.Equal(t, company.DecisionMatch, v.Decision)
	assert.Equal(t, "ibm.com", v.MatchedDomain)

	v = m.Match(context.Background(), "Heal Within, Inc.")
	assert.Equal(t, company.DecisionMatch, v.Decision)
	assert.Equal(t, "heal-within.com", v.MatchedDomain)
}

func TestMatchInvalidInputSkipsIndex(t *testing.T) {
	s := &countingSearcher{Searcher: loadedIndex(t)}
	m := newPipeline(t, s)

	for _, raw := range []string{"", "   ", "!!!", string(make([]rune, normalize.MaxQueryRunes+1))} {
		v := m.Match(context.Background(), raw)
		assert.Equal(t, company.DecisionNoMatch, v.Decision, "%q", raw)
		assert.Equal(t, apperrors.ReasonInvalidInput, v.Reason, "%q", raw)
		assert.NotEmpty(t, v.Error)
	}
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestMatchIndexUnavailable(t *testing.T) {
	m := newPipeline(t, failingSearcher{err: syscall.ECONNREFUSED})

	v := m.Match(context.Background(), "Acme Corporation")
	assert.Equal(t, company.DecisionNoMatch, v.Decision)
	assert.Equal(t, apperrors.ReasonIndexUnavailable, v.Reason)
	assert.Equal(t, "acme", v.NormalizedQuery)
}

func TestMatchPreNormalizedQuery(t *testing.T) {
	m := newPipeline(t, loadedIndex(t))
	v := m.MatchQuery(context.Background(), company.QueryName{Raw: "ACME, Inc.", Normalized: "acme"})
	assert.Equal(t, company.DecisionMatch, v.Decision)
	assert.Equal(t, "ACME, Inc.", v.Query)
}

func TestMatchRecordsMetricsAndSpans(t *testing.T) {
	mt := metrics.NewUnregistered()
	m := newPipeline(t, loadedIndex(t),
		WithMetrics(mt),
		WithTracer(tracing.NewTracer(true, 1, nil)),
	)

	m.Match(context.Background(), "Acme Corporation")
	m.Match(context.Background(), "")
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.VerdictsTotal.WithLabelValues("MATCH", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.VerdictsTotal.WithLabelValues("NO_MATCH", "invalid_input")))
}

func TestMatchDeterministic(t *testing.T) {
	m := newPipeline(t, loadedIndex(t))
	first := m.Match(context.Background(), "Acme")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, m.Match(context.Background(), "Acme"))
	}
}
