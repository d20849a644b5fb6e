package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/batch"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
)

type prefixMatcher struct{}

// MatchQuery matches names starting with "Acme" to acme.com.
func (prefixMatcher) MatchQuery(_ context.Context, q company.QueryName) company.MatchVerdict {
	if strings.HasPrefix(q.Raw, "Acme") {
		return company.MatchVerdict{
			Query:           q.Raw,
			MatchedRecordID: "acme",
			MatchedDomain:   "acme.com",
			Confidence:      0.95,
			Decision:        company.DecisionMatch,
		}
	}
	return company.NoMatch(q, apperrors.ReasonNoCandidates, nil)
}

type outageRunner struct{}

func (outageRunner) Run(_ context.Context, queries []company.QueryName, _ int) (*batch.Report, error) {
	r := &batch.Report{BatchID: "b-outage", Outage: true}
	for _, q := range queries {
		r.Verdicts = append(r.Verdicts, company.NoMatch(q, apperrors.ReasonIndexUnavailable, apperrors.ErrIndexOutage))
	}
	return r, apperrors.New(apperrors.ErrIndexOutage, 0, "index failed for 3 consecutive queries")
}

type memReports struct {
	mu      sync.Mutex
	reports map[string]*batch.Report
	failAll bool
}

func newMemReports() *memReports {
	return &memReports{reports: make(map[string]*batch.Report)}
}

func (m *memReports) SaveBatch(_ context.Context, r *batch.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.BatchID] = r
	return nil
}

func (m *memReports) Batch(_ context.Context, id string) (*store.BatchSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errors.New("connection refused")
	}
	r, ok := m.reports[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 0, "batch %s", id)
	}
	return &store.BatchSummary{BatchID: r.BatchID, Total: len(r.Verdicts), Stats: r.Stats}, nil
}

func (m *memReports) Verdicts(_ context.Context, id string, decision company.Decision) ([]company.MatchVerdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 0, "batch %s", id)
	}
	var out []company.MatchVerdict
	for _, v := range r.Verdicts {
		if decision == "" || v.Decision == decision {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memReports) RecentBatches(_ context.Context, limit int) ([]store.BatchSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.BatchSummary
	for _, r := range m.reports {
		out = append(out, store.BatchSummary{BatchID: r.BatchID, Total: len(r.Verdicts)})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type countingCache struct {
	invalidated bool
}

func (c *countingCache) Stats() (int64, int64) { return 3, 1 }

func (c *countingCache) Invalidate(context.Context) (int64, error) {
	c.invalidated = true
	return 7, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (t *recordingTracker) Track(e analytics.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func newTestHandler(opts ...Option) *Handler {
	cfg := config.BatchConfig{Concurrency: 4, Deadline: 5 * time.Second, OutageWindow: 100}
	return New(prefixMatcher{}, batch.New(prefixMatcher{}, cfg), 10, opts...)
}

func serve(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMatch(t *testing.T) {
	tracker := &recordingTracker{}
	h := newTestHandler(WithTracker(tracker))

	rec := serve(h, http.MethodGet, "/api/v1/match?name=Acme+Inc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var v company.MatchVerdict
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	assert.Equal(t, company.DecisionMatch, v.Decision)
	assert.Equal(t, "acme.com", v.MatchedDomain)

	require.Len(t, tracker.events, 1)
	assert.Equal(t, analytics.SourceAPI, tracker.events[0].Source)
	assert.Equal(t, "Acme Inc", tracker.events[0].Query)
}

func TestMatchRequiresName(t *testing.T) {
	rec := serve(newTestHandler(), http.MethodGet, "/api/v1/match?name=++", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchBatchPreservesOrder(t *testing.T) {
	tracker := &recordingTracker{}
	h := newTestHandler(WithTracker(tracker))

	rec := serve(h, http.MethodPost, "/api/v1/match/batch", `{"names":["Acme","Globex","Acme Labs"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var report batch.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	require.Len(t, report.Verdicts, 3)
	assert.Equal(t, "Acme", report.Verdicts[0].Query)
	assert.Equal(t, company.DecisionNoMatch, report.Verdicts[1].Decision)
	assert.Equal(t, "Acme Labs", report.Verdicts[2].Query)
	assert.Equal(t, 2, report.Stats.Matched)

	require.Len(t, tracker.events, 3)
	assert.Equal(t, report.BatchID, tracker.events[0].BatchID)
}

func TestMatchBatchRejectsBadBodies(t *testing.T) {
	h := newTestHandler()

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"names":`, http.StatusBadRequest},
		{"empty", `{"names":[]}`, http.StatusBadRequest},
		{"too large", `{"names":["a","b","c","d","e","f","g","h","i","j","k"]}`, http.StatusRequestEntityTooLarge},
		{"save without store", `{"names":["Acme"],"save":true}`, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, http.MethodPost, "/api/v1/match/batch", tc.body)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMatchBatchBoundsBodyBeforeDecoding(t *testing.T) {
	h := newTestHandler()
	huge := `{"names":["` + strings.Repeat("a", int(h.maxBodyBytes())) + `"]}`

	rec := serve(h, http.MethodPost, "/api/v1/match/batch", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "request body exceeds")

	// A full batch of maximum-length names still fits.
	names := make([]string, 10)
	for i := range names {
		names[i] = strings.Repeat("é", 512)
	}
	body, err := json.Marshal(BatchRequest{Names: names})
	require.NoError(t, err)
	rec = serve(h, http.MethodPost, "/api/v1/match/batch", string(body))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMatchBatchSaveAndLookup(t *testing.T) {
	reports := newMemReports()
	h := newTestHandler(WithReports(reports))

	rec := serve(h, http.MethodPost, "/api/v1/match/batch", `{"names":["Acme","Globex"],"save":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var report batch.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))

	rec = serve(h, http.MethodGet, "/api/v1/batches/"+report.BatchID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary store.BatchSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, 2, summary.Total)

	rec = serve(h, http.MethodGet, "/api/v1/batches/"+report.BatchID+"/verdicts?decision=match", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var verdicts []company.MatchVerdict
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&verdicts))
	require.Len(t, verdicts, 1)
	assert.Equal(t, "Acme", verdicts[0].Query)

	rec = serve(h, http.MethodGet, "/api/v1/batches?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchLookupErrors(t *testing.T) {
	reports := newMemReports()
	h := newTestHandler(WithReports(reports))

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/v1/batches/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/api/v1/batches/x/verdicts?decision=maybe", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/api/v1/batches?limit=0", "").Code)

	reports.failAll = true
	assert.Equal(t, http.StatusInternalServerError, serve(h, http.MethodGet, "/api/v1/batches/any", "").Code)

	assert.Equal(t, http.StatusServiceUnavailable, serve(newTestHandler(), http.MethodGet, "/api/v1/batches/any", "").Code)
}

func TestMatchBatchOutage(t *testing.T) {
	h := New(prefixMatcher{}, outageRunner{}, 10)

	rec := serve(h, http.MethodPost, "/api/v1/match/batch", `{"names":["Acme","Globex"]}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Error  string       `json:"error"`
		Report batch.Report `json:"report"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body.Error, "index outage")
	require.Len(t, body.Report.Verdicts, 2)
	assert.Equal(t, apperrors.ReasonIndexUnavailable, body.Report.Verdicts[1].Reason)
}

func TestCacheEndpoints(t *testing.T) {
	rec := serve(newTestHandler(), http.MethodGet, "/api/v1/cache/stats", "")
	assert.Contains(t, rec.Body.String(), "disabled")
	rec = serve(newTestHandler(), http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	cache := &countingCache{}
	h := newTestHandler(WithCache(cache))

	rec = serve(h, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hit_rate":"75.0%"`)

	rec = serve(h, http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, cache.invalidated)
	assert.Contains(t, rec.Body.String(), `"removed":7`)
}
