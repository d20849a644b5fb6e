// Package api serves the match pipeline over HTTP: single lookups, inline
// batches, stored batch reports and the candidate cache controls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/batch"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200

	// A name is at most 512 runes, which JSON-escapes to well under 4 KiB.
	bodyBytesPerName    = 4 << 10
	bodyBytesOverhead   = 64 << 10
	defaultMaxBodyBytes = 32 << 20
)

// Matcher answers single queries.
type Matcher interface {
	MatchQuery(ctx context.Context, q company.QueryName) company.MatchVerdict
}

// BatchRunner runs inline batches. *batch.Orchestrator satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, queries []company.QueryName, concurrency int) (*batch.Report, error)
}

// ReportStore persists and serves batch reports. *store.VerdictStore
// satisfies it.
type ReportStore interface {
	SaveBatch(ctx context.Context, r *batch.Report) error
	Batch(ctx context.Context, batchID string) (*store.BatchSummary, error)
	Verdicts(ctx context.Context, batchID string, decision company.Decision) ([]company.MatchVerdict, error)
	RecentBatches(ctx context.Context, limit int) ([]store.BatchSummary, error)
}

// CandidateCache is the retriever cache. *retrieve.Cache satisfies it.
type CandidateCache interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) (int64, error)
}

// BatchRequest is the body of POST /api/v1/match/batch.
type BatchRequest struct {
	Names       []string `json:"names"`
	Concurrency int      `json:"concurrency,omitempty"`
	Save        bool     `json:"save,omitempty"`
}

type Handler struct {
	matcher      Matcher
	runner       BatchRunner
	reports      ReportStore
	cache        CandidateCache
	tracker      analytics.Tracker
	maxBatchSize int
	logger       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithReports enables persisted batches and the batch lookup endpoints.
func WithReports(s ReportStore) Option {
	return func(h *Handler) { h.reports = s }
}

// WithCache exposes cache statistics and invalidation.
func WithCache(c CandidateCache) Option {
	return func(h *Handler) { h.cache = c }
}

// WithTracker reports every verdict to analytics.
func WithTracker(t analytics.Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

// maxBodyBytes bounds a batch request body before it is decoded.
func (h *Handler) maxBodyBytes() int64 {
	if h.maxBatchSize <= 0 {
		return defaultMaxBodyBytes
	}
	return int64(h.maxBatchSize)*bodyBytesPerName + bodyBytesOverhead
}

func New(m Matcher, runner BatchRunner, maxBatchSize int, opts ...Option) *Handler {
	h := &Handler{
		matcher:      m,
		runner:       runner,
		maxBatchSize: maxBatchSize,
		logger:       slog.Default().With("component", "match-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/match", h.Match)
	mux.HandleFunc("POST /api/v1/match/batch", h.MatchBatch)
	mux.HandleFunc("GET /api/v1/batches", h.ListBatches)
	mux.HandleFunc("GET /api/v1/batches/{id}", h.GetBatch)
	mux.HandleFunc("GET /api/v1/batches/{id}/verdicts", h.BatchVerdicts)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	name := r.URL.Query().Get("name")
	if strings.TrimSpace(name) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'name' is required")
		return
	}

	v := h.matcher.MatchQuery(ctx, company.QueryName{Raw: name})
	latency := time.Since(start)

	log.Info("match completed",
		"query", name,
		"decision", v.Decision,
		"confidence", v.Confidence,
		"reason", v.Reason,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		ev := analytics.FromVerdict(analytics.SourceAPI, v, latency)
		ev.RequestID = logger.RequestID(ctx)
		h.tracker.Track(ev)
	}

	h.writeJSON(w, http.StatusOK, v)
}

func (h *Handler) MatchBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	limit := h.maxBodyBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", limit))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Names) == 0 {
		h.writeError(w, http.StatusBadRequest, "names must not be empty")
		return
	}
	if h.maxBatchSize > 0 && len(req.Names) > h.maxBatchSize {
		h.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch of %d names exceeds the limit of %d", len(req.Names), h.maxBatchSize))
		return
	}
	if req.Save && h.reports == nil {
		h.writeError(w, http.StatusServiceUnavailable, "batch persistence is disabled")
		return
	}

	queries := make([]company.QueryName, len(req.Names))
	for i, n := range req.Names {
		queries[i] = company.QueryName{Raw: n}
	}
	report, runErr := h.runner.Run(ctx, queries, req.Concurrency)
	if report == nil {
		log.Error("batch failed without a report", "error", runErr)
		h.writeError(w, http.StatusInternalServerError, "batch failed")
		return
	}

	h.track(ctx, report)

	if req.Save {
		if err := h.reports.SaveBatch(ctx, report); err != nil {
			log.Error("saving batch failed", "batch_id", report.BatchID, "error", err)
			h.writeError(w, http.StatusInternalServerError, "saving batch failed")
			return
		}
	}

	if runErr != nil {
		log.Error("batch aborted", "batch_id", report.BatchID, "error", runErr)
		h.writeJSON(w, apperrors.HTTPStatusCode(runErr), map[string]any{
			"error":  runErr.Error(),
			"report": report,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.writeError(w, http.StatusServiceUnavailable, "batch persistence is disabled")
		return
	}
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxListLimit)
	}
	batches, err := h.reports.RecentBatches(r.Context(), limit)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if batches == nil {
		batches = []store.BatchSummary{}
	}
	h.writeJSON(w, http.StatusOK, batches)
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.writeError(w, http.StatusServiceUnavailable, "batch persistence is disabled")
		return
	}
	summary, err := h.reports.Batch(r.Context(), r.PathValue("id"))
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) BatchVerdicts(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.writeError(w, http.StatusServiceUnavailable, "batch persistence is disabled")
		return
	}
	decision := company.Decision(strings.ToUpper(r.URL.Query().Get("decision")))
	switch decision {
	case "", company.DecisionMatch, company.DecisionAmbiguous, company.DecisionNoMatch:
	default:
		h.writeError(w, http.StatusBadRequest, "decision must be MATCH, AMBIGUOUS or NO_MATCH")
		return
	}

	id := r.PathValue("id")
	if _, err := h.reports.Batch(r.Context(), id); err != nil {
		h.storeError(w, r, err)
		return
	}
	verdicts, err := h.reports.Verdicts(r.Context(), id, decision)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if verdicts == nil {
		verdicts = []company.MatchVerdict{}
	}
	h.writeJSON(w, http.StatusOK, verdicts)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	removed, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "removed": removed})
}

func (h *Handler) track(ctx context.Context, report *batch.Report) {
	if h.tracker == nil {
		return
	}
	requestID := logger.RequestID(ctx)
	for _, v := range report.Verdicts {
		ev := analytics.FromVerdict(analytics.SourceBatch, v, 0)
		ev.BatchID = report.BatchID
		ev.RequestID = requestID
		h.tracker.Track(ev)
	}
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	logger.FromContext(r.Context()).Error("store query failed", "path", r.URL.Path, "error", err)
	h.writeError(w, status, "store query failed")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
