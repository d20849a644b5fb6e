package analytics

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/kafka"
)

// latencyWindow bounds the latency samples kept for percentiles.
const latencyWindow = 10000

type AggregatedStats struct {
	TotalQueries     int64            `json:"total_queries"`
	Matched          int64            `json:"matched"`
	Ambiguous        int64            `json:"ambiguous"`
	NoMatch          int64            `json:"no_match"`
	Reasons          map[string]int64 `json:"reasons"`
	BySource         map[string]int64 `json:"by_source"`
	MatchRate        float64          `json:"match_rate"`
	AvgConfidence    float64          `json:"avg_confidence"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     float64          `json:"p50_latency_ms"`
	P95LatencyMs     float64          `json:"p95_latency_ms"`
	P99LatencyMs     float64          `json:"p99_latency_ms"`
	TopUnmatched     []QueryCount     `json:"top_unmatched"`
	TopAmbiguous     []QueryCount     `json:"top_ambiguous"`
	QueriesPerMinute float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running verdict statistics in memory.
type Aggregator struct {
	mu            sync.RWMutex
	total         atomic.Int64
	matched       atomic.Int64
	ambiguous     atomic.Int64
	noMatch       atomic.Int64
	reasons       map[string]int64
	bySource      map[string]int64
	confidenceSum float64
	latencies     []float64
	next          int
	unmatched     map[string]int64
	ambiguousQ    map[string]int64
	startTime     time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		reasons:    make(map[string]int64),
		bySource:   make(map[string]int64),
		latencies:  make([]float64, 0, latencyWindow),
		unmatched:  make(map[string]int64),
		ambiguousQ: make(map[string]int64),
		startTime:  time.Now(),
		logger:     slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka MessageHandler that feeds analytics events
// into agg.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil || event.Decision == "" {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Track(event)
		return nil
	}
}

// Track records one event.
func (a *Aggregator) Track(e Event) {
	a.total.Add(1)
	switch e.Decision {
	case company.DecisionMatch:
		a.matched.Add(1)
	case company.DecisionAmbiguous:
		a.ambiguous.Add(1)
	default:
		a.noMatch.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e.Reason != "" {
		a.reasons[e.Reason]++
	}
	a.bySource[e.Source]++
	a.confidenceSum += e.Confidence
	if e.LatencyMs > 0 {
		if len(a.latencies) < latencyWindow {
			a.latencies = append(a.latencies, e.LatencyMs)
		} else {
			a.latencies[a.next] = e.LatencyMs
			a.next = (a.next + 1) % latencyWindow
		}
	}
	switch {
	case e.Decision == company.DecisionAmbiguous:
		a.ambiguousQ[e.Query]++
	case e.Decision == company.DecisionNoMatch && e.Reason == apperrors.ReasonNoCandidates:
		a.unmatched[e.Query]++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries: a.total.Load(),
		Matched:      a.matched.Load(),
		Ambiguous:    a.ambiguous.Load(),
		NoMatch:      a.noMatch.Load(),
		Reasons:      make(map[string]int64, len(a.reasons)),
		BySource:     make(map[string]int64, len(a.bySource)),
	}
	for k, v := range a.reasons {
		stats.Reasons[k] = v
	}
	for k, v := range a.bySource {
		stats.BySource[k] = v
	}
	if stats.TotalQueries > 0 {
		stats.MatchRate = float64(stats.Matched) / float64(stats.TotalQueries)
		stats.AvgConfidence = a.confidenceSum / float64(stats.TotalQueries)
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopUnmatched = topN(a.unmatched, 10)
	stats.TopAmbiguous = topN(a.ambiguousQ, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}

	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
