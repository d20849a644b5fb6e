package batch

import (
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

// Stats summarises one batch run.
type Stats struct {
	Total        int            `json:"total"`
	Completed    int            `json:"completed"`
	Matched      int            `json:"matched"`
	Ambiguous    int            `json:"ambiguous"`
	NoMatch      int            `json:"no_match"`
	Reasons      map[string]int `json:"reasons,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	Throughput   float64        `json:"throughput_per_sec"`
	P50LatencyMs float64        `json:"p50_latency_ms"`
	P95LatencyMs float64        `json:"p95_latency_ms"`
	P99LatencyMs float64        `json:"p99_latency_ms"`
}

// summarize counts decisions and reasons over verdicts. latencies holds
// the per-query latency of every query that finished inside the deadline.
func summarize(verdicts []company.MatchVerdict, latencies []time.Duration, elapsed time.Duration) Stats {
	stats := Stats{
		Total:      len(verdicts),
		Completed:  len(latencies),
		Reasons:    make(map[string]int),
		DurationMs: elapsed.Milliseconds(),
	}
	for _, v := range verdicts {
		switch v.Decision {
		case company.DecisionMatch:
			stats.Matched++
		case company.DecisionAmbiguous:
			stats.Ambiguous++
		default:
			stats.NoMatch++
		}
		if v.Reason != "" {
			stats.Reasons[v.Reason]++
		}
	}
	if secs := elapsed.Seconds(); secs > 0 {
		stats.Throughput = float64(stats.Completed) / secs
	}
	if len(latencies) > 0 {
		sorted := slices.Clone(latencies)
		slices.Sort(sorted)
		stats.P50LatencyMs = millis(percentile(sorted, 50))
		stats.P95LatencyMs = millis(percentile(sorted, 95))
		stats.P99LatencyMs = millis(percentile(sorted, 99))
	}
	return stats
}

func percentile(sorted []time.Duration, pct int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
