// Package analytics aggregates verdict events into running statistics
// served over HTTP and snapshotted to PostgreSQL.
package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

// Event sources.
const (
	SourceAPI   = "api"
	SourceBatch = "batch"
)

// Event describes one verdict for analytics.
type Event struct {
	Source     string           `json:"source"`
	BatchID    string           `json:"batch_id,omitempty"`
	Query      string           `json:"query"`
	Decision   company.Decision `json:"decision"`
	Reason     string           `json:"reason,omitempty"`
	Confidence float64          `json:"confidence"`
	LatencyMs  float64          `json:"latency_ms,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	RequestID  string           `json:"request_id,omitempty"`
}

// Tracker receives verdict events.
type Tracker interface {
	Track(Event)
}

// FromVerdict builds an Event for v.
func FromVerdict(source string, v company.MatchVerdict, latency time.Duration) Event {
	return Event{
		Source:     source,
		Query:      v.Query,
		Decision:   v.Decision,
		Reason:     v.Reason,
		Confidence: v.Confidence,
		LatencyMs:  float64(latency.Microseconds()) / 1000,
		Timestamp:  time.Now().UTC(),
	}
}
