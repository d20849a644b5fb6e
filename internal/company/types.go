// Package company defines the records, queries, candidates and verdicts that
// flow through the matching pipeline.
package company

import "time"

// CompanyRecord is an indexed company. Domain is the match target. The
// metadata fields are optional enrichment used for index ranking.
type CompanyRecord struct {
	ID             string    `json:"id"`
	CanonicalName  string    `json:"canonical_name"`
	Aliases        []string  `json:"aliases,omitempty"`
	Domain         string    `json:"domain"`
	NormalizedName string    `json:"normalized_name,omitempty"`
	Source         string    `json:"source,omitempty"`
	EmployeeCount  int       `json:"employee_count,omitempty"`
	Country        string    `json:"country,omitempty"`
	Industry       string    `json:"industry,omitempty"`
	SizeDesc       string    `json:"size_desc,omitempty"`
	LastVerified   time.Time `json:"last_verified,omitzero"`
}

// QueryName is one name to be matched.
type QueryName struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized,omitempty"`
}

// Candidate is a record proposed for a query, with its per-signal scores.
type Candidate struct {
	RecordID     string             `json:"record_id"`
	Record       CompanyRecord      `json:"-"`
	LexicalScore float64            `json:"lexical_score"`
	Signals      map[string]float64 `json:"signals,omitempty"`
	EditDistance int                `json:"edit_distance"`
	Confidence   float64            `json:"confidence"`
}

// Decision is the outcome of matching a query.
type Decision string

const (
	DecisionMatch     Decision = "MATCH"
	DecisionNoMatch   Decision = "NO_MATCH"
	DecisionAmbiguous Decision = "AMBIGUOUS"
)

// SignalContribution explains how much one signal added to the confidence.
type SignalContribution struct {
	Signal       string  `json:"signal"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Alternative is a candidate surfaced for manual review.
type Alternative struct {
	RecordID   string  `json:"record_id"`
	Domain     string  `json:"domain"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// MatchVerdict is the output for one query. MatchedRecordID and
// MatchedDomain are set only when Decision is MATCH.
type MatchVerdict struct {
	Query           string               `json:"query"`
	NormalizedQuery string               `json:"normalized_query,omitempty"`
	MatchedRecordID string               `json:"matched_record_id,omitempty"`
	MatchedDomain   string               `json:"matched_domain,omitempty"`
	MatchedName     string               `json:"matched_name,omitempty"`
	Confidence      float64              `json:"confidence"`
	Decision        Decision             `json:"decision"`
	Signals         []SignalContribution `json:"contributing_signals,omitempty"`
	Reason          string               `json:"reason,omitempty"`
	Error           string               `json:"error,omitempty"`
	Alternatives    []Alternative        `json:"alternatives,omitempty"`
}

// NoMatch builds a NO_MATCH verdict annotated with a failure reason.
func NoMatch(q QueryName, reason string, err error) MatchVerdict {
	v := MatchVerdict{
		Query:           q.Raw,
		NormalizedQuery: q.Normalized,
		Decision:        DecisionNoMatch,
		Reason:          reason,
	}
	if err != nil {
		v.Error = err.Error()
	}
	return v
}
