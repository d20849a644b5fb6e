// Package rank turns scored candidates into a match verdict: it combines
// signals into a weighted confidence, orders candidates deterministically and
// applies the match / ambiguous / no-match thresholds.
package rank

import (
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/score"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
)

const (
	weightTolerance = 1e-6
	maxAlternatives = 3
)

// Policy is an immutable decision policy, safe for concurrent use.
type Policy struct {
	weights         map[string]float64
	names           []string
	high            float64
	low             float64
	minContribution float64
}

// NewPolicy validates the matcher configuration and builds a Policy.
func NewPolicy(cfg config.MatcherConfig) (*Policy, error) {
	if cfg.LowThreshold < 0 || cfg.HighThreshold > 1 || cfg.LowThreshold >= cfg.HighThreshold {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, 0,
			"thresholds must satisfy 0 <= low < high <= 1, got low=%.4f high=%.4f", cfg.LowThreshold, cfg.HighThreshold)
	}
	if len(cfg.Weights) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidConfig, 0, "no signal weights configured")
	}
	var sum float64
	names := make([]string, 0, len(cfg.Weights))
	weights := make(map[string]float64, len(cfg.Weights))
	for name, w := range cfg.Weights {
		if !slices.Contains(score.Signals, name) {
			return nil, apperrors.Newf(apperrors.ErrInvalidConfig, 0,
				"unknown signal %q (known: %s)", name, strings.Join(score.Signals, ", "))
		}
		if w < 0 || math.IsNaN(w) {
			return nil, apperrors.Newf(apperrors.ErrInvalidConfig, 0, "weight for %q must be >= 0", name)
		}
		weights[name] = w
		names = append(names, name)
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, 0, "weights must sum to 1.0, got %.6f", sum)
	}
	sort.Strings(names)
	return &Policy{
		weights:         weights,
		names:           names,
		high:            cfg.HighThreshold,
		low:             cfg.LowThreshold,
		minContribution: cfg.MinContribution,
	}, nil
}

// HighThreshold returns the MATCH threshold.
func (p *Policy) HighThreshold() float64 { return p.high }

// LowThreshold returns the NO_MATCH threshold.
func (p *Policy) LowThreshold() float64 { return p.low }

// Confidence is the weighted sum of signals, rounded to four decimals.
// Missing signals count as 0.
func (p *Policy) Confidence(signals map[string]float64) float64 {
	var c float64
	for _, name := range p.names {
		c += p.weights[name] * signals[name]
	}
	return round4(math.Min(1, math.Max(0, c)))
}

// Classify applies the thresholds: >= high is MATCH, <= low is NO_MATCH,
// anything between is AMBIGUOUS.
func (p *Policy) Classify(confidence float64) company.Decision {
	switch {
	case confidence >= p.high:
		return company.DecisionMatch
	case confidence <= p.low:
		return company.DecisionNoMatch
	default:
		return company.DecisionAmbiguous
	}
}

// Contributions lists the signals whose weighted value reaches the minimum
// contribution, largest first.
func (p *Policy) Contributions(signals map[string]float64) []company.SignalContribution {
	out := make([]company.SignalContribution, 0, len(p.names))
	for _, name := range p.names {
		w := p.weights[name]
		v := signals[name]
		contrib := round4(w * v)
		if contrib <= 0 || contrib < p.minContribution {
			continue
		}
		out = append(out, company.SignalContribution{
			Signal:       name,
			Value:        round4(v),
			Weight:       w,
			Contribution: contrib,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Contribution != out[j].Contribution {
			return out[i].Contribution > out[j].Contribution
		}
		return out[i].Signal < out[j].Signal
	})
	return out
}

// Decide scores every candidate, picks the best one and builds the verdict.
// candidates is reordered in place: highest confidence first, then shorter
// edit distance, then record id.
func (p *Policy) Decide(q company.QueryName, candidates []company.Candidate) company.MatchVerdict {
	v := company.MatchVerdict{
		Query:           q.Raw,
		NormalizedQuery: q.Normalized,
		Decision:        company.DecisionNoMatch,
	}
	if len(candidates) == 0 {
		v.Reason = apperrors.ReasonNoCandidates
		return v
	}
	for i := range candidates {
		candidates[i].Confidence = p.Confidence(candidates[i].Signals)
	}
	Order(candidates)

	best := candidates[0]
	v.Confidence = best.Confidence
	v.Decision = p.Classify(best.Confidence)
	v.Signals = p.Contributions(best.Signals)

	switch v.Decision {
	case company.DecisionMatch:
		if best.RecordID == "" {
			// A match must name its record.
			v.Decision = company.DecisionAmbiguous
			v.Reason = apperrors.ReasonMissingRecordID
			break
		}
		v.MatchedRecordID = best.RecordID
		v.MatchedDomain = best.Record.Domain
		v.MatchedName = best.Record.CanonicalName
	case company.DecisionAmbiguous:
		for _, c := range candidates {
			if len(v.Alternatives) == maxAlternatives || c.Confidence <= p.low {
				break
			}
			v.Alternatives = append(v.Alternatives, company.Alternative{
				RecordID:   c.RecordID,
				Domain:     c.Record.Domain,
				Name:       c.Record.CanonicalName,
				Confidence: c.Confidence,
			})
		}
	}
	return v
}

// Order sorts candidates by confidence descending, edit distance ascending,
// then record id ascending.
func Order(candidates []company.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.EditDistance != b.EditDistance {
			return a.EditDistance < b.EditDistance
		}
		return a.RecordID < b.RecordID
	})
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
