// Package ingest loads company records into the search index: it reads
// records from a source, validates them, derives the searchable document
// fields and uploads them in bounded parallel batches.
package ingest

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
)

const (
	ngramMin = 3
	ngramMax = 15
)

// DocumentBuilder derives index documents from records.
type DocumentBuilder struct {
	norm *normalize.Normalizer
}

// NewDocumentBuilder creates a DocumentBuilder using n for names and aliases.
func NewDocumentBuilder(n *normalize.Normalizer) *DocumentBuilder {
	return &DocumentBuilder{norm: n}
}

// Build returns the index document for rec.
func (b *DocumentBuilder) Build(rec company.CompanyRecord) index.Document {
	label := normalize.DomainLabel(rec.Domain)
	d := index.Document{
		ID:              rec.ID,
		CompanyName:     rec.CanonicalName,
		NormalizedName:  b.norm.Normalize(rec.CanonicalName),
		Aliases:         rec.Aliases,
		Domain:          normalize.Host(rec.Domain),
		DomainPart:      label,
		DomainNgrams:    normalize.PrefixNgrams(label, ngramMin, ngramMax),
		CompanyPhonetic: normalize.Phonetic(rec.CanonicalName),
		DomainPhonetic:  normalize.Phonetic(label),
		QualityScore:    QualityScore(rec),
		SourceRank:      SourceRank(rec.Source),
		Source:          rec.Source,
		EmployeeCount:   rec.EmployeeCount,
		Country:         rec.Country,
		Industry:        rec.Industry,
		SizeDesc:        rec.SizeDesc,
		LastVerified:    rec.LastVerified,
	}
	for _, a := range rec.Aliases {
		na := b.norm.Normalize(a)
		if na == "" {
			continue
		}
		d.NormalizedAliases = append(d.NormalizedAliases, na)
		if code := normalize.Phonetic(a); code != "" {
			d.AliasPhonetic = append(d.AliasPhonetic, code)
		}
	}
	return d
}

// QualityScore rates how complete and trustworthy a record's metadata is,
// from 0 to 45. Richer records rank first among equally relevant hits.
func QualityScore(rec company.CompanyRecord) int {
	score := 0
	src := strings.ToUpper(rec.Source)
	switch {
	case strings.Contains(src, "PDL"):
		score += 20
	case strings.Contains(src, "BOMBORA"):
		score += 15
	case strings.Contains(src, "HGDATA"):
		score += 10
	}
	if rec.EmployeeCount > 0 {
		score += 10
	}
	if rec.Industry != "" {
		score += 5
	}
	if rec.Country != "" {
		score += 2
	}
	if rec.SizeDesc != "" {
		score += 3
	}
	if !rec.LastVerified.IsZero() {
		score += 5
	}
	return score
}

// SourceRank orders data providers, lower is better. Records without a
// source rank last.
func SourceRank(source string) int {
	if strings.TrimSpace(source) == "" {
		return 99
	}
	src := strings.ToUpper(source)
	switch {
	case strings.Contains(src, "PDL"):
		return 1
	case strings.Contains(src, "BOMBORA"):
		return 2
	case strings.Contains(src, "HGDATA"):
		return 3
	default:
		return 4
	}
}
