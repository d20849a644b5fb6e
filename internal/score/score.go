// Package score computes the similarity signals between a query name and a
// candidate company record. Every signal is bounded to [0,1] and is 0 when
// either side is empty. Scoring is pure: no I/O and no shared state.
package score

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
)

// Signal names.
const (
	TokenJaccard = "token_jaccard"
	EditRatio    = "edit_ratio"
	Alias        = "alias"
	Domain       = "domain"
	Phonetic     = "phonetic"
)

// Signals lists every signal the Scorer produces, in a fixed order.
var Signals = []string{TokenJaccard, EditRatio, Alias, Domain, Phonetic}

const (
	// fuzzyFactor discounts near matches against exact ones for the alias
	// and single-token domain comparisons.
	fuzzyFactor = 0.9
	// minDomainToken is the shortest query token compared alone against a
	// domain label.
	minDomainToken = 3
)

// Scorer scores candidates. Records that arrive without a NormalizedName are
// normalized with the same Normalizer used for queries.
type Scorer struct {
	norm *normalize.Normalizer
}

// New creates a Scorer.
func New(n *normalize.Normalizer) *Scorer {
	return &Scorer{norm: n}
}

// Score computes all signals for rec against q, which must already be
// normalized. The name signals (token_jaccard, edit_ratio, phonetic) come
// from whichever of the canonical name and the aliases fits the query best;
// the canonical name wins ties.
func (s *Scorer) Score(q company.QueryName, rec company.CompanyRecord) company.Candidate {
	name := rec.NormalizedName
	if name == "" {
		name = s.norm.Normalize(rec.CanonicalName)
	}
	qTokens := normalize.Tokens(q.Normalized)
	qCodes := normalize.PhoneticCodes(q.Normalized)

	best := compareName(q.Normalized, qTokens, qCodes, name)
	aliases := make([]string, 0, len(rec.Aliases))
	for _, a := range rec.Aliases {
		na := s.norm.Normalize(a)
		if na == "" {
			continue
		}
		aliases = append(aliases, na)
		if m := compareName(q.Normalized, qTokens, qCodes, na); m.total() > best.total() {
			best = m
		}
	}

	return company.Candidate{
		RecordID:     rec.ID,
		Record:       rec,
		EditDistance: best.distance,
		Signals: map[string]float64{
			TokenJaccard: clamp(best.jaccard),
			EditRatio:    clamp(best.ratio),
			Alias:        clamp(AliasSimilarity(q.Normalized, aliases)),
			Domain:       clamp(DomainSimilarity(qTokens, normalize.DomainLabel(rec.Domain))),
			Phonetic:     clamp(best.phonetic),
		},
	}
}

type nameMatch struct {
	jaccard  float64
	ratio    float64
	phonetic float64
	distance int
}

func (m nameMatch) total() float64 {
	return m.jaccard + m.ratio + m.phonetic
}

func compareName(query string, qTokens, qCodes []string, name string) nameMatch {
	ratio, dist := editSimilarity(query, name)
	return nameMatch{
		jaccard:  Jaccard(qTokens, normalize.Tokens(name)),
		ratio:    ratio,
		phonetic: Jaccard(qCodes, normalize.PhoneticCodes(name)),
		distance: dist,
	}
}

// Jaccard is |A∩B| / |A∪B| over the distinct elements of a and b.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, x := range a {
		set[x] |= 1
	}
	for _, x := range b {
		set[x] |= 2
	}
	var inter int
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

// Ratio is 1 - levenshtein(a,b)/max(len(a),len(b)) measured in runes.
func Ratio(a, b string) float64 {
	r, _ := ratioDistance(a, b)
	return r
}

func ratioDistance(a, b string) (float64, int) {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0, max(la, lb)
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(max(la, lb)), d
}

// editSimilarity compares both the spaced and the squashed forms so that
// "face book" and "facebook" are near-identical, returning the better ratio
// and its distance.
func editSimilarity(a, b string) (float64, int) {
	r1, d1 := ratioDistance(a, b)
	r2, d2 := ratioDistance(squash(a), squash(b))
	if r2 > r1 {
		return r2, d2
	}
	return r1, d1
}

// AliasSimilarity is 1 for an exact alias hit and a discounted edit ratio
// for the closest fuzzy one.
func AliasSimilarity(query string, aliases []string) float64 {
	if query == "" {
		return 0
	}
	var best float64
	for _, a := range aliases {
		if a == query {
			return 1
		}
		if r, _ := editSimilarity(query, a); r > best {
			best = r
		}
	}
	return fuzzyFactor * best
}

// DomainSimilarity compares query tokens with a domain label (no TLD). It
// takes the best of the concatenated tokens against the label, an exact
// acronym hit ("international business machines" vs "ibm"), and a
// discounted single-token match.
func DomainSimilarity(tokens []string, label string) float64 {
	if len(tokens) == 0 || label == "" {
		return 0
	}
	best := Ratio(strings.Join(tokens, ""), label)
	if len(tokens) >= 2 && acronym(tokens) == label {
		return 1
	}
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minDomainToken {
			continue
		}
		if r := fuzzyFactor * Ratio(tok, label); r > best {
			best = r
		}
	}
	return best
}

func acronym(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		r, _ := utf8.DecodeRuneInString(t)
		b.WriteRune(r)
	}
	return b.String()
}

func squash(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
