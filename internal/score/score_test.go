package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
)

func newScorer() (*Scorer, *normalize.Normalizer) {
	n := normalize.New(config.DefaultLegalSuffixes)
	return New(n), n
}

func TestScoreExactCompany(t *testing.T) {
	s, n := newScorer()
	q, err := n.Query("Acme Corporation")
	assert.NoError(t, err)

	c := s.Score(q, company.CompanyRecord{ID: "c1", CanonicalName: "ACME CORP", Domain: "acme.com"})
	assert.Equal(t, "c1", c.RecordID)
	assert.Equal(t, 0, c.EditDistance)
	assert.Equal(t, 1.0, c.Signals[TokenJaccard])
	assert.Equal(t, 1.0, c.Signals[EditRatio])
	assert.Equal(t, 1.0, c.Signals[Domain])
	assert.Equal(t, 1.0, c.Signals[Phonetic])
	assert.Equal(t, 0.0, c.Signals[Alias])
}

func TestScoreAliasHit(t *testing.T) {
	s, n := newScorer()
	q, _ := n.Query("IBM")
	c := s.Score(q, company.CompanyRecord{
		ID:            "c2",
		CanonicalName: "International Business Machines Corporation",
		Aliases:       []string{"I.B.M.", "Big Blue"},
		Domain:        "ibm.com",
	})
	assert.Equal(t, 1.0, c.Signals[Alias])
	assert.Equal(t, 1.0, c.Signals[Domain])
	// Name signals follow the alias that fits best.
	assert.Equal(t, 1.0, c.Signals[TokenJaccard])
	assert.Equal(t, 1.0, c.Signals[EditRatio])
	assert.Equal(t, 0, c.EditDistance)
}

func TestScorePrefersCanonicalNameOnTie(t *testing.T) {
	s, n := newScorer()
	q, _ := n.Query("Globex")
	c := s.Score(q, company.CompanyRecord{ID: "g", CanonicalName: "Globex", Aliases: []string{"Globex Inc"}, Domain: "globex.com"})
	assert.Equal(t, 1.0, c.Signals[TokenJaccard])
	assert.Equal(t, 1.0, c.Signals[Alias])
}

func TestSignalsBounded(t *testing.T) {
	s, n := newScorer()
	queries := []string{"", "a", "Acme", "Unrelated Biz XYZ", "東京電力", "x y z w v u"}
	records := []company.CompanyRecord{
		{},
		{ID: "e", CanonicalName: "", Domain: ""},
		{ID: "a", CanonicalName: "ACME CORP", Domain: "acme.com", Aliases: []string{"", "acme"}},
		{ID: "t", CanonicalName: "東京電力", Domain: "tepco.co.jp"},
		{ID: "l", CanonicalName: "A Very Long Company Name With Many Words Holdings", Domain: "https://www.long-name.co.uk/x"},
	}
	for _, raw := range queries {
		q := company.QueryName{Raw: raw, Normalized: n.Normalize(raw)}
		for _, rec := range records {
			c := s.Score(q, rec)
			assert.Len(t, c.Signals, len(Signals))
			for name, v := range c.Signals {
				assert.GreaterOrEqual(t, v, 0.0, "%s q=%q rec=%q", name, raw, rec.ID)
				assert.LessOrEqual(t, v, 1.0, "%s q=%q rec=%q", name, raw, rec.ID)
			}
		}
	}
}

func TestEmptyInputsScoreZero(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard(nil, []string{"a"}))
	assert.Equal(t, 0.0, Ratio("", ""))
	assert.Equal(t, 0.0, AliasSimilarity("", []string{""}))
	assert.Equal(t, 0.0, DomainSimilarity(nil, "acme"))
	assert.Equal(t, 0.0, DomainSimilarity([]string{"acme"}, ""))
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"acme", "widgets"}, []string{"acme", "tools"}), 1e-9)
	assert.Equal(t, 1.0, Jaccard([]string{"a", "a", "b"}, []string{"b", "a"}))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("acme", "acme"))
	assert.InDelta(t, 0.75, Ratio("acme", "acne"), 1e-9)
	assert.InDelta(t, 1-2.0/7.0, Ratio("société", "societe"), 1e-9)
}

func TestDomainSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, DomainSimilarity([]string{"heal", "within"}, "healwithin"))
	assert.Equal(t, 1.0, DomainSimilarity([]string{"international", "business", "machines"}, "ibm"))
	assert.InDelta(t, 0.9, DomainSimilarity([]string{"acme", "widgets"}, "acme"), 1e-9)
	assert.Less(t, DomainSimilarity([]string{"unrelated", "biz", "xyz"}, "acme"), 0.3)
}

func TestEditSimilaritySquashesSpaces(t *testing.T) {
	r, d := editSimilarity("face book", "facebook")
	assert.Equal(t, 1.0, r)
	assert.Equal(t, 0, d)
}
