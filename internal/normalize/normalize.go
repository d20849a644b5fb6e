// Package normalize canonicalizes company names so that superficially
// different spellings compare equal. It folds case, transliterates
// accented letters, drops punctuation and strips legal-entity suffixes.
// Normalize is idempotent: re-normalizing its output is a no-op.
package normalize

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
)

// MaxQueryRunes bounds the length of a query name.
const MaxQueryRunes = 512

// transliterations cover letters that survive NFKD decomposition unchanged.
var transliterations = map[rune]string{
	'ß': "ss", 'æ': "ae", 'ø': "o", 'œ': "oe", 'ł': "l",
	'đ': "d", 'ð': "d", 'þ': "th", 'ı': "i", 'ŀ': "l",
}

var leadingNoise = map[string]struct{}{"the": {}}

// Normalizer holds the configured legal suffix list. It is safe for
// concurrent use.
type Normalizer struct {
	trailing map[string]struct{}
}

// New creates a Normalizer that strips the given legal suffixes. Suffixes are
// themselves normalized, so "Inc." and "inc" are equivalent entries.
func New(legalSuffixes []string) *Normalizer {
	n := &Normalizer{trailing: map[string]struct{}{"and": {}}}
	for _, s := range legalSuffixes {
		for _, tok := range strings.Fields(clean(s)) {
			n.trailing[tok] = struct{}{}
		}
	}
	return n
}

// Normalize returns the canonical form of text. Empty or punctuation-only
// input yields "".
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	tokens := strings.Fields(clean(text))
	tokens = n.stripAffixes(tokens)
	return strings.Join(tokens, " ")
}

// Query normalizes a raw query name, rejecting input that cannot be matched.
func (n *Normalizer) Query(raw string) (company.QueryName, error) {
	q := company.QueryName{Raw: raw}
	if utf8.RuneCountInString(raw) > MaxQueryRunes {
		return q, apperrors.Newf(apperrors.ErrInvalidInput, 0, "query exceeds %d characters", MaxQueryRunes)
	}
	q.Normalized = n.Normalize(raw)
	if q.Normalized == "" {
		return q, fmt.Errorf("query %q normalizes to empty: %w", raw, apperrors.ErrInvalidInput)
	}
	return q, nil
}

// Record fills in NormalizedName from CanonicalName.
func (n *Normalizer) Record(rec company.CompanyRecord) company.CompanyRecord {
	rec.NormalizedName = n.Normalize(rec.CanonicalName)
	return rec
}

// Tokens splits a normalized string into its word tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// stripAffixes removes a leading "the" and trailing legal suffixes until
// nothing changes, never removing the last remaining token.
func (n *Normalizer) stripAffixes(tokens []string) []string {
	for changed := true; changed && len(tokens) > 1; {
		changed = false
		if _, ok := n.trailing[tokens[len(tokens)-1]]; ok {
			tokens = tokens[:len(tokens)-1]
			changed = true
			continue
		}
		if _, ok := leadingNoise[tokens[0]]; ok {
			tokens = tokens[1:]
			changed = true
		}
	}
	return tokens
}

// clean folds case, strips diacritics and symbols, and reduces punctuation to
// spaces. Apostrophes and periods are dropped outright so that "A.C.M.E."
// and "McDonald's" stay single words. Decomposition can surface letters that
// fold again, so clean repeats until its output is stable.
func clean(text string) string {
	text = cleanOnce(text)
	for range 3 {
		next := cleanOnce(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func cleanOnce(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.In(r, unicode.So, unicode.Sk, unicode.Sc, unicode.Cc) {
			return ' '
		}
		return r
	}, text)
	decomposed := norm.NFKD.String(cases.Fold().String(norm.NFKD.String(text)))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
		case r == '\'' || r == '’' || r == '‘' || r == '`' || r == '.':
		case r == '&':
			b.WriteString(" and ")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			r = unicode.ToLower(r)
			if rep, ok := transliterations[r]; ok {
				b.WriteString(rep)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte(' ')
		}
	}
	return norm.NFC.String(b.String())
}
