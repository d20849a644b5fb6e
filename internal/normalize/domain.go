package normalize

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

// Host reduces a domain or URL to a bare lowercase host name:
// scheme, credentials, port, path and a leading "www." are removed.
func Host(domain string) string {
	h := strings.ToLower(strings.TrimSpace(domain))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndexByte(h, '@'); i >= 0 {
		h = h[i+1:]
	}
	if i := strings.LastIndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	h = strings.TrimSuffix(h, ".")
	for _, p := range []string{"www.", "www1.", "www2.", "www3."} {
		if strings.HasPrefix(h, p) && strings.Count(h, ".") > 1 {
			h = h[len(p):]
			break
		}
	}
	return h
}

// DomainLabel returns the registrable label of a domain with its public
// suffix removed: "https://www.acme.co.uk/about" gives "acme". Hyphens and
// underscores are dropped so "heal-within.com" gives "healwithin".
func DomainLabel(domain string) string {
	host := Host(domain)
	if host == "" {
		return ""
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		host = etld1
	}
	label := host
	if i := strings.IndexByte(label, '.'); i >= 0 {
		label = label[:i]
	}
	return strings.NewReplacer("-", "", "_", "").Replace(label)
}

// PrefixNgrams returns the prefixes of text with lengths min..max runes.
// Text shorter than min is returned whole so short names stay searchable.
func PrefixNgrams(text string, min, max int) []string {
	text = strings.Join(strings.Fields(clean(text)), "")
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil
	}
	if n < min {
		return []string{text}
	}
	runes := []rune(text)
	if max > n {
		max = n
	}
	out := make([]string, 0, max-min+1)
	for i := min; i <= max; i++ {
		out = append(out, string(runes[:i]))
	}
	return out
}
