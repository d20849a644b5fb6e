package normalize

import (
	"strings"
	"unicode"
)

// phoneticGroups maps consonants to their sound-alike group digit. Vowels and
// Y are dropped after the first letter.
var phoneticGroups = [26]byte{
	'A' - 'A': 0, 'B' - 'A': '1', 'C' - 'A': '2', 'D' - 'A': '3', 'E' - 'A': 0,
	'F' - 'A': '1', 'G' - 'A': '2', 'H' - 'A': 'H', 'I' - 'A': 0, 'J' - 'A': '2',
	'K' - 'A': '2', 'L' - 'A': '4', 'M' - 'A': '5', 'N' - 'A': '5', 'O' - 'A': 0,
	'P' - 'A': '1', 'Q' - 'A': '2', 'R' - 'A': '6', 'S' - 'A': '2', 'T' - 'A': '3',
	'U' - 'A': 0, 'V' - 'A': '1', 'W' - 'A': 'W', 'X' - 'A': '2', 'Y' - 'A': 0,
	'Z' - 'A': '2',
}

// Phonetic returns a sound-alike code per token of text, joined by spaces.
// Each code keeps the token's first letter, drops later vowels, maps
// consonants to group digits and squeezes adjacent duplicates, so
// "microsoft" and "microsfot" share the code "M26213".
func Phonetic(text string) string {
	tokens := strings.Fields(clean(text))
	codes := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if code := phoneticToken(tok); code != "" {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, " ")
}

// PhoneticCodes returns the per-token codes of an already normalized string.
func PhoneticCodes(normalized string) []string {
	tokens := Tokens(normalized)
	codes := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if code := phoneticToken(tok); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

func phoneticToken(tok string) string {
	runes := []rune(strings.ToUpper(tok))
	if len(runes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteRune(runes[0])
	var last rune
	for _, r := range runes[1:] {
		out := r
		if r >= 'A' && r <= 'Z' {
			g := phoneticGroups[r-'A']
			if g == 0 {
				continue
			}
			out = rune(g)
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if out == last {
			continue
		}
		b.WriteRune(out)
		last = out
	}
	return b.String()
}
