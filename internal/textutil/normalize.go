package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ampersandReplacer = strings.NewReplacer("&", " and ", "+", " and ")

// FoldTitle lowercases value, strips diacritics via NFKD decomposition, and
// maps & and + to "and". Remaining runes other than letters and digits
// become single spaces.
func FoldTitle(value string) string {
	value = ampersandReplacer.Replace(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// CompactTitle returns FoldTitle without separators. Two titles that differ
// only in punctuation or spacing share a compact form.
func CompactTitle(value string) string {
	return strings.ReplaceAll(FoldTitle(value), " ", "")
}

// Tokens splits a folded title into its words.
func Tokens(value string) []string {
	return strings.Fields(FoldTitle(value))
}
