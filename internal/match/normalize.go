package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey folds a decision key or vocabulary word into its canonical lookup form:
// lower case, accents stripped, whitespace and dashes turned into underscores, and any
// character outside [a-z0-9._] dropped. "Dominance.Takes Lead" becomes "dominance.takes_lead".
func NormalizeKey(input string) string {
	folded := strings.ToLower(strings.TrimSpace(stripAccents(input)))
	if folded == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastUnderscore := false
	for _, r := range folded {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.ReplaceAll(b.String(), "_.", ".")
	out = strings.ReplaceAll(out, "._", ".")
	return strings.Trim(out, "_.")
}

// NormalizeLabel canonicalises a detector object label ("Latex Glove" -> "latex_glove").
func NormalizeLabel(label string) string {
	return NormalizeKey(label)
}

// Prefix returns the first dot-delimited segment of a normalised key, or "" when the key
// has no namespace.
func Prefix(key string) string {
	idx := strings.IndexByte(key, '.')
	if idx <= 0 {
		return ""
	}
	return key[:idx]
}

func stripAccents(in string) string {
	// transform chains keep internal state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, in)
	if err != nil {
		return in
	}
	return out
}
