// Package tokenizer provides text normalisation and tokenisation for the
// block index. Normalisation decomposes Unicode, strips combining marks,
// unifies typographic quotes and dashes, collapses whitespace and
// lower-cases; tokens are the maximal [a-z0-9_] runs of normalised text.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var punctuation = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
	"–", "-", "—", "-",
)

// stripMarks returns a fresh transformer; chained transformers carry state
// and must not be shared between goroutines.
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Normalize returns the canonical search form of text. It is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	stripped, _, err := transform.String(stripMarks(), lowered)
	if err != nil {
		stripped = lowered
	}
	stripped = punctuation.Replace(stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// Tokenize extracts every maximal run of [a-z0-9_] from normalised text in
// left-to-right order. Duplicates are kept.
func Tokenize(normalized string) []string {
	tokens := make([]string, 0, len(normalized)/6)
	start := -1
	for i := 0; i < len(normalized); i++ {
		if IsWordByte(normalized[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, normalized[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, normalized[start:])
	}
	return tokens
}

// Unique returns the distinct tokens of tokens, keeping first occurrences.
func Unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// IsWordByte reports whether b belongs to the token alphabet.
func IsWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
