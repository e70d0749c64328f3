// Package highlight locates query matches in raw block text and returns
// merged, render-ready byte ranges. Matching runs on the folded form of the
// text (lower-cased, diacritics stripped) so it agrees with the index, and
// every match is mapped back to offsets in the original text.
package highlight

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/parser"
)

// Range is a half-open [Start, End) byte range into a block's raw text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int {
	return r.End - r.Start
}

// Ranges returns the sorted, merged ranges of every term of q and every
// fuzzy term in text. An empty query yields no ranges.
func Ranges(text string, q *parser.Query, fuzzyTerms []string) []Range {
	if q.Empty() && len(fuzzyTerms) == 0 {
		return nil
	}
	f := tokenizer.Fold(text)
	var out []Range
	for _, term := range q.Terms() {
		out = append(out, Occurrences(f, term)...)
	}
	for _, token := range fuzzyTerms {
		out = append(out, words(f, token)...)
	}
	return Merge(out)
}

// Occurrences finds every match of a single term:
//
//	Literal          whole-word match
//	Phrase           plain substring
//	Wildcard Prefix  word-start match extended to the end of the word
//	Wildcard Suffix  word-end match extended back to the start of the word
//	Wildcard Contains plain substring
func Occurrences(f *tokenizer.Folded, term parser.Term) []Range {
	switch t := term.(type) {
	case parser.Literal:
		return words(f, t.Token)
	case parser.Phrase:
		return scan(f, t.Text, func(start, end int) (int, int, bool) {
			return start, end, true
		})
	case parser.Wildcard:
		return wildcard(f, t)
	default:
		return nil
	}
}

// Fuzzy finds whole-word matches of a fuzzy-expanded token.
func Fuzzy(f *tokenizer.Folded, token string) []Range {
	return words(f, token)
}

func words(f *tokenizer.Folded, token string) []Range {
	return scan(f, token, func(start, end int) (int, int, bool) {
		return start, end, !f.IsWordAt(start-1) && !f.IsWordAt(end)
	})
}

func wildcard(f *tokenizer.Folded, w parser.Wildcard) []Range {
	switch w.Kind {
	case parser.Prefix:
		return scan(f, w.Value, func(start, end int) (int, int, bool) {
			if f.IsWordAt(start - 1) {
				return 0, 0, false
			}
			for f.IsWordAt(end) {
				end++
			}
			return start, end, true
		})
	case parser.Suffix:
		return scan(f, w.Value, func(start, end int) (int, int, bool) {
			if f.IsWordAt(end) {
				return 0, 0, false
			}
			for f.IsWordAt(start - 1) {
				start--
			}
			return start, end, true
		})
	case parser.Contains:
		return scan(f, w.Value, func(start, end int) (int, int, bool) {
			return start, end, true
		})
	default:
		return nil
	}
}

// scan reports every occurrence of needle in the folded text, overlapping
// ones included, after accept has adjusted or rejected it.
func scan(f *tokenizer.Folded, needle string, accept func(start, end int) (int, int, bool)) []Range {
	if needle == "" {
		return nil
	}
	var out []Range
	for from := 0; from <= len(f.Text)-len(needle); {
		i := strings.Index(f.Text[from:], needle)
		if i < 0 {
			break
		}
		i += from
		if start, end, ok := accept(i, i+len(needle)); ok {
			rs, re := f.Span(start, end)
			out = append(out, Range{Start: rs, End: re})
		}
		from = i + 1
	}
	return out
}

// Merge sorts ranges by start and folds each into its predecessor when it
// starts at or before the predecessor's end, so touching ranges merge.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b Range) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})
	out := sorted[:1]
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}
