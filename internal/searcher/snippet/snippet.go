// Package snippet chooses the part of a long block worth showing: a single
// window around the query's matches, widened by lead and trail context and
// snapped so it neither starts nor ends mid-word.
package snippet

import (
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/highlight"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
)

// Window returns the byte range of text to display, or nil when no literal,
// phrase or fuzzy term occurs in text or when the window would cover the
// whole block. Wildcards do not anchor windows.
func Window(text string, q *parser.Query, fuzzyTerms []string, opts config.SnippetConfig) *highlight.Range {
	f := tokenizer.Fold(text)
	var hits []highlight.Range
	for _, term := range q.Terms() {
		switch term.(type) {
		case parser.Literal, parser.Phrase:
			hits = append(hits, highlight.Occurrences(f, term)...)
		case parser.Wildcard:
		}
	}
	for _, token := range fuzzyTerms {
		hits = append(hits, highlight.Fuzzy(f, token)...)
	}
	if len(hits) == 0 {
		return nil
	}

	first := hits[0]
	last := hits[0].End
	for _, h := range hits[1:] {
		if h.Start < first.Start || h.Start == first.Start && h.End > first.End {
			first = h
		}
		last = max(last, h.End)
	}

	w := window{text: text, boundary: opts.BoundaryChars}
	start := w.snapOutLeft(max(0, first.Start-opts.Lead))
	end := w.snapOutRight(min(len(text), last+opts.Trail))

	if opts.MaxChars > 0 && end-start > opts.MaxChars {
		start, end = w.shave(start, end, first, opts.MaxChars)
	}
	if start == 0 && end == len(text) {
		return nil
	}
	return &highlight.Range{Start: start, End: end}
}

type window struct {
	text     string
	boundary string
}

func (w window) isBoundary(i int) bool {
	return strings.IndexByte(w.boundary, w.text[i]) >= 0
}

// snapOutLeft moves i left until it is 0 or just after a boundary byte.
func (w window) snapOutLeft(i int) int {
	for i > 0 && !w.isBoundary(i-1) {
		i--
	}
	return i
}

// snapOutRight moves i right until it is len(text) or on a boundary byte.
func (w window) snapOutRight(i int) int {
	for i < len(w.text) && !w.isBoundary(i) {
		i++
	}
	return i
}

// shave trims an oversized window toward maxChars, taking roughly half
// from each end. It never cuts into the first match, never moves a start
// of 0, and snaps each moved edge inward to a boundary when one exists
// before the first match.
func (w window) shave(start, end int, first highlight.Range, maxChars int) (int, int) {
	excess := end - start - maxChars
	left := 0
	if start > 0 {
		left = min(excess/2, first.Start-start)
	}
	right := excess - left
	newEnd := max(end-right, first.End)
	if over := newEnd - (start + left) - maxChars; over > 0 && start > 0 {
		left = min(left+over, first.Start-start)
	}
	newStart := start + left

	if newStart != start {
		newStart = w.snapInLeft(newStart, first.Start)
	}
	if newEnd != end {
		newEnd = w.snapInRight(newEnd, first.End)
	}
	return newStart, newEnd
}

// snapInLeft moves i right to just after the next boundary byte, without
// passing limit. Without such a boundary it only aligns i to a rune start.
func (w window) snapInLeft(i, limit int) int {
	for j := i; j <= limit; j++ {
		if j == 0 || w.isBoundary(j-1) {
			return j
		}
	}
	for i < limit && !utf8.RuneStart(w.text[i]) {
		i++
	}
	return i
}

// snapInRight moves i left onto the previous boundary byte, without passing
// limit. Without such a boundary it only aligns i to a rune start.
func (w window) snapInRight(i, limit int) int {
	for j := i; j >= limit; j-- {
		if j == len(w.text) || w.isBoundary(j) {
			return j
		}
	}
	for i > limit && i < len(w.text) && !utf8.RuneStart(w.text[i]) {
		i--
	}
	return i
}
