// Package parser turns raw query strings into a Query: AND-combined literal
// tokens, quoted phrases and wildcards.
//
// Grammar, applied in order:
//
//	"quoted text"   phrase, matched as a contiguous substring
//	prefix*         token starts with prefix
//	*suffix         token ends with suffix
//	*contains*      token contains the value anywhere
//	anything else   literal token(s), AND-combined
//
// An unterminated quote is not a phrase; its content is parsed as ordinary
// terms.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/tokenizer"
)

type WildcardKind int

const (
	Prefix WildcardKind = iota
	Suffix
	Contains
)

func (k WildcardKind) String() string {
	switch k {
	case Prefix:
		return "prefix"
	case Suffix:
		return "suffix"
	case Contains:
		return "contains"
	default:
		return "unknown"
	}
}

// Match reports whether token satisfies a wildcard of kind k with value.
func (k WildcardKind) Match(token, value string) bool {
	switch k {
	case Prefix:
		return strings.HasPrefix(token, value)
	case Suffix:
		return strings.HasSuffix(token, value)
	case Contains:
		return strings.Contains(token, value)
	default:
		return false
	}
}

// Term is one parsed query element: a Literal, a Phrase or a Wildcard.
type Term interface {
	term()
}

type Literal struct {
	Token string
}

type Phrase struct {
	Text string
}

type Wildcard struct {
	Kind  WildcardKind
	Value string
}

func (Literal) term()  {}
func (Phrase) term()   {}
func (Wildcard) term() {}

// Query is the parsed form of a raw query string. All values are normalised.
type Query struct {
	Raw       string
	Tokens    []string
	Phrases   []string
	Wildcards []Wildcard
}

// Parse never fails; malformed input degrades to plain terms.
func Parse(raw string) *Query {
	q := &Query{
		Raw:       raw,
		Tokens:    make([]string, 0),
		Phrases:   make([]string, 0),
		Wildcards: make([]Wildcard, 0),
	}
	normalized := tokenizer.Normalize(raw)
	if normalized == "" {
		return q
	}

	remainder := q.extractPhrases(normalized)
	for _, word := range strings.Fields(remainder) {
		q.addTerm(word)
	}
	return q
}

func (q *Query) extractPhrases(s string) string {
	var rest strings.Builder
	for {
		open := strings.IndexByte(s, '"')
		if open < 0 {
			rest.WriteString(s)
			break
		}
		closing := strings.IndexByte(s[open+1:], '"')
		if closing < 0 {
			rest.WriteString(s[:open])
			rest.WriteByte(' ')
			rest.WriteString(s[open+1:])
			break
		}
		rest.WriteString(s[:open])
		rest.WriteByte(' ')
		if phrase := strings.TrimSpace(s[open+1 : open+1+closing]); phrase != "" {
			q.Phrases = append(q.Phrases, phrase)
		}
		s = s[open+1+closing+1:]
	}
	return rest.String()
}

func (q *Query) addTerm(word string) {
	leading := strings.HasPrefix(word, "*")
	trailing := strings.HasSuffix(word, "*")
	switch {
	case leading && trailing:
		q.addWildcard(Contains, strings.Trim(word, "*"))
	case trailing:
		q.addWildcard(Prefix, strings.TrimRight(word, "*"))
	case leading:
		q.addWildcard(Suffix, strings.TrimLeft(word, "*"))
	default:
		q.Tokens = append(q.Tokens, tokenizer.Tokenize(word)...)
	}
}

func (q *Query) addWildcard(kind WildcardKind, value string) {
	if value == "" {
		return
	}
	q.Wildcards = append(q.Wildcards, Wildcard{Kind: kind, Value: value})
}

// Empty reports whether the query has no terms and therefore matches every
// block.
func (q *Query) Empty() bool {
	return len(q.Tokens) == 0 && len(q.Phrases) == 0 && len(q.Wildcards) == 0
}

// Terms lists every term as a variant, literals first, then phrases, then
// wildcards.
func (q *Query) Terms() []Term {
	terms := make([]Term, 0, len(q.Tokens)+len(q.Phrases)+len(q.Wildcards))
	for _, t := range q.Tokens {
		terms = append(terms, Literal{Token: t})
	}
	for _, p := range q.Phrases {
		terms = append(terms, Phrase{Text: p})
	}
	for _, w := range q.Wildcards {
		terms = append(terms, w)
	}
	return terms
}

// Signature is an order-independent serialisation of the query's terms.
// Queries that differ only in term order or repetition share a signature.
func (q *Query) Signature() string {
	var b strings.Builder
	writeSorted(&b, 't', q.Tokens)
	writeSorted(&b, 'p', q.Phrases)
	wildcards := make([]string, len(q.Wildcards))
	for i, w := range q.Wildcards {
		wildcards[i] = w.Kind.String() + ":" + w.Value
	}
	writeSorted(&b, 'w', wildcards)
	return b.String()
}

// Hash is the hex sha256 of Signature, for use in external cache keys.
func (q *Query) Hash() string {
	sum := sha256.Sum256([]byte(q.Signature()))
	return hex.EncodeToString(sum[:])
}

func writeSorted(b *strings.Builder, tag byte, values []string) {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	b.WriteByte(tag)
	b.WriteByte('[')
	for i, v := range sorted {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(v)
	}
	b.WriteByte(']')
}
