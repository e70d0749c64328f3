package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLiterals(t *testing.T) {
	q := Parse("  Hello   WORLD ")
	assert.Equal(t, []string{"hello", "world"}, q.Tokens)
	assert.Empty(t, q.Phrases)
	assert.Empty(t, q.Wildcards)
	assert.False(t, q.Empty())
}

func TestParseSplitsPunctuatedLiterals(t *testing.T) {
	q := Parse("main(void) café")
	assert.Equal(t, []string{"main", "void", "cafe"}, q.Tokens)
}

func TestParsePhrases(t *testing.T) {
	q := Parse(`fox "Quick  Brown" jumps “lazy dog”`)
	assert.Equal(t, []string{"quick brown", "lazy dog"}, q.Phrases)
	assert.Equal(t, []string{"fox", "jumps"}, q.Tokens)
}

func TestParseEmptyPhraseDropped(t *testing.T) {
	q := Parse(`a "" "  " b`)
	assert.Empty(t, q.Phrases)
	assert.Equal(t, []string{"a", "b"}, q.Tokens)
}

func TestParseUnterminatedQuote(t *testing.T) {
	q := Parse(`"quick brown`)
	assert.Empty(t, q.Phrases)
	assert.Equal(t, []string{"quick", "brown"}, q.Tokens)

	q = Parse(`"a b" "c d`)
	assert.Equal(t, []string{"a b"}, q.Phrases)
	assert.Equal(t, []string{"c", "d"}, q.Tokens)
}

func TestParseWildcards(t *testing.T) {
	q := Parse("snpr* *printf *VOID* * **")
	assert.Equal(t, []Wildcard{
		{Kind: Prefix, Value: "snpr"},
		{Kind: Suffix, Value: "printf"},
		{Kind: Contains, Value: "void"},
	}, q.Wildcards)
	assert.Empty(t, q.Tokens)
}

func TestParseEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n"} {
		q := Parse(raw)
		assert.True(t, q.Empty(), "query %q", raw)
		assert.Empty(t, q.Terms())
	}
}

func TestTermsVariants(t *testing.T) {
	q := Parse(`a "b c" d*`)
	assert.Equal(t, []Term{
		Literal{Token: "a"},
		Phrase{Text: "b c"},
		Wildcard{Kind: Prefix, Value: "d"},
	}, q.Terms())
}

func TestSignatureIsOrderStable(t *testing.T) {
	a := Parse(`foo bar "x y" z*`)
	b := Parse(`z* bar "x y" foo`)
	c := Parse(`foo bar foo "x y" z*`)
	assert.Equal(t, a.Signature(), b.Signature())
	assert.Equal(t, a.Signature(), c.Signature())
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)

	assert.NotEqual(t, Parse("z*").Signature(), Parse("*z").Signature())
	assert.NotEqual(t, Parse(`"a b"`).Signature(), Parse("a b").Signature())
}

func TestWildcardMatch(t *testing.T) {
	assert.True(t, Prefix.Match("snprintf", "snpr"))
	assert.False(t, Prefix.Match("snprintf", "printf"))
	assert.True(t, Suffix.Match("snprintf", "printf"))
	assert.True(t, Contains.Match("snprintf", "rin"))
	assert.False(t, WildcardKind(9).Match("x", "x"))
}
