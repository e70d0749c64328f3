package executor

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(t *testing.T, c *corpus.Corpus) *index.Snapshot {
	t.Helper()
	require.NoError(t, c.Normalize())
	m := index.NewMemoryIndex(len(c.Blocks))
	for _, b := range c.Blocks {
		m.AddBlock(b)
	}
	return m.Snapshot(index.Meta{Version: 1, Sections: c.Sections})
}

func run(t *testing.T, c *corpus.Corpus, query string, opts Options) Result {
	t.Helper()
	e := New(fuzzy.NewMatcher(64, 50, 3, nil))
	return e.Execute(snapshot(t, c), parser.Parse(query), opts)
}

func TestLiteralAND(t *testing.T) {
	c := corpus.FromTexts("a", "b", "a b")
	assert.Equal(t, []int{2}, run(t, c, "a b", Options{}).BlockIDs)
	assert.Equal(t, []int{0, 2}, run(t, c, "a", Options{}).BlockIDs)
	assert.Empty(t, run(t, c, "a zzz", Options{}).BlockIDs)
}

func TestEmptyQueryMatchesAll(t *testing.T) {
	c := corpus.FromTexts("one", "two", "three")
	r := run(t, c, "   ", Options{})
	assert.Equal(t, []int{0, 1, 2}, r.BlockIDs)
	assert.Empty(t, r.FuzzyTermsUsed)
}

func TestPhrases(t *testing.T) {
	c := corpus.FromTexts("the quick brown fox", "brown and quick")
	assert.Equal(t, []int{0}, run(t, c, `"quick brown"`, Options{}).BlockIDs)
	assert.Empty(t, run(t, c, `"brown quick"`, Options{}).BlockIDs)
	assert.Equal(t, []int{0}, run(t, c, `"ick bro"`, Options{}).BlockIDs)
	assert.Equal(t, []int{0}, run(t, c, `fox "quick brown"`, Options{}).BlockIDs)
}

func TestWildcards(t *testing.T) {
	c := corpus.FromTexts("int main(void)", "a char pointer", "void* ptr = NULL", "call snprintf here")
	assert.Equal(t, []int{0, 2}, run(t, c, "*void*", Options{}).BlockIDs)
	assert.Equal(t, []int{3}, run(t, c, "snpr*", Options{}).BlockIDs)
	assert.Empty(t, run(t, c, "printf*", Options{}).BlockIDs)
	assert.Equal(t, []int{3}, run(t, c, "*printf", Options{}).BlockIDs)
	assert.Equal(t, []int{1}, run(t, c, "*oint* char", Options{}).BlockIDs)
}

func TestFuzzyUnion(t *testing.T) {
	c := corpus.FromTexts("use snprintf", "use vsnprintf", "use printf", "snprf typo")
	off := run(t, c, "snprf", Options{})
	assert.Equal(t, []int{3}, off.BlockIDs)
	assert.Empty(t, off.FuzzyTermsUsed)

	on := run(t, c, "snprf", Options{FuzzyOn: true})
	assert.Equal(t, []int{0, 1, 3}, on.BlockIDs)
	assert.ElementsMatch(t, []string{"snprintf", "vsnprintf"}, on.FuzzyTermsUsed)
	assert.NotContains(t, on.FuzzyTermsUsed, "snprf")
}

func TestFuzzyIntersectsPerToken(t *testing.T) {
	c := corpus.FromTexts("snprintf buffer", "snprintf only", "buffer only")
	r := run(t, c, "snprf buffer", Options{FuzzyOn: true})
	assert.Equal(t, []int{0}, r.BlockIDs)
}

func TestContextRadiusStaysInSection(t *testing.T) {
	c := &corpus.Corpus{Blocks: []corpus.Block{
		{ID: 0, SectionID: corpus.SectionOf(1), Text: "intro"},
		{ID: 1, SectionID: corpus.SectionOf(1), Text: "target"},
		{ID: 2, SectionID: corpus.SectionOf(1), Text: "after"},
		{ID: 3, SectionID: corpus.SectionOf(2), Text: "next section"},
		{ID: 4, Text: "target outside"},
	}}
	r := run(t, c, "target", Options{ContextRadius: 1})
	assert.Equal(t, []int{0, 1, 2, 4}, r.BlockIDs)
	assert.Equal(t, 2, r.DirectMatches)

	r = run(t, c, "after", Options{ContextRadius: 5})
	assert.Equal(t, []int{0, 1, 2}, r.BlockIDs)

	r = run(t, c, "missing", Options{ContextRadius: 3})
	assert.Empty(t, r.BlockIDs)
}
