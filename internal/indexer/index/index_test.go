package index

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, c *corpus.Corpus) *Snapshot {
	t.Helper()
	require.NoError(t, c.Normalize())
	m := NewMemoryIndex(len(c.Blocks))
	for _, b := range c.Blocks {
		m.AddBlock(b)
	}
	return m.Snapshot(Meta{Version: 1, Fingerprint: c.Fingerprint(), Sections: c.Sections})
}

func TestSnapshotPostings(t *testing.T) {
	s := build(t, corpus.FromTexts("a a b", "b c", "A, c!"))

	assert.Equal(t, PostingList{0, 2}, s.Postings("a"))
	assert.Equal(t, PostingList{0, 1}, s.Postings("b"))
	assert.Equal(t, PostingList{1, 2}, s.Postings("c"))
	assert.Nil(t, s.Postings("d"))
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("d"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Vocabulary())
	assert.Equal(t, PostingList{0, 1, 2}, s.AllIDs())
	assert.Equal(t, int64(7), s.TokenCount())

	entry, ok := s.Block(2)
	require.True(t, ok)
	assert.Equal(t, "a, c!", entry.Normalized)
	assert.Equal(t, []string{"a", "c"}, entry.Tokens)
	_, ok = s.Block(9)
	assert.False(t, ok)
}

func TestSnapshotSortsOutOfOrderIDs(t *testing.T) {
	c := &corpus.Corpus{Blocks: []corpus.Block{
		{ID: 30, Text: "x"},
		{ID: 10, Text: "x y"},
		{ID: 20, Text: "y x"},
	}}
	s := build(t, c)
	assert.Equal(t, PostingList{10, 20, 30}, s.Postings("x"))
	assert.Equal(t, PostingList{10, 20}, s.Postings("y"))
	assert.Equal(t, PostingList{10, 20, 30}, s.AllIDs())
}

func TestNeighbors(t *testing.T) {
	c := &corpus.Corpus{Blocks: []corpus.Block{
		{ID: 0, SectionID: corpus.SectionOf(1), Text: "h1"},
		{ID: 1, SectionID: corpus.SectionOf(1), Text: "p1"},
		{ID: 2, SectionID: corpus.SectionOf(1), Text: "p2"},
		{ID: 3, SectionID: corpus.SectionOf(2), Text: "h2"},
		{ID: 4, SectionID: corpus.SectionOf(2), Text: "p3"},
		{ID: 5, Text: "orphan"},
	}}
	s := build(t, c)
	assert.Equal(t, []int{1, 2}, s.Neighbors(2, 1))
	assert.Equal(t, []int{0, 1, 2}, s.Neighbors(1, 5))
	assert.Equal(t, []int{3, 4}, s.Neighbors(3, 1))
	assert.Equal(t, []int{4}, s.Neighbors(4, 0))
	assert.Nil(t, s.Neighbors(5, 3))
	assert.Equal(t, []int{0, 1, 2}, s.Neighbors(1, math.MaxInt))
	assert.Equal(t, []int{3, 4}, s.Neighbors(4, math.MaxInt))
}

func TestPostingListBitmapRoundTrip(t *testing.T) {
	p := PostingList{1, 5, 9, 1000}
	assert.True(t, p.Contains(9))
	assert.False(t, p.Contains(2))
	assert.Equal(t, p, FromBitmap(p.Bitmap()))
}

func TestMemoryIndexReset(t *testing.T) {
	m := NewMemoryIndex(2)
	assert.Equal(t, 2, m.AddBlock(corpus.Block{ID: 0, Text: "one two"}))
	assert.Equal(t, 1, m.DocCount())
	m.Reset()
	assert.Equal(t, 0, m.DocCount())
	assert.Equal(t, int64(0), m.TokenCount())
	s := m.Snapshot(Meta{Version: 2})
	assert.Empty(t, s.Vocabulary())
	assert.Empty(t, s.Terms())
}
