package index

import (
	"maps"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/tokenizer"
)

// MemoryIndex accumulates postings block by block while a build is in
// flight. It is owned by exactly one build and is not safe for concurrent
// use; readers only ever see the immutable Snapshot it produces.
type MemoryIndex struct {
	postings map[string]PostingList
	blocks   []BlockEntry
	position map[int]int
	tokens   int64
	sorted   bool
	lastID   int
}

func NewMemoryIndex(capacity int) *MemoryIndex {
	return &MemoryIndex{
		postings: make(map[string]PostingList),
		blocks:   make([]BlockEntry, 0, capacity),
		position: make(map[int]int, capacity),
		sorted:   true,
		lastID:   -1,
	}
}

// AddBlock normalises and tokenises a block and appends its id to the
// postings of each distinct token. It returns the block's token count.
func (m *MemoryIndex) AddBlock(b corpus.Block) int {
	normalized := tokenizer.Normalize(b.Text)
	tokens := tokenizer.Tokenize(normalized)
	for _, term := range tokenizer.Unique(tokens) {
		m.postings[term] = append(m.postings[term], b.ID)
	}
	if b.ID < m.lastID {
		m.sorted = false
	}
	m.lastID = b.ID
	m.position[b.ID] = len(m.blocks)
	m.blocks = append(m.blocks, BlockEntry{
		ID:         b.ID,
		Text:       b.Text,
		Normalized: normalized,
		Tokens:     tokens,
	})
	m.tokens += int64(len(tokens))
	return len(tokens)
}

func (m *MemoryIndex) DocCount() int {
	return len(m.blocks)
}

func (m *MemoryIndex) TokenCount() int64 {
	return m.tokens
}

// Snapshot freezes the accumulated state. The MemoryIndex must not be used
// afterwards.
func (m *MemoryIndex) Snapshot(meta Meta) *Snapshot {
	if !m.sorted {
		for term, list := range m.postings {
			slices.Sort(list)
			m.postings[term] = list
		}
	}
	ids := make(PostingList, len(m.blocks))
	for i, b := range m.blocks {
		ids[i] = b.ID
	}
	slices.Sort(ids)

	s := &Snapshot{
		Meta:       meta,
		postings:   m.postings,
		vocabulary: slices.Sorted(maps.Keys(m.postings)),
		blocks:     m.blocks,
		byID:       m.position,
		ids:        ids,
		placement:  make(map[int]placement),
		tokens:     m.tokens,
	}
	for si, section := range meta.Sections {
		for pos, id := range section.BlockIDs {
			s.placement[id] = placement{section: si, pos: pos}
		}
	}
	return s
}

// Reset discards everything accumulated so far.
func (m *MemoryIndex) Reset() {
	m.postings = make(map[string]PostingList)
	m.blocks = m.blocks[:0]
	m.position = make(map[int]int)
	m.tokens = 0
	m.sorted = true
	m.lastID = -1
}
