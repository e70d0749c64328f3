package index

import (
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
)

// Meta identifies the corpus snapshot an index was built from.
type Meta struct {
	Version     uint64
	Fingerprint string
	Sections    []corpus.Section
}

// BlockEntry is the per-block state derived during indexing.
type BlockEntry struct {
	ID         int
	Text       string
	Normalized string
	Tokens     []string
}

type placement struct {
	section int
	pos     int
}

// Snapshot is a fully built, read-only inverted index for one corpus
// version.
type Snapshot struct {
	Meta

	postings   map[string]PostingList
	vocabulary []string
	blocks     []BlockEntry
	byID       map[int]int
	ids        PostingList
	placement  map[int]placement
	tokens     int64
}

// Postings returns the posting list for token, or nil.
func (s *Snapshot) Postings(token string) PostingList {
	return s.postings[token]
}

// Has reports whether token occurs anywhere in the corpus.
func (s *Snapshot) Has(token string) bool {
	_, ok := s.postings[token]
	return ok
}

// Vocabulary returns every distinct token in ascending order.
func (s *Snapshot) Vocabulary() []string {
	return s.vocabulary
}

// AllIDs returns every block id in ascending order.
func (s *Snapshot) AllIDs() PostingList {
	return s.ids
}

// Block returns the indexed state of a block.
func (s *Snapshot) Block(id int) (*BlockEntry, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.blocks[i], true
}

// Neighbors returns the blocks within radius positions of id inside id's
// section, id included. Blocks outside any section have no neighbours.
func (s *Snapshot) Neighbors(id, radius int) []int {
	p, ok := s.placement[id]
	if !ok {
		return nil
	}
	members := s.Sections[p.section].BlockIDs
	// Clamp before adding so huge radii cannot overflow.
	lo := p.pos - min(radius, p.pos)
	hi := p.pos + min(radius, len(members)-1-p.pos) + 1
	return members[lo:hi]
}

// Terms lists every token with its postings in vocabulary order.
func (s *Snapshot) Terms() []TermEntry {
	entries := make([]TermEntry, 0, len(s.vocabulary))
	for _, term := range s.vocabulary {
		entries = append(entries, TermEntry{Term: term, Postings: s.postings[term]})
	}
	return entries
}

func (s *Snapshot) BlockCount() int {
	return len(s.blocks)
}

func (s *Snapshot) TokenCount() int64 {
	return s.tokens
}
