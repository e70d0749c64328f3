// Package corpus defines the block corpus an engine indexes and the sources
// it can be loaded from. A corpus is an ordered list of blocks, each with a
// stable integer id, optionally grouped into sections.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
)

// MaxBlockID is the largest id the index can hold; postings are uint32 bitmaps.
const MaxBlockID = math.MaxUint32

// Block is one unit of searchable text.
type Block struct {
	ID        int    `json:"id" yaml:"id"`
	SectionID *int   `json:"section,omitempty" yaml:"section,omitempty"`
	Text      string `json:"text" yaml:"text"`
}

// Section groups contiguous blocks under a heading.
type Section struct {
	ID       int   `json:"id" yaml:"id"`
	BlockIDs []int `json:"blocks" yaml:"blocks"`
}

// Corpus is a snapshot of blocks supplied by a provider.
type Corpus struct {
	Blocks   []Block   `json:"blocks" yaml:"blocks"`
	Sections []Section `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// Source loads a corpus from somewhere.
type Source interface {
	Load(ctx context.Context) (*Corpus, error)
}

// SectionOf is a convenience for building blocks in code and tests.
func SectionOf(id int) *int {
	return &id
}

// Normalize validates the corpus and fills Sections from the blocks'
// section ids when none were supplied. Sections keep blocks in corpus order.
func (c *Corpus) Normalize() error {
	seen := make(map[int]struct{}, len(c.Blocks))
	for _, b := range c.Blocks {
		if b.ID < 0 || int64(b.ID) > MaxBlockID {
			return fmt.Errorf("%w: block id %d outside [0, %d]", apperrors.ErrInvalidInput, b.ID, MaxBlockID)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("%w: duplicate block id %d", apperrors.ErrInvalidInput, b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	if len(c.Sections) > 0 {
		for _, s := range c.Sections {
			for _, id := range s.BlockIDs {
				if _, ok := seen[id]; !ok {
					return fmt.Errorf("%w: section %d references unknown block %d", apperrors.ErrInvalidInput, s.ID, id)
				}
			}
		}
		return nil
	}
	order := make([]int, 0)
	groups := make(map[int][]int)
	for _, b := range c.Blocks {
		if b.SectionID == nil {
			continue
		}
		sid := *b.SectionID
		if _, ok := groups[sid]; !ok {
			order = append(order, sid)
		}
		groups[sid] = append(groups[sid], b.ID)
	}
	c.Sections = make([]Section, 0, len(order))
	for _, sid := range order {
		c.Sections = append(c.Sections, Section{ID: sid, BlockIDs: groups[sid]})
	}
	return nil
}

// Fingerprint is a stable content hash of the corpus. Two replicas holding
// the same blocks compute the same fingerprint.
func (c *Corpus) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	for _, b := range c.Blocks {
		writeInt(b.ID)
		if b.SectionID != nil {
			writeInt(1)
			writeInt(*b.SectionID)
		} else {
			writeInt(0)
		}
		writeInt(len(b.Text))
		h.Write([]byte(b.Text))
	}
	for _, s := range c.Sections {
		writeInt(s.ID)
		writeInt(len(s.BlockIDs))
		for _, id := range s.BlockIDs {
			writeInt(id)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FromTexts builds a corpus whose block ids are the slice positions.
func FromTexts(texts ...string) *Corpus {
	c := &Corpus{Blocks: make([]Block, len(texts))}
	for i, t := range texts {
		c.Blocks[i] = Block{ID: i, Text: t}
	}
	return c
}
