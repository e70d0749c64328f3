package index

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// PostingList is the ascending, duplicate-free list of block ids that
// contain a token.
type PostingList []int

// Contains reports whether id is in the list.
func (p PostingList) Contains(id int) bool {
	_, found := slices.BinarySearch(p, id)
	return found
}

// Bitmap converts the list for set algebra. Corpus validation bounds block
// ids to [0, corpus.MaxBlockID], so the uint32 conversion is lossless.
func (p PostingList) Bitmap() *roaring.Bitmap {
	bm := roaring.New()
	for _, id := range p {
		bm.Add(uint32(id))
	}
	return bm
}

// FromBitmap converts a bitmap back into a sorted posting list.
func FromBitmap(bm *roaring.Bitmap) PostingList {
	out := make(PostingList, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// TermEntry pairs a token with its postings, in vocabulary order.
type TermEntry struct {
	Term     string
	Postings PostingList
}
