// Package executor computes the set of blocks matching a parsed query
// against an index snapshot. Candidate sets are roaring bitmaps so that
// intersections over large posting lists stay cheap.
package executor

import (
	"log/slog"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/parser"
)

// Options are the per-query execution flags.
type Options struct {
	FuzzyOn       bool
	ContextRadius int
}

// Result is the matching block set of a query.
type Result struct {
	BlockIDs       []int    `json:"block_ids"`
	FuzzyTermsUsed []string `json:"fuzzy_terms_used"`
	DirectMatches  int      `json:"direct_matches"`
}

type Executor struct {
	fuzzy  *fuzzy.Matcher
	logger *slog.Logger
}

func New(matcher *fuzzy.Matcher) *Executor {
	return &Executor{
		fuzzy:  matcher,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute never fails. An empty query matches every block.
func (e *Executor) Execute(snap *index.Snapshot, q *parser.Query, opts Options) Result {
	candidates := snap.AllIDs().Bitmap()
	var phrases []string
	fuzzyUsed := make([]string, 0)
	seenFuzzy := make(map[string]struct{})

	for _, term := range q.Terms() {
		switch t := term.(type) {
		case parser.Literal:
			set := snap.Postings(t.Token).Bitmap()
			if opts.FuzzyOn {
				for _, c := range e.fuzzy.Expand(snap.Vocabulary(), t.Token) {
					if c.Token == t.Token {
						continue
					}
					set.Or(snap.Postings(c.Token).Bitmap())
					if _, ok := seenFuzzy[c.Token]; !ok {
						seenFuzzy[c.Token] = struct{}{}
						fuzzyUsed = append(fuzzyUsed, c.Token)
					}
				}
			}
			candidates.And(set)
		case parser.Phrase:
			phrases = append(phrases, t.Text)
		case parser.Wildcard:
			candidates.And(wildcardSet(snap, t))
		}
		if candidates.IsEmpty() {
			break
		}
	}

	if len(phrases) > 0 && !candidates.IsEmpty() {
		candidates = filterPhrases(snap, candidates, phrases)
	}

	direct := int(candidates.GetCardinality())
	if opts.ContextRadius > 0 && direct > 0 {
		expanded := candidates.Clone()
		it := candidates.Iterator()
		for it.HasNext() {
			for _, id := range snap.Neighbors(int(it.Next()), opts.ContextRadius) {
				expanded.Add(uint32(id))
			}
		}
		candidates = expanded
	}

	ids := index.FromBitmap(candidates)
	e.logger.Debug("query executed",
		"query", q.Raw,
		"version", snap.Version,
		"direct", direct,
		"total", len(ids),
		"fuzzy_terms", len(fuzzyUsed),
	)
	return Result{
		BlockIDs:       ids,
		FuzzyTermsUsed: fuzzyUsed,
		DirectMatches:  direct,
	}
}

// wildcardSet unions the postings of every vocabulary token the wildcard
// accepts. A block satisfies the wildcard iff it holds such a token.
func wildcardSet(snap *index.Snapshot, w parser.Wildcard) *roaring.Bitmap {
	set := roaring.New()
	for _, token := range snap.Vocabulary() {
		if w.Kind.Match(token, w.Value) {
			set.Or(snap.Postings(token).Bitmap())
		}
	}
	return set
}

func filterPhrases(snap *index.Snapshot, candidates *roaring.Bitmap, phrases []string) *roaring.Bitmap {
	kept := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		block, ok := snap.Block(int(id))
		if !ok {
			continue
		}
		all := true
		for _, p := range phrases {
			if !strings.Contains(block.Normalized, p) {
				all = false
				break
			}
		}
		if all {
			kept.Add(id)
		}
	}
	return kept
}
