// Package fuzzy ranks vocabulary tokens by how well a typed pattern matches
// them as a subsequence, favouring prefix and substring matches, word
// boundaries and consecutive runs.
package fuzzy

import (
	"math"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/metrics"
)

const (
	prefixBonus    = 50
	containsBonus  = 20
	charBonus      = 1
	boundaryBonus  = 6
	maxRunBonus    = 4
	maxLengthBonus = 6
	lengthScale    = 24
)

// NoMatch is the score of a word that does not contain the pattern as a
// subsequence.
var NoMatch = math.Inf(-1)

// Score rates word against pattern. It returns NoMatch when pattern is
// empty or is not a subsequence of word.
func Score(pattern, word string) float64 {
	if pattern == "" {
		return NoMatch
	}
	score := 0.0
	if strings.HasPrefix(word, pattern) {
		score += prefixBonus
	} else if strings.Contains(word, pattern) {
		score += containsBonus
	}

	cursor, prev, run := 0, -2, 0
	for i := 0; i < len(pattern); i++ {
		j := strings.IndexByte(word[cursor:], pattern[i])
		if j < 0 {
			return NoMatch
		}
		j += cursor
		bonus := charBonus
		if j == 0 || !tokenizer.IsWordByte(word[j-1]) {
			bonus += boundaryBonus
		}
		if j == prev+1 {
			run++
			bonus += min(run, maxRunBonus)
		} else {
			run = 0
		}
		score += float64(bonus)
		prev = j
		cursor = j + 1
	}

	return score + min(maxLengthBonus, lengthScale/float64(len(word)))
}

// Candidate is a vocabulary token with its score.
type Candidate struct {
	Token string  `json:"token"`
	Score float64 `json:"score"`
}

// Matcher expands patterns against a vocabulary and remembers the most
// recently used expansions. It belongs to one engine instance and must be
// Reset whenever that engine's vocabulary changes.
type Matcher struct {
	cache      *cache.LRU[string, []Candidate]
	minScore   float64
	maxResults int
	metrics    *metrics.Metrics
}

func NewMatcher(capacity, maxResults int, minScore float64, m *metrics.Metrics) *Matcher {
	return &Matcher{
		cache:      cache.NewLRU[string, []Candidate](capacity),
		minScore:   minScore,
		maxResults: maxResults,
		metrics:    m,
	}
}

// Expand returns at most maxResults vocabulary tokens scoring at least
// minScore against pattern, best first. Ties are ordered by token.
func (m *Matcher) Expand(vocabulary []string, pattern string) []Candidate {
	if pattern == "" {
		return nil
	}
	if hit, ok := m.cache.Get(pattern); ok {
		m.metrics.CacheLookup(metrics.CacheFuzzy, true)
		return hit
	}
	m.metrics.CacheLookup(metrics.CacheFuzzy, false)

	first := pattern[0]
	out := make([]Candidate, 0)
	for _, token := range vocabulary {
		if len(token) < len(pattern) || strings.IndexByte(token, first) < 0 {
			continue
		}
		s := Score(pattern, token)
		if s >= m.minScore {
			out = append(out, Candidate{Token: token, Score: s})
		}
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.Token, b.Token)
		}
	})
	if len(out) > m.maxResults {
		out = out[:m.maxResults:m.maxResults]
	}
	m.cache.Put(pattern, out)
	return out
}

// Cached lists the cached patterns from most to least recently used.
func (m *Matcher) Cached() []string {
	return m.cache.Keys()
}

func (m *Matcher) Reset() {
	m.cache.Purge()
}
