// Package searcher ties one corpus's index engine, fuzzy matcher, executor
// and caches into a single engine instance. Instances share no mutable
// state, so a process can serve several corpora side by side and tests can
// build throwaway engines freely.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/scheduler"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/highlight"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/snippet"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/metrics"
)

// Range is a half-open byte range into a block's raw text.
type Range = highlight.Range

// SearchOptions are the flags that, with the parsed query, identify a
// cached result.
type SearchOptions struct {
	FuzzyOn       bool `json:"fuzzy"`
	OnlyMatches   bool `json:"only_matches"`
	ContextRadius int  `json:"context_radius"`
}

// DefaultSearchOptions enables fuzzy expansion and nothing else.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{FuzzyOn: true}
}

// Result is the outcome of a search. Ready is false, with no block ids,
// until the first index build has published. Version names the snapshot the
// result was computed against.
type Result struct {
	Query          string   `json:"query"`
	BlockIDs       []int    `json:"block_ids"`
	FuzzyTermsUsed []string `json:"fuzzy_terms_used"`
	DirectMatches  int      `json:"direct_matches"`
	MatchAll       bool     `json:"match_all"`
	OnlyMatches    bool     `json:"only_matches"`
	Ready          bool     `json:"ready"`
	Version        uint64   `json:"version"`
	Cached         bool     `json:"cached"`
}

// Stats describes the published snapshot and cache occupancy.
type Stats struct {
	Ready         bool   `json:"ready"`
	Version       uint64 `json:"version"`
	LatestVersion uint64 `json:"latest_version"`
	Fingerprint   string `json:"fingerprint"`
	Blocks        int    `json:"blocks"`
	Tokens        int64  `json:"tokens"`
	Vocabulary    int    `json:"vocabulary"`
	ResultCache   int    `json:"result_cache_entries"`
	FuzzyCache    int    `json:"fuzzy_cache_entries"`
}

type resultKey struct {
	version     uint64
	signature   string
	fuzzyOn     bool
	onlyMatches bool
	radius      int
}

type Option func(*Searcher)

// WithMetrics records cache, query and build metrics labelled with name.
func WithMetrics(m *metrics.Metrics, name string) Option {
	return func(s *Searcher) {
		s.metrics = m
		s.name = name
	}
}

// WithScheduler sets how index builds are sliced. The default runs builds
// synchronously.
func WithScheduler(sched scheduler.Scheduler) Option {
	return func(s *Searcher) {
		s.sched = sched
	}
}

// Searcher is one engine instance. Its operations are serialised; none of
// them runs work in parallel.
type Searcher struct {
	cfg        config.EngineConfig
	snippetCfg config.SnippetConfig
	name       string
	metrics    *metrics.Metrics
	sched      scheduler.Scheduler
	engine     *indexer.Engine
	logger     *slog.Logger

	mu           sync.Mutex
	fuzzy        *fuzzy.Matcher
	exec         *executor.Executor
	results      *cache.LRU[resultKey, executor.Result]
	cacheVersion uint64
}

func New(cfg config.EngineConfig, snippetCfg config.SnippetConfig, opts ...Option) *Searcher {
	s := &Searcher{
		cfg:        cfg,
		snippetCfg: snippetCfg,
		sched:      scheduler.Immediate{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = slog.Default().With("component", "searcher", "corpus", s.name)
	s.fuzzy = fuzzy.NewMatcher(cfg.FuzzyCacheSize, cfg.FuzzyMaxResults, cfg.FuzzyMinScore, s.metrics)
	s.exec = executor.New(s.fuzzy)
	s.results = cache.NewLRU[resultKey, executor.Result](cfg.ResultCacheSize)
	s.engine = indexer.NewEngine(cfg, s.sched)
	s.engine.OnBuild(s.recordBuild)
	return s
}

// BuildIndex validates c, starts indexing it and returns the snapshot
// version it will publish. Searches keep using the previous snapshot until
// then. An invalid corpus leaves the engine untouched.
func (s *Searcher) BuildIndex(c *corpus.Corpus) (uint64, error) {
	if err := c.Normalize(); err != nil {
		return 0, err
	}
	return s.engine.Build(c), nil
}

// Wait blocks until the most recently requested build has published.
func (s *Searcher) Wait(ctx context.Context) error {
	return s.engine.Wait(ctx)
}

// Ready reports whether the most recently requested build has published.
func (s *Searcher) Ready() bool {
	return s.engine.Ready()
}

// Version is the version of the published snapshot, or 0.
func (s *Searcher) Version() uint64 {
	if snap := s.engine.Snapshot(); snap != nil {
		return snap.Version
	}
	return 0
}

// Fingerprint is the content hash of the published corpus, or "".
func (s *Searcher) Fingerprint() string {
	if snap := s.engine.Snapshot(); snap != nil {
		return snap.Fingerprint
	}
	return ""
}

// Published returns the version and fingerprint of the published snapshot,
// read together, or 0 and "".
func (s *Searcher) Published() (uint64, string) {
	if snap := s.engine.Snapshot(); snap != nil {
		return snap.Version, snap.Fingerprint
	}
	return 0, ""
}

func (s *Searcher) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Ready:         s.engine.Ready(),
		LatestVersion: s.engine.LatestVersion(),
	}
	if snap := s.engine.Snapshot(); snap != nil {
		s.syncVersion(snap)
		st.Version = snap.Version
		st.Fingerprint = snap.Fingerprint
		st.Blocks = snap.BlockCount()
		st.Tokens = snap.TokenCount()
		st.Vocabulary = len(snap.Vocabulary())
	}
	st.ResultCache = s.results.Len()
	st.FuzzyCache = len(s.fuzzy.Cached())
	return st
}

// Search parses and executes query. It never fails: before the first build
// publishes it returns an empty, not-ready result.
func (s *Searcher) Search(query string, opts SearchOptions) Result {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.engine.Snapshot()
	if snap == nil {
		s.observe("not_ready", "none", 0, start)
		return Result{
			Query:          query,
			BlockIDs:       []int{},
			FuzzyTermsUsed: []string{},
			OnlyMatches:    opts.OnlyMatches,
		}
	}
	q := parser.Parse(query)
	res, cached := s.execute(snap, q, opts)

	status := "miss"
	if cached {
		status = "hit"
	}
	resultType := status
	if len(res.BlockIDs) == 0 {
		resultType = "zero_result"
	}
	s.observe(resultType, status, len(res.BlockIDs), start)

	return Result{
		Query:          query,
		BlockIDs:       slices.Clone(res.BlockIDs),
		FuzzyTermsUsed: slices.Clone(res.FuzzyTermsUsed),
		DirectMatches:  res.DirectMatches,
		MatchAll:       q.Empty(),
		OnlyMatches:    opts.OnlyMatches,
		Ready:          true,
		Version:        snap.Version,
		Cached:         cached,
	}
}

func (s *Searcher) execute(snap *index.Snapshot, q *parser.Query, opts SearchOptions) (executor.Result, bool) {
	s.syncVersion(snap)
	key := resultKey{
		version:     snap.Version,
		signature:   q.Signature(),
		fuzzyOn:     opts.FuzzyOn,
		onlyMatches: opts.OnlyMatches,
		radius:      max(0, opts.ContextRadius),
	}
	if res, ok := s.results.Get(key); ok {
		s.metrics.CacheLookup(metrics.CacheResult, true)
		return res, true
	}
	s.metrics.CacheLookup(metrics.CacheResult, false)
	res := s.exec.Execute(snap, q, executor.Options{
		FuzzyOn:       opts.FuzzyOn,
		ContextRadius: key.radius,
	})
	s.results.Put(key, res)
	return res, false
}

// syncVersion drops every cache entry computed against an older snapshot.
func (s *Searcher) syncVersion(snap *index.Snapshot) {
	if snap.Version == s.cacheVersion {
		return
	}
	s.results.Purge()
	s.fuzzy.Reset()
	s.logger.Debug("caches reset for new snapshot", "from", s.cacheVersion, "to", snap.Version)
	s.cacheVersion = snap.Version
}

// HighlightRanges is HighlightRangesWith under DefaultSearchOptions.
func (s *Searcher) HighlightRanges(blockID int, query string) ([]Range, error) {
	return s.HighlightRangesWith(blockID, query, DefaultSearchOptions())
}

// HighlightRangesWith returns the merged match ranges of query in one
// block, including the fuzzy terms the same search would use.
func (s *Searcher) HighlightRangesWith(blockID int, query string, opts SearchOptions) ([]Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, block, err := s.block(blockID)
	if err != nil {
		return nil, err
	}
	q := parser.Parse(query)
	if q.Empty() {
		return []Range{}, nil
	}
	res, _ := s.execute(snap, q, opts)
	return nonNil(highlight.Ranges(block.Text, q, res.FuzzyTermsUsed)), nil
}

// HighlightResult computes ranges for the blocks of a search result, at
// most MaxHighlightBlocks of them, keyed by block id. Blocks without a
// match are omitted. It returns nil when result was computed against a
// snapshot other than the published one.
func (s *Searcher) HighlightResult(result Result) map[int][]Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.engine.Snapshot()
	if snap == nil || !result.Ready || result.Version != snap.Version {
		return nil
	}
	q := parser.Parse(result.Query)
	out := make(map[int][]Range)
	if q.Empty() {
		return out
	}
	limit := s.cfg.MaxHighlightBlocks
	for i, id := range result.BlockIDs {
		if limit > 0 && i >= limit {
			s.logger.Debug("highlight cap reached", "cap", limit, "blocks", len(result.BlockIDs))
			break
		}
		block, ok := snap.Block(id)
		if !ok {
			continue
		}
		if ranges := highlight.Ranges(block.Text, q, result.FuzzyTermsUsed); len(ranges) > 0 {
			out[id] = ranges
		}
	}
	return out
}

// SnippetWindow is SnippetWindowWith under DefaultSearchOptions.
func (s *Searcher) SnippetWindow(blockID int, query string) (*Range, error) {
	return s.SnippetWindowWith(blockID, query, DefaultSearchOptions())
}

// SnippetWindowWith returns the display window of one block for query, or
// nil when the block should be shown whole.
func (s *Searcher) SnippetWindowWith(blockID int, query string, opts SearchOptions) (*Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, block, err := s.block(blockID)
	if err != nil {
		return nil, err
	}
	q := parser.Parse(query)
	if q.Empty() {
		return nil, nil
	}
	res, _ := s.execute(snap, q, opts)
	return snippet.Window(block.Text, q, res.FuzzyTermsUsed, s.snippetCfg), nil
}

// InvalidateCaches empties the result and fuzzy caches.
func (s *Searcher) InvalidateCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results.Purge()
	s.fuzzy.Reset()
}

func (s *Searcher) block(id int) (*index.Snapshot, *index.BlockEntry, error) {
	snap := s.engine.Snapshot()
	if snap == nil {
		return nil, nil, apperrors.ErrIndexNotReady
	}
	block, ok := snap.Block(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", apperrors.ErrBlockNotFound, id)
	}
	return snap, block, nil
}

func (s *Searcher) observe(resultType, cacheStatus string, hits int, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(s.name, resultType).Inc()
	s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	s.metrics.SearchResultsCount.Observe(float64(hits))
}

func (s *Searcher) recordBuild(r indexer.BuildReport) {
	if s.metrics == nil {
		return
	}
	if r.Superseded {
		s.metrics.IndexBuildsTotal.WithLabelValues("superseded").Inc()
		return
	}
	s.metrics.IndexBuildsTotal.WithLabelValues("completed").Inc()
	s.metrics.IndexBuildDuration.Observe(r.Duration.Seconds())
	s.metrics.IndexedBlocks.WithLabelValues(s.name).Set(float64(r.Blocks))
	s.metrics.VocabularySize.WithLabelValues(s.name).Set(float64(r.Vocabulary))
}

func nonNil(r []Range) []Range {
	if r == nil {
		return []Range{}
	}
	return r
}
