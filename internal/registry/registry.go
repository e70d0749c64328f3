// Package registry maps corpus names to their engine instances. Each
// registered corpus gets its own searcher.Searcher built from the shared
// engine configuration; the registry loads sources, starts builds and
// serves lookups for the HTTP and Kafka surfaces.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/scheduler"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/resilience"
)

const loadTimeout = 2 * time.Minute

// Status is the externally visible state of one corpus.
type Status struct {
	Name        string `json:"name"`
	Ready       bool   `json:"ready"`
	Version     uint64 `json:"version"`
	Blocks      int    `json:"blocks"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type entry struct {
	searcher *searcher.Searcher
	source   corpus.Source
}

type Registry struct {
	engineCfg  config.EngineConfig
	snippetCfg config.SnippetConfig
	sched      scheduler.Scheduler
	metrics    *metrics.Metrics
	retry      resilience.RetryConfig
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry. sched slices every build; nil means
// builds run synchronously.
func New(cfg *config.Config, sched scheduler.Scheduler, m *metrics.Metrics) *Registry {
	if sched == nil {
		sched = scheduler.Immediate{}
	}
	return &Registry{
		engineCfg:  cfg.Engine,
		snippetCfg: cfg.Snippet,
		sched:      sched,
		metrics:    m,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		entries: make(map[string]*entry),
		logger:  slog.Default().With("component", "registry"),
	}
}

// SourceFor resolves a configured corpus to its source. db may be nil when
// no corpus uses PostgreSQL.
func SourceFor(cc config.CorpusConfig, db *sql.DB) (corpus.Source, error) {
	switch {
	case cc.File != "":
		return corpus.FileSource{Path: cc.File}, nil
	case cc.Postgres && db != nil:
		return corpus.PostgresSource{DB: db, Corpus: cc.Name}, nil
	case cc.Postgres:
		return nil, fmt.Errorf("%w: corpus %q needs postgres but no connection is configured", apperrors.ErrInvalidInput, cc.Name)
	default:
		return nil, fmt.Errorf("%w: corpus %q has no source", apperrors.ErrInvalidInput, cc.Name)
	}
}

// Register creates the engine instance for name. source may be nil for
// corpora that are only ever supplied inline through Reindex.
func (r *Registry) Register(name string, source corpus.Source) (*searcher.Searcher, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty corpus name", apperrors.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return nil, fmt.Errorf("%w: corpus %q already registered", apperrors.ErrInvalidInput, name)
	}
	s := searcher.New(r.engineCfg, r.snippetCfg,
		searcher.WithScheduler(r.sched),
		searcher.WithMetrics(r.metrics, name),
	)
	r.entries[name] = &entry{searcher: s, source: source}
	r.logger.Info("corpus registered", "corpus", name, "has_source", source != nil)
	return s, nil
}

// LoadAll loads every registered source concurrently and starts a build
// for each. It returns the joined load errors; corpora that loaded are
// building even when others failed.
func (r *Registry) LoadAll(ctx context.Context) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.source != nil {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	slices.Sort(names)

	errs := make([]error, len(names))
	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			_, errs[i] = r.Reindex(ctx, name, nil)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Get returns the engine instance for name.
func (r *Registry) Get(name string) (*searcher.Searcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrCorpusNotFound, name)
	}
	return e.searcher, nil
}

// Reindex rebuilds name from c, or reloads it from its source when c is
// nil. It returns the version the new snapshot will carry; any build still
// running for name is superseded.
func (r *Registry) Reindex(ctx context.Context, name string, c *corpus.Corpus) (uint64, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrCorpusNotFound, name)
	}

	if c == nil {
		if e.source == nil {
			return 0, fmt.Errorf("%w: corpus %q has no source to reload", apperrors.ErrInvalidInput, name)
		}
		loaded, err := r.load(ctx, name, e.source)
		if err != nil {
			return 0, err
		}
		c = loaded
	}

	version, err := e.searcher.BuildIndex(c)
	if err != nil {
		return 0, fmt.Errorf("corpus %q: %w", name, err)
	}
	r.logger.Info("corpus reindex started",
		"corpus", name,
		"version", version,
		"blocks", len(c.Blocks),
		"sections", len(c.Sections),
	)
	return version, nil
}

func (r *Registry) load(ctx context.Context, name string, src corpus.Source) (*corpus.Corpus, error) {
	var c *corpus.Corpus
	err := resilience.Retry(ctx, "load corpus "+name, r.retry, func() error {
		loaded, err := resilience.WithDeadline(ctx, loadTimeout, "load corpus "+name, src.Load)
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return resilience.Permanent(err)
		}
		c = loaded
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading corpus %q: %w", name, err)
	}
	return c, nil
}

// Names lists the registered corpora in ascending order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Ready reports whether name has published its latest build.
func (r *Registry) Ready(name string) bool {
	s, err := r.Get(name)
	return err == nil && s.Ready()
}

// AllReady reports whether every registered corpus is ready. An empty
// registry is not ready.
func (r *Registry) AllReady() bool {
	names := r.Names()
	if len(names) == 0 {
		return false
	}
	for _, name := range names {
		if !r.Ready(name) {
			return false
		}
	}
	return true
}

// Wait blocks until every corpus has published its latest build.
func (r *Registry) Wait(ctx context.Context) error {
	for _, name := range r.Names() {
		s, err := r.Get(name)
		if err != nil {
			return err
		}
		if err := s.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for corpus %q: %w", name, err)
		}
	}
	return nil
}

func (r *Registry) Status() []Status {
	names := r.Names()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			continue
		}
		st := s.Stats()
		out = append(out, Status{
			Name:        name,
			Ready:       st.Ready,
			Version:     st.Version,
			Blocks:      st.Blocks,
			Fingerprint: st.Fingerprint,
		})
	}
	return out
}
