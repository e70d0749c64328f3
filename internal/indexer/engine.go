// Package indexer builds block indexes. An Engine turns a corpus into an
// immutable index.Snapshot in time-sliced batches, stamps every build with
// a version, and publishes only the most recently requested build.
package indexer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/scheduler"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
)

// BuildReport describes a finished or discarded build.
type BuildReport struct {
	Version    uint64
	Blocks     int
	Tokens     int64
	Vocabulary int
	Duration   time.Duration
	Superseded bool
}

type Engine struct {
	cfg       config.EngineConfig
	scheduler scheduler.Scheduler
	logger    *slog.Logger

	latest atomic.Uint64

	mu        sync.Mutex
	current   *index.Snapshot
	published chan struct{}
	hooks     []func(BuildReport)
}

func NewEngine(cfg config.EngineConfig, sched scheduler.Scheduler) *Engine {
	if sched == nil {
		sched = scheduler.Immediate{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultEngine().BatchSize
	}
	return &Engine{
		cfg:       cfg,
		scheduler: sched,
		logger:    slog.Default().With("component", "indexer"),
		published: make(chan struct{}),
	}
}

// OnBuild registers fn to be called after every build finishes, whether it
// was published or discarded as superseded.
func (e *Engine) OnBuild(fn func(BuildReport)) {
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// Build starts indexing c and returns the version the resulting snapshot
// will carry. Any build still in flight is superseded: it stops at its next
// batch and its result is never published. With an Immediate scheduler the
// snapshot is published before Build returns.
func (e *Engine) Build(c *corpus.Corpus) uint64 {
	version := e.latest.Add(1)
	blocks := c.Blocks
	meta := index.Meta{
		Version:     version,
		Fingerprint: c.Fingerprint(),
		Sections:    c.Sections,
	}
	mem := index.NewMemoryIndex(len(blocks))
	started := time.Now()
	next := 0
	batch := e.cfg.BatchSize

	e.logger.Info("index build started",
		"version", version,
		"blocks", len(blocks),
		"batch_size", batch,
	)

	task := func() bool {
		if e.latest.Load() != version {
			return false
		}
		end := min(next+batch, len(blocks))
		for ; next < end; next++ {
			mem.AddBlock(blocks[next])
		}
		return next < len(blocks)
	}
	done := func() {
		e.finish(version, mem, meta, next == len(blocks), started)
	}
	e.scheduler.Schedule(task, done)
	return version
}

func (e *Engine) finish(version uint64, mem *index.MemoryIndex, meta index.Meta, complete bool, started time.Time) {
	report := BuildReport{
		Version:  version,
		Blocks:   mem.DocCount(),
		Tokens:   mem.TokenCount(),
		Duration: time.Since(started),
	}

	e.mu.Lock()
	if !complete || e.latest.Load() != version {
		report.Superseded = true
		hooks := e.hooks
		e.mu.Unlock()
		e.logger.Info("index build superseded, discarding",
			"version", version,
			"latest", e.latest.Load(),
			"blocks_indexed", report.Blocks,
		)
		notify(hooks, report)
		return
	}
	snap := mem.Snapshot(meta)
	report.Vocabulary = len(snap.Vocabulary())
	e.current = snap
	close(e.published)
	e.published = make(chan struct{})
	hooks := e.hooks
	e.mu.Unlock()

	e.logger.Info("index build published",
		"version", version,
		"blocks", report.Blocks,
		"tokens", report.Tokens,
		"vocabulary", report.Vocabulary,
		"duration_ms", report.Duration.Milliseconds(),
	)
	notify(hooks, report)
}

func notify(hooks []func(BuildReport), r BuildReport) {
	for _, fn := range hooks {
		fn(r)
	}
}

// Snapshot returns the most recently published snapshot, or nil before the
// first build completes. A build in progress never affects the result.
func (e *Engine) Snapshot() *index.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Ready reports whether the latest requested build has been published.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.Version == e.latest.Load()
}

// LatestVersion is the version of the most recently requested build.
func (e *Engine) LatestVersion() uint64 {
	return e.latest.Load()
}

// Wait blocks until the latest requested build has been published or ctx
// is done. It returns immediately when no build was ever requested.
func (e *Engine) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		latest := e.latest.Load()
		if latest == 0 || e.current != nil && e.current.Version == latest {
			e.mu.Unlock()
			return nil
		}
		ch := e.published
		e.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
