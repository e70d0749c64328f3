// Package cache holds the caches of the search path: the in-process LRU
// owned by each engine instance and the redis-backed SharedCache that lets
// replicas serving the same corpus reuse each other's results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "blocksearch:"

// Store is the subset of pkg/redis.Client the shared cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Key identifies one cached search. Fingerprint ties the entry to the
// corpus content, so a reindex with different blocks never reads stale
// entries even before invalidation runs.
type Key struct {
	Corpus        string
	Fingerprint   string
	Signature     string
	FuzzyOn       bool
	OnlyMatches   bool
	ContextRadius int
}

func (k Key) String() string {
	h := sha256.New()
	h.Write([]byte(k.Signature))
	h.Write([]byte{0, boolByte(k.FuzzyOn), boolByte(k.OnlyMatches)})
	h.Write([]byte(strconv.Itoa(k.ContextRadius)))
	sum := h.Sum(nil)
	fp := k.Fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	return corpusPrefix(k.Corpus) + fp + ":" + hex.EncodeToString(sum[:16])
}

// corpusPrefix length-prefixes the name so one corpus's prefix never
// matches the keys of another whose name extends it ("a" vs "a:x").
func corpusPrefix(corpus string) string {
	return keyPrefix + strconv.Itoa(len(corpus)) + ":" + corpus + ":"
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// SharedStats is a point-in-time view of the shared cache counters.
type SharedStats struct {
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
	Errors       int64  `json:"errors"`
	BreakerState string `json:"breaker_state"`
}

// SharedCache stores JSON-encoded values of type V in redis. Every redis
// call goes through a circuit breaker; failures and an open circuit read
// as misses so search keeps working without redis. Concurrent computations
// of the same key are coalesced.
type SharedCache[V any] struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errs    atomic.Int64
}

func NewShared[V any](store Store, ttl time.Duration, m *metrics.Metrics) *SharedCache[V] {
	c := &SharedCache[V]{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "shared-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
		OnStateChange: func(name string, _, to resilience.State) {
			m.BreakerState(name, int(to))
		},
	})
	return c
}

func (c *SharedCache[V]) Get(ctx context.Context, key Key) (V, bool) {
	var zero V
	k := key.String()
	data, err := resilience.Call(c.breaker, func() ([]byte, error) {
		data, err := c.store.Get(ctx, k)
		if pkgredis.IsNil(err) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		c.fail("get", k, err)
		c.miss()
		return zero, false
	}
	if data == nil {
		c.miss()
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return zero, false
	}
	c.hits.Add(1)
	c.metrics.CacheLookup(metrics.CacheShared, true)
	return v, true
}

func (c *SharedCache[V]) Set(ctx context.Context, key Key, v V) {
	k := key.String()
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error { return c.store.Set(ctx, k, data, c.ttl) }); err != nil {
		c.fail("set", k, err)
	}
}

// GetOrCompute returns the cached value for key, or runs compute once per
// key across concurrent callers and stores its result. hit reports whether
// the value came from redis.
func (c *SharedCache[V]) GetOrCompute(ctx context.Context, key Key, compute func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, true, nil
	}
	type computed struct {
		v   V
		hit bool
	}
	val, err, _ := c.group.Do(key.String(), func() (any, error) {
		if v, ok := c.Get(ctx, key); ok {
			return computed{v: v, hit: true}, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, v)
		return computed{v: v}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	out := val.(computed)
	return out.v, out.hit, nil
}

// InvalidateCorpus drops every entry for corpus. An empty corpus drops
// everything under the cache prefix.
func (c *SharedCache[V]) InvalidateCorpus(ctx context.Context, corpus string) (int64, error) {
	prefix := keyPrefix
	if corpus != "" {
		prefix = corpusPrefix(corpus)
	}
	deleted, err := resilience.Call(c.breaker, func() (int64, error) {
		return c.store.DeletePrefix(ctx, prefix)
	})
	if err != nil {
		c.errs.Add(1)
		return deleted, fmt.Errorf("invalidating %s: %w", prefix, err)
	}
	c.logger.Info("shared cache invalidated", "prefix", prefix, "keys_deleted", deleted)
	return deleted, nil
}

func (c *SharedCache[V]) Stats() SharedStats {
	return SharedStats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Errors:       c.errs.Load(),
		BreakerState: c.breaker.State().String(),
	}
}

func (c *SharedCache[V]) miss() {
	c.misses.Add(1)
	c.metrics.CacheLookup(metrics.CacheShared, false)
}

func (c *SharedCache[V]) fail(op, key string, err error) {
	c.errs.Add(1)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug("shared cache skipped, circuit open", "op", op)
		return
	}
	c.logger.Warn("shared cache "+op+" failed", "key", key, "error", err)
}
