// Package handler exposes the engine instances of a registry over HTTP as
// JSON, for renderers that draw result lists, highlights and snippets.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/tracing"
)

const maxReindexBody = 64 << 20

// errSnapshotChanged aborts a shared-cache fill when a new snapshot
// published between reading the fingerprint and executing the query.
var errSnapshotChanged = errors.New("snapshot changed during search")

// Tracker receives one event per search. *analytics.Collector implements it.
type Tracker interface {
	Track(event analytics.SearchEvent)
}

type Handler struct {
	registry *registry.Registry
	shared   *cache.SharedCache[searcher.Result]
	tracker  Tracker
	logger   *slog.Logger
}

// New builds the handler. shared and tracker may be nil.
func New(reg *registry.Registry, shared *cache.SharedCache[searcher.Result], tracker Tracker) *Handler {
	return &Handler{
		registry: reg,
		shared:   shared,
		tracker:  tracker,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/corpora", h.Corpora)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/search", h.Search)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/blocks/{id}/highlights", h.Highlights)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/blocks/{id}/snippet", h.Snippet)
	mux.HandleFunc("POST /api/v1/corpora/{corpus}/reindex", h.Reindex)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type searchResponse struct {
	searcher.Result
	Highlights map[int][]searcher.Range `json:"highlights,omitempty"`
	SharedHit  bool                     `json:"shared_cache_hit"`
	LatencyMs  float64                  `json:"latency_ms"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "search", logger.RequestID(r.Context()))
	defer func() {
		span.End()
		span.Log(logger.FromContext(ctx))
	}()
	log := logger.FromContext(ctx)

	name := r.PathValue("corpus")
	s, err := h.registry.Get(name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	query := r.URL.Query().Get("q")
	opts, err := searchOptions(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	withHighlights, err := boolParam(r, "highlight", false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	span.SetAttr("corpus", name)
	span.SetAttr("query", query)

	result, sharedHit := h.search(ctx, name, s, query, opts)
	resp := searchResponse{Result: result, SharedHit: sharedHit}
	if withHighlights && result.Ready {
		_, hspan := tracing.StartChild(ctx, "highlight")
		resp.Highlights = s.HighlightResult(result)
		hspan.SetAttr("blocks", len(resp.Highlights))
		hspan.End()
	}
	resp.LatencyMs = float64(time.Since(start).Microseconds()) / 1000

	log.Debug("search completed",
		"corpus", name,
		"query", query,
		"hits", len(result.BlockIDs),
		"ready", result.Ready,
		"cached", result.Cached,
		"shared_hit", sharedHit,
		"latency_ms", resp.LatencyMs,
	)
	if h.tracker != nil {
		h.tracker.Track(analytics.SearchEvent{
			Corpus:          name,
			Query:           query,
			Tokens:          parser.Parse(query).Tokens,
			FuzzyTerms:      result.FuzzyTermsUsed,
			TotalHits:       len(result.BlockIDs),
			SnapshotVersion: result.Version,
			Ready:           result.Ready,
			CacheHit:        result.Cached || sharedHit,
			LatencyMs:       resp.LatencyMs,
			Timestamp:       time.Now().UTC(),
			RequestID:       logger.RequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// search consults the shared cache for ready corpora. Shared entries are
// keyed by corpus fingerprint, so a hit from another replica is re-stamped
// with this replica's snapshot version.
func (h *Handler) search(ctx context.Context, name string, s *searcher.Searcher, query string, opts searcher.SearchOptions) (searcher.Result, bool) {
	version, fingerprint := s.Published()
	if h.shared == nil || version == 0 {
		_, span := tracing.StartChild(ctx, "engine")
		defer span.End()
		return s.Search(query, opts), false
	}

	cctx, span := tracing.StartChild(ctx, "shared_cache")
	key := cache.Key{
		Corpus:        name,
		Fingerprint:   fingerprint,
		Signature:     parser.Parse(query).Signature(),
		FuzzyOn:       opts.FuzzyOn,
		OnlyMatches:   opts.OnlyMatches,
		ContextRadius: opts.ContextRadius,
	}
	result, hit, err := h.shared.GetOrCompute(cctx, key, func() (searcher.Result, error) {
		_, espan := tracing.StartChild(cctx, "engine")
		defer espan.End()
		res := s.Search(query, opts)
		if res.Version != version {
			return res, errSnapshotChanged
		}
		return res, nil
	})
	span.SetAttr("hit", hit)
	span.End()

	if err != nil {
		return s.Search(query, opts), false
	}
	if hit {
		result.Query = query
		result.Version = version
		result.Cached = true
	}
	return result, hit
}

func (h *Handler) Highlights(w http.ResponseWriter, r *http.Request) {
	s, id, err := h.block(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts, err := searchOptions(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ranges, err := s.HighlightRangesWith(id, r.URL.Query().Get("q"), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ranges)
}

func (h *Handler) Snippet(w http.ResponseWriter, r *http.Request) {
	s, id, err := h.block(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts, err := searchOptions(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	window, err := s.SnippetWindowWith(id, r.URL.Query().Get("q"), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, window)
}

// Reindex reloads a corpus from its source, or rebuilds it from a corpus
// document in the request body.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("corpus")
	var inline *corpus.Corpus
	if r.ContentLength != 0 && r.Body != nil {
		var c corpus.Corpus
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReindexBody))
		if err := dec.Decode(&c); err != nil {
			h.writeError(w, fmt.Errorf("%w: decoding corpus: %v", apperrors.ErrInvalidInput, err))
			return
		}
		if len(c.Blocks) > 0 {
			inline = &c
		}
	}
	version, err := h.registry.Reindex(r.Context(), name, inline)
	if err != nil {
		h.writeError(w, err)
		return
	}
	logger.FromContext(r.Context()).Info("reindex accepted", "corpus", name, "version", version, "inline", inline != nil)
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"corpus":  name,
		"version": version,
	})
}

func (h *Handler) Corpora(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.registry.Status())
}

type cacheStatsResponse struct {
	Corpora map[string]searcher.Stats `json:"corpora"`
	Shared  *cache.SharedStats        `json:"shared,omitempty"`
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	resp := cacheStatsResponse{Corpora: make(map[string]searcher.Stats)}
	for _, name := range h.registry.Names() {
		if s, err := h.registry.Get(name); err == nil {
			resp.Corpora[name] = s.Stats()
		}
	}
	if h.shared != nil {
		st := h.shared.Stats()
		resp.Shared = &st
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheInvalidate empties the in-process caches of one corpus (?corpus=)
// or of all corpora, and the matching shared entries.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("corpus")
	names := h.registry.Names()
	if name != "" {
		if _, err := h.registry.Get(name); err != nil {
			h.writeError(w, err)
			return
		}
		names = []string{name}
	}
	for _, n := range names {
		if s, err := h.registry.Get(n); err == nil {
			s.InvalidateCaches()
		}
	}

	resp := map[string]any{"status": "invalidated", "corpora": names}
	if h.shared != nil {
		deleted, err := h.shared.InvalidateCorpus(r.Context(), name)
		if err != nil {
			logger.FromContext(r.Context()).Warn("shared cache invalidation failed", "error", err)
			h.writeError(w, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err))
			return
		}
		resp["shared_keys_deleted"] = deleted
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) block(r *http.Request) (*searcher.Searcher, int, error) {
	s, err := h.registry.Get(r.PathValue("corpus"))
	if err != nil {
		return nil, 0, err
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: block id %q", apperrors.ErrInvalidInput, r.PathValue("id"))
	}
	return s, id, nil
}

func searchOptions(r *http.Request) (searcher.SearchOptions, error) {
	opts := searcher.DefaultSearchOptions()
	var err error
	if opts.FuzzyOn, err = boolParam(r, "fuzzy", opts.FuzzyOn); err != nil {
		return opts, err
	}
	if opts.OnlyMatches, err = boolParam(r, "only", false); err != nil {
		return opts, err
	}
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err := strconv.Atoi(raw)
		if err != nil || radius < 0 {
			return opts, fmt.Errorf("%w: radius must be a non-negative integer", apperrors.ErrInvalidInput)
		}
		opts.ContextRadius = radius
	}
	return opts, nil
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be a boolean", apperrors.ErrInvalidInput, name)
	}
	return v, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
