package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
)

// Handler serves the aggregator's current stats.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/corpora/{corpus}", h.CorpusStats)
}

// Stats returns the aggregate view. ?top=N trims the ranked lists.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, fmt.Errorf("%w: top must be a non-negative integer", apperrors.ErrInvalidInput))
			return
		}
		stats.TopQueries = truncate(stats.TopQueries, n)
		stats.ZeroResultQueries = truncate(stats.ZeroResultQueries, n)
		stats.TopFuzzyTerms = truncate(stats.TopFuzzyTerms, n)
	}
	h.writeJSON(w, http.StatusOK, stats)
}

type corpusStatsResponse struct {
	Corpus     string    `json:"corpus"`
	Searches   int64     `json:"searches"`
	Share      float64   `json:"share"`
	CapturedAt time.Time `json:"captured_at"`
}

// CorpusStats reports one corpus's search volume and its share of all
// searches seen.
func (h *Handler) CorpusStats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("corpus")
	stats := h.aggregator.Stats()
	n, ok := stats.SearchesByCorpus[name]
	if !ok {
		h.writeError(w, fmt.Errorf("%w: no searches recorded for %q", apperrors.ErrCorpusNotFound, name))
		return
	}
	resp := corpusStatsResponse{Corpus: name, Searches: n, CapturedAt: stats.CapturedAt}
	if stats.TotalSearches > 0 {
		resp.Share = float64(n) / float64(stats.TotalSearches)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func truncate(list []QueryCount, n int) []QueryCount {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": err.Error()})
}
