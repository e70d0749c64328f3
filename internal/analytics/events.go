// Package analytics records what users search for. Searchers emit a
// SearchEvent per query through a buffered Collector that publishes to
// Kafka; an Aggregator consumes the topic and keeps running totals.
package analytics

import "time"

// SearchEvent describes one executed search.
type SearchEvent struct {
	Corpus          string    `json:"corpus"`
	Query           string    `json:"query"`
	Tokens          []string  `json:"tokens"`
	FuzzyTerms      []string  `json:"fuzzy_terms,omitempty"`
	TotalHits       int       `json:"total_hits"`
	SnapshotVersion uint64    `json:"snapshot_version"`
	Ready           bool      `json:"ready"`
	CacheHit        bool      `json:"cache_hit"`
	LatencyMs       float64   `json:"latency_ms"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id,omitempty"`
}

// ZeroResult reports whether a ready index found nothing. Searches against
// a corpus still building are not zero-result queries.
func (e SearchEvent) ZeroResult() bool {
	return e.Ready && e.TotalHits == 0
}
