package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryKind(t *testing.T) {
	assert.Equal(t, "empty", queryKind("  "))
	assert.Equal(t, "phrase", queryKind(`"at most" size`))
	assert.Equal(t, "wildcard", queryKind("str*"))
	assert.Equal(t, "literal", queryKind("snprintf"))
}

func TestStatsReport(t *testing.T) {
	s := NewStats()
	s.Record("snprintf", 2*time.Millisecond, http.StatusOK, &searchResponse{Ready: true, Cached: true, SharedHit: true})
	s.Record("str*", 4*time.Millisecond, http.StatusOK, &searchResponse{Ready: false})
	s.Record("str*", time.Millisecond, http.StatusNotFound, nil)
	s.Record("x", 0, 0, nil)

	r := s.Report(time.Second)
	assert.EqualValues(t, 4, r.Requests)
	assert.EqualValues(t, 2, r.Failures)
	assert.EqualValues(t, 1, r.CacheHits)
	assert.EqualValues(t, 1, r.SharedHits)
	assert.EqualValues(t, 1, r.NotReady)
	assert.InDelta(t, 4.0, r.RPS, 1e-9)
	assert.Equal(t, map[int]int64{200: 2, 404: 1}, r.StatusCodes)
	assert.EqualValues(t, 3, r.Overall.Requests)
	assert.Equal(t, 4*time.Millisecond, r.Overall.Max)
	assert.EqualValues(t, 2, r.ByKind["wildcard"].Requests)
	assert.Equal(t, time.Millisecond, r.ByKind["wildcard"].P50)

	var buf bytes.Buffer
	r.Print(&buf)
	assert.Contains(t, buf.String(), "wildcard")
	assert.Contains(t, buf.String(), "status 404: 1")
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Zero(t, percentile(nil, 50))
}

func TestRunAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/corpora/libc/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ready":true,"cached":true}`))
	}))
	defer srv.Close()

	cfg := Config{
		BaseURL:     srv.URL,
		Corpus:      "libc",
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		Queries:     []string{"snprintf", "str*"},
	}
	r := run(context.Background(), cfg, srv.Client()).Report(cfg.Duration)
	require.Positive(t, r.Requests)
	assert.Positive(t, r.CacheHits)
	assert.Positive(t, r.StatusCodes[http.StatusOK])
}
