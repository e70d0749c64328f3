package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *memPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *memPublisher) Close() error { return nil }

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorFlushesBySizeAndOnClose(t *testing.T) {
	pub := &memPublisher{}
	c := NewCollector(pub, 100, 2, time.Hour)
	c.Start(context.Background())

	c.Track(SearchEvent{Corpus: "libc", Query: "a"})
	c.Track(SearchEvent{Corpus: "libc", Query: "b"})
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	c.Track(SearchEvent{Corpus: "posix", Query: "c"})
	c.Close()
	assert.Equal(t, 3, pub.count())
	assert.EqualValues(t, 3, c.Published())

	last := pub.batches[len(pub.batches)-1][0]
	assert.Equal(t, "posix", last.Key)
	assert.False(t, last.Value.(SearchEvent).Timestamp.IsZero())

	c.Track(SearchEvent{Query: "after close"})
	assert.Equal(t, 3, pub.count())
}

func TestCollectorFlushesOnContextCancel(t *testing.T) {
	pub := &memPublisher{}
	c := NewCollector(pub, 100, 50, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(SearchEvent{Query: "x"})
	cancel()
	c.Close()
	assert.Equal(t, 1, pub.count())
}

func TestCollectorCountsFailedBatchesAsDropped(t *testing.T) {
	pub := &memPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 10, 1, time.Hour)
	c.Start(context.Background())
	c.Track(SearchEvent{Query: "x"})
	c.Close()
	assert.EqualValues(t, 1, c.Dropped())
	assert.Zero(t, c.Published())
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	start := agg.startTime
	agg.now = func() time.Time { return start.Add(2 * time.Minute) }

	agg.Record(SearchEvent{Corpus: "libc", Query: "snprintf", Ready: true, TotalHits: 3, LatencyMs: 1})
	agg.Record(SearchEvent{Corpus: "libc", Query: "snprintf", Ready: true, TotalHits: 3, CacheHit: true, LatencyMs: 2})
	agg.Record(SearchEvent{Corpus: "libc", Query: "qwxz", Ready: true, LatencyMs: 3})
	agg.Record(SearchEvent{Corpus: "posix", Query: "fork", Ready: false, LatencyMs: 4})
	agg.Record(SearchEvent{Corpus: "libc", Query: "prnt", Ready: true, TotalHits: 1, FuzzyTerms: []string{"print"}, LatencyMs: 10})

	s := agg.Stats()
	assert.EqualValues(t, 5, s.TotalSearches)
	assert.EqualValues(t, 1, s.NotReadySearches)
	assert.EqualValues(t, 1, s.CacheHits)
	assert.EqualValues(t, 4, s.CacheMisses)
	assert.EqualValues(t, 1, s.ZeroResultCount)
	assert.Equal(t, map[string]int64{"libc": 4, "posix": 1}, s.SearchesByCorpus)
	assert.Equal(t, QueryCount{Query: "snprintf", Count: 2}, s.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "qwxz", Count: 1}}, s.ZeroResultQueries)
	assert.Equal(t, []QueryCount{{Query: "print", Count: 1}}, s.TopFuzzyTerms)
	assert.InDelta(t, 4.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, 3.0, s.P50LatencyMs)
	assert.Equal(t, 10.0, s.P99LatencyMs)
	assert.InDelta(t, 2.5, s.QueriesPerMinute, 1e-9)
}

func TestAggregatorLatencyWindowWraps(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+10; i++ {
		agg.Record(SearchEvent{LatencyMs: float64(i)})
	}
	assert.Len(t, agg.latencies, latencyWindow)
	assert.Equal(t, 10, agg.next)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)

	body, err := json.Marshal(SearchEvent{Corpus: "libc", Query: "q", Ready: true, TotalHits: 1})
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), []byte("libc"), body))
	assert.ErrorIs(t, h(context.Background(), nil, []byte("not json")), kafka.ErrPoison)
	assert.EqualValues(t, 1, agg.Stats().TotalSearches)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Corpus: "libc", Query: "q", Ready: true})
	agg.Record(SearchEvent{Corpus: "libc", Query: "r", Ready: true, TotalHits: 1})
	agg.Record(SearchEvent{Corpus: "posix", Query: "r", Ready: true, TotalHits: 2})
	mux := http.NewServeMux()
	NewHandler(agg).Routes(mux)
	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/api/v1/analytics?top=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 3, got.TotalSearches)
	assert.EqualValues(t, 1, got.ZeroResultCount)
	assert.Equal(t, []QueryCount{{Query: "r", Count: 2}}, got.TopQueries)

	assert.Equal(t, http.StatusBadRequest, get("/api/v1/analytics?top=-2").Code)

	rec = get("/api/v1/analytics/corpora/libc")
	require.Equal(t, http.StatusOK, rec.Code)
	var corpus corpusStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &corpus))
	assert.Equal(t, "libc", corpus.Corpus)
	assert.EqualValues(t, 2, corpus.Searches)
	assert.InDelta(t, 2.0/3.0, corpus.Share, 1e-9)

	assert.Equal(t, http.StatusNotFound, get("/api/v1/analytics/corpora/nope").Code)
}
