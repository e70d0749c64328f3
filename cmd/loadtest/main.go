package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Corpus      string
	Fuzzy       bool
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

// queryKind buckets queries by the engine path they exercise.
func queryKind(q string) string {
	switch {
	case strings.TrimSpace(q) == "":
		return "empty"
	case strings.Contains(q, `"`):
		return "phrase"
	case strings.Contains(q, "*"):
		return "wildcard"
	default:
		return "literal"
	}
}

type kindStats struct {
	requests  int64
	latencies []time.Duration
}

// Stats accumulates outcomes across workers.
type Stats struct {
	mu          sync.Mutex
	requests    int64
	failures    int64
	cacheHits   int64
	sharedHits  int64
	notReady    int64
	statusCodes map[int]int64
	kinds       map[string]*kindStats
}

func NewStats() *Stats {
	return &Stats{
		statusCodes: make(map[int]int64),
		kinds:       make(map[string]*kindStats),
	}
}

type searchResponse struct {
	Ready     bool `json:"ready"`
	Cached    bool `json:"cached"`
	SharedHit bool `json:"shared_cache_hit"`
}

// Record counts one request. Transport errors carry status 0 and no
// latency sample.
func (s *Stats) Record(query string, d time.Duration, status int, resp *searchResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if status == 0 {
		s.failures++
		return
	}
	s.statusCodes[status]++
	if status < 200 || status >= 300 {
		s.failures++
	}
	k, ok := s.kinds[queryKind(query)]
	if !ok {
		k = &kindStats{}
		s.kinds[queryKind(query)] = k
	}
	k.requests++
	k.latencies = append(k.latencies, d)
	if resp == nil {
		return
	}
	if !resp.Ready {
		s.notReady++
	}
	if resp.Cached {
		s.cacheHits++
	}
	if resp.SharedHit {
		s.sharedHits++
	}
}

type LatencySummary struct {
	Requests int64         `json:"requests"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
	P99      time.Duration `json:"p99"`
	Max      time.Duration `json:"max"`
}

type Report struct {
	Requests    int64                     `json:"requests"`
	Failures    int64                     `json:"failures"`
	CacheHits   int64                     `json:"cache_hits"`
	SharedHits  int64                     `json:"shared_cache_hits"`
	NotReady    int64                     `json:"not_ready"`
	RPS         float64                   `json:"requests_per_second"`
	StatusCodes map[int]int64             `json:"status_codes"`
	Overall     LatencySummary            `json:"overall"`
	ByKind      map[string]LatencySummary `json:"by_kind"`
}

func (s *Stats) Report(elapsed time.Duration) Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Report{
		Requests:    s.requests,
		Failures:    s.failures,
		CacheHits:   s.cacheHits,
		SharedHits:  s.sharedHits,
		NotReady:    s.notReady,
		StatusCodes: make(map[int]int64, len(s.statusCodes)),
		ByKind:      make(map[string]LatencySummary, len(s.kinds)),
	}
	if elapsed > 0 {
		r.RPS = float64(s.requests) / elapsed.Seconds()
	}
	for code, n := range s.statusCodes {
		r.StatusCodes[code] = n
	}
	var all []time.Duration
	for kind, k := range s.kinds {
		r.ByKind[kind] = summarize(k.latencies)
		all = append(all, k.latencies...)
	}
	r.Overall = summarize(all)
	return r
}

func summarize(latencies []time.Duration) LatencySummary {
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)
	sum := LatencySummary{Requests: int64(len(sorted))}
	if len(sorted) == 0 {
		return sum
	}
	sum.P50 = percentile(sorted, 50)
	sum.P95 = percentile(sorted, 95)
	sum.P99 = percentile(sorted, 99)
	sum.Max = sorted[len(sorted)-1]
	return sum
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "requests %d  failures %d  rps %.1f\n", r.Requests, r.Failures, r.RPS)
	fmt.Fprintf(w, "cache hits %d (shared %d)  not ready %d\n", r.CacheHits, r.SharedHits, r.NotReady)
	fmt.Fprintf(w, "%-9s %8s %10s %10s %10s %10s\n", "kind", "n", "p50", "p95", "p99", "max")
	kinds := make([]string, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	row := func(name string, l LatencySummary) {
		fmt.Fprintf(w, "%-9s %8d %10s %10s %10s %10s\n", name, l.Requests, l.P50, l.P95, l.P99, l.Max)
	}
	for _, k := range kinds {
		row(k, r.ByKind[k])
	}
	row("all", r.Overall)
	codes := make([]int, 0, len(r.StatusCodes))
	for c := range r.StatusCodes {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	for _, c := range codes {
		fmt.Fprintf(w, "status %d: %d\n", c, r.StatusCodes[c])
	}
}

func searchURL(cfg Config, query string) string {
	return fmt.Sprintf("%s/api/v1/corpora/%s/search?q=%s&fuzzy=%t",
		cfg.BaseURL, url.PathEscape(cfg.Corpus), url.QueryEscape(query), cfg.Fuzzy)
}

func run(ctx context.Context, cfg Config, client *http.Client) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL(cfg, query), nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.Record(query, elapsed, 0, nil)
					}
					continue
				}
				var body searchResponse
				decoded := json.NewDecoder(resp.Body).Decode(&body) == nil
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if decoded {
					stats.Record(query, elapsed, resp.StatusCode, &body)
				} else {
					stats.Record(query, elapsed, resp.StatusCode, nil)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "worker failed: %v\n", err)
	}
	return stats
}

func main() {
	cfg := Config{
		Queries: []string{
			"snprintf",
			"vsnprintf size",
			"\"at most size bytes\"",
			"str*",
			"*printf",
			"*alloc*",
			"prnt",
			"mallco",
			"memcpy overlap",
			"\"null terminated\" string",
			"errno EINVAL",
			"*_t",
			"pthread*",
			"",
		},
	}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.StringVar(&cfg.Corpus, "corpus", "libc", "corpus to query")
	flag.BoolVar(&cfg.Fuzzy, "fuzzy", true, "enable fuzzy expansion")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	fmt.Fprintf(os.Stderr, "load testing %s corpus %q with %d workers for %s\n",
		cfg.BaseURL, cfg.Corpus, cfg.Concurrency, cfg.Duration)

	start := time.Now()
	report := run(context.Background(), cfg, client).Report(time.Since(start))
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
	} else {
		report.Print(os.Stdout)
	}
	if report.Requests == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is the service running?")
		os.Exit(1)
	}
}
