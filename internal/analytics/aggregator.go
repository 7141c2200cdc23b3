package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/kafka"
)

// latencyWindow bounds how many recent latency samples feed the percentiles.
const latencyWindow = 10000

type Stats struct {
	TotalQueries      int64            `json:"total_queries"`
	Results           map[string]int64 `json:"results"`
	CachedQueries     int64            `json:"cached_queries"`
	RereadQueries     int64            `json:"reread_queries"`
	TLSQueries        int64            `json:"tls_queries"`
	AvgLatencyMicros  float64          `json:"avg_latency_us"`
	P50LatencyMicros  int64            `json:"p50_latency_us"`
	P95LatencyMicros  int64            `json:"p95_latency_us"`
	P99LatencyMicros  int64            `json:"p99_latency_us"`
	TopQueries        []QueryCount     `json:"top_queries"`
	TopMissingQueries []QueryCount     `json:"top_missing_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	CapturedAt        time.Time        `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds query events into running statistics.
type Aggregator struct {
	mu           sync.RWMutex
	total        int64
	results      map[string]int64
	cached       int64
	reread       int64
	tls          int64
	latencies    []int64
	latencyNext  int
	queryCounts  map[string]int64
	missingCount map[string]int64
	startTime    time.Time
	now          func() time.Time
	logger       *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		results:      make(map[string]int64),
		latencies:    make([]int64, 0, latencyWindow),
		queryCounts:  make(map[string]int64),
		missingCount: make(map[string]int64),
		startTime:    time.Now(),
		now:          time.Now,
		logger:       slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleMessage is a kafka.MessageHandler that decodes and records one
// QueryEvent. Undecodable messages are logged and skipped so they do not
// block the partition.
func (a *Aggregator) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[QueryEvent](value)
	if err != nil {
		a.logger.Error("failed to decode query event", "error", err)
		return nil
	}
	a.Record(event)
	return nil
}

// Record adds one event to the running statistics.
func (a *Aggregator) Record(event QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.results[event.Result]++
	if event.Type == EventRejected {
		return
	}
	switch event.Mode {
	case "cached":
		a.cached++
	case "reread":
		a.reread++
	}
	if event.TLS {
		a.tls++
	}

	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMicros)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMicros
		a.latencyNext = (a.latencyNext + 1) % latencyWindow
	}

	if event.Query == "" {
		return
	}
	a.queryCounts[event.Query]++
	if event.Result == ResultNotFound {
		a.missingCount[event.Query]++
	}
}

// Seed carries totals over from a previously persisted snapshot so counters
// survive a restart. Percentiles and top lists start fresh.
func (a *Aggregator) Seed(prev Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total += prev.TotalQueries
	a.cached += prev.CachedQueries
	a.reread += prev.RereadQueries
	a.tls += prev.TLSQueries
	for result, n := range prev.Results {
		a.results[result] += n
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalQueries:  a.total,
		Results:       make(map[string]int64, len(a.results)),
		CachedQueries: a.cached,
		RereadQueries: a.reread,
		TLSQueries:    a.tls,
		CapturedAt:    a.now().UTC(),
	}
	for result, n := range a.results {
		stats.Results[result] = n
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMicros = float64(sum) / float64(len(sorted))
		stats.P50LatencyMicros = percentile(sorted, 50)
		stats.P95LatencyMicros = percentile(sorted, 95)
		stats.P99LatencyMicros = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopMissingQueries = topN(a.missingCount, 10)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n highest counts; ties are broken alphabetically so the
// output is stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
