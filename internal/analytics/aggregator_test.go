package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorRecord(t *testing.T) {
	agg := NewAggregator()
	agg.Record(QueryEvent{Type: EventQuery, Query: "alice", Result: ResultExists, Mode: "cached", LatencyMicros: 100})
	agg.Record(QueryEvent{Type: EventQuery, Query: "alice", Result: ResultExists, Mode: "cached", LatencyMicros: 300})
	agg.Record(QueryEvent{Type: EventQuery, Query: "zed", Result: ResultNotFound, Mode: "reread", LatencyMicros: 200, TLS: true})
	agg.Record(QueryEvent{Type: EventQuery, Result: ResultMalformed, Mode: "cached", LatencyMicros: 10})
	agg.Record(QueryEvent{Type: EventRejected, Result: ResultRejected})

	stats := agg.Stats()
	assert.Equal(t, int64(5), stats.TotalQueries)
	assert.Equal(t, int64(2), stats.Results[ResultExists])
	assert.Equal(t, int64(1), stats.Results[ResultNotFound])
	assert.Equal(t, int64(1), stats.Results[ResultMalformed])
	assert.Equal(t, int64(1), stats.Results[ResultRejected])
	assert.Equal(t, int64(3), stats.CachedQueries)
	assert.Equal(t, int64(1), stats.RereadQueries)
	assert.Equal(t, int64(1), stats.TLSQueries)
	assert.InDelta(t, 152.5, stats.AvgLatencyMicros, 0.001)
	assert.Equal(t, int64(300), stats.P99LatencyMicros)

	require.Len(t, stats.TopQueries, 2)
	assert.Equal(t, QueryCount{Query: "alice", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "zed", Count: 1}}, stats.TopMissingQueries)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+50; i++ {
		agg.Record(QueryEvent{Type: EventQuery, Result: ResultExists, LatencyMicros: int64(i)})
	}
	assert.Len(t, agg.latencies, latencyWindow)
	assert.Equal(t, int64(latencyWindow+50), agg.Stats().TotalQueries)
}

func TestAggregatorHandleMessage(t *testing.T) {
	agg := NewAggregator()
	raw, err := json.Marshal(QueryEvent{Type: EventQuery, Query: "bob", Result: ResultExists, Timestamp: time.Now()})
	require.NoError(t, err)

	require.NoError(t, agg.HandleMessage(context.Background(), nil, raw))
	require.NoError(t, agg.HandleMessage(context.Background(), nil, []byte("not json")))

	assert.Equal(t, int64(1), agg.Stats().TotalQueries)
}

func TestAggregatorSeed(t *testing.T) {
	agg := NewAggregator()
	agg.Seed(Stats{TotalQueries: 10, CachedQueries: 7, Results: map[string]int64{ResultExists: 10}})
	agg.Record(QueryEvent{Type: EventQuery, Query: "x", Result: ResultExists, Mode: "cached"})

	stats := agg.Stats()
	assert.Equal(t, int64(11), stats.TotalQueries)
	assert.Equal(t, int64(8), stats.CachedQueries)
	assert.Equal(t, int64(11), stats.Results[ResultExists])
}

func TestTopNBreaksTiesAlphabetically(t *testing.T) {
	got := topN(map[string]int64{"b": 1, "a": 1, "c": 2}, 2)
	assert.Equal(t, []QueryCount{{Query: "c", Count: 2}, {Query: "a", Count: 1}}, got)
}
