package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/resilience"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	calls   int
	err     error
}

func (p *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) snapshot() (calls int, events int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.batches {
		events += len(b)
	}
	return p.calls, events
}

func event(query, result string) QueryEvent {
	return QueryEvent{
		Type:       EventQuery,
		Query:      query,
		Result:     result,
		Mode:       "cached",
		RemoteAddr: "127.0.0.1:5000",
		Timestamp:  time.Now(),
	}
}

func TestCollectorFlushesFullBatch(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 2, FlushInterval: time.Hour}, nil)
	c.Start(context.Background())
	defer c.Close()

	c.Track(event("alice", ResultExists))
	c.Track(event("bob", ResultNotFound))

	require.Eventually(t, func() bool {
		_, n := pub.snapshot()
		return n == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), c.Published())
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 100, FlushInterval: time.Hour}, nil)
	c.Start(context.Background())

	for i := 0; i < 5; i++ {
		c.Track(event("alice", ResultExists))
	}
	c.Close()

	_, n := pub.snapshot()
	assert.Equal(t, 5, n)
	assert.Zero(t, c.Dropped())
}

func TestCollectorDropsWhenBufferFull(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BufferSize: 1, BatchSize: 10, FlushInterval: time.Hour}, nil)

	// Not started: nothing drains the channel.
	c.Track(event("a", ResultExists))
	c.Track(event("b", ResultExists))
	c.Track(event("c", ResultExists))
	assert.Equal(t, int64(2), c.Dropped())
}

func TestCollectorCircuitOpensOnPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	breaker := resilience.NewCircuitBreaker("kafka", resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 1, FlushInterval: time.Hour}, breaker)
	c.Start(context.Background())

	c.Track(event("a", ResultExists))
	require.Eventually(t, func() bool {
		return breaker.GetState() == resilience.StateOpen
	}, time.Second, 5*time.Millisecond)

	c.Track(event("b", ResultExists))
	c.Close()

	calls, n := pub.snapshot()
	assert.Equal(t, 1, calls, "open breaker short-circuits later flushes")
	assert.Zero(t, n)
	assert.Equal(t, int64(2), c.Dropped(), "held events are lost on shutdown")
}

func TestCollectorCloseWithoutStart(t *testing.T) {
	c := NewCollector(&fakePublisher{}, config.AnalyticsConfig{}, nil)
	c.Close()
}
