// Package analytics publishes per-connection query events to Kafka and
// aggregates them back into running statistics.
package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/resilience"
)

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	finalFlushTimeout    = 5 * time.Second
)

// Publisher writes a batch of events to the message bus.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers query events off the request path and flushes them in
// batches, either when a batch fills or every flush interval. Publishing
// goes through a circuit breaker so a dead broker costs one fast failure
// per flush instead of a full write timeout.
type Collector struct {
	publisher     Publisher
	breaker       *resilience.CircuitBreaker
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	published     atomic.Int64
	dropped       atomic.Int64
	logger        *slog.Logger
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewCollector creates a Collector. breaker may be nil.
func NewCollector(publisher Publisher, cfg config.AnalyticsConfig, breaker *resilience.CircuitBreaker) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return &Collector{
		publisher:     publisher,
		breaker:       breaker,
		eventCh:       make(chan QueryEvent, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It returns immediately.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track enqueues an event. It never blocks: when the buffer is full the
// event is dropped and counted.
func (c *Collector) Track(event QueryEvent) {
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Close stops the flush loop after a final flush of everything buffered.
func (c *Collector) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Published reports how many events reached the publisher successfully.
func (c *Collector) Published() int64 { return c.published.Load() }

// Dropped reports how many events were discarded.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event := <-c.eventCh:
			batch = append(batch, toKafkaEvent(event))
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			batch = c.drain(batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			if rest := c.flush(flushCtx, batch); len(rest) > 0 {
				c.dropped.Add(int64(len(rest)))
				c.logger.Warn("events lost on shutdown", "count", len(rest))
			}
			cancel()
			return
		}
	}
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event := <-c.eventCh:
			batch = append(batch, toKafkaEvent(event))
		default:
			return batch
		}
	}
}

// flush publishes batch and returns what is left to retry on the next
// flush. Failed batches are re-queued up to three batches' worth.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	publish := func() error { return c.publisher.PublishBatch(ctx, batch) }
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(publish)
	} else {
		err = publish()
	}
	if err == nil {
		c.published.Add(int64(len(batch)))
		c.logger.Debug("batch flushed", "events", len(batch))
		return make([]kafka.Event, 0, c.batchSize)
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug("batch held, circuit open", "batch_size", len(batch))
	} else {
		c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
	}
	if limit := c.batchSize * 3; len(batch) > limit {
		dropped := len(batch) - limit
		batch = batch[dropped:]
		c.dropped.Add(int64(dropped))
		c.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
	}
	return batch
}

func toKafkaEvent(event QueryEvent) kafka.Event {
	return kafka.Event{
		Key:   event.RemoteAddr,
		Value: event,
		Time:  event.Timestamp,
	}
}
