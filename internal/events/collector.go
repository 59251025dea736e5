// Package events publishes one processed-file event per finished file. Events
// accumulate in memory and are flushed to Kafka in batches, behind a circuit
// breaker so a dead broker never slows the pipeline down.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edenschool/examparse/pkg/kafka"
	"github.com/edenschool/examparse/pkg/metrics"
	"github.com/edenschool/examparse/pkg/resilience"
)

// EventTypeFileProcessed is the header value on every published event.
const EventTypeFileProcessed = "file.processed"

// FileProcessed is the payload of one event.
type FileProcessed struct {
	MetaID     int64     `json:"metaId"`
	FileID     int64     `json:"fileId"`
	FileName   string    `json:"fileName"`
	Format     string    `json:"format,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Passages   int       `json:"passages"`
	Questions  int       `json:"questions"`
	DurationMs int64     `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events and flushes them when the buffer reaches
// batchSize or every flushInterval, whichever comes first.
type Collector struct {
	publisher     Publisher
	breaker       *resilience.CircuitBreaker
	metrics       *metrics.Metrics
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(p Publisher, m *metrics.Metrics, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher: p,
		breaker: resilience.NewCircuitBreaker("file-events", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		}),
		metrics:       m,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "event-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop. It returns immediately; the loop
// makes a final flush once ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("event collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track queues ev. A full buffer triggers an asynchronous flush.
func (c *Collector) Track(ev FileProcessed) {
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{
		Key:   fmt.Sprintf("%d_%d", ev.MetaID, ev.FileID),
		Type:  EventTypeFileProcessed,
		Value: ev,
	})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()
	if full {
		go c.Flush(context.Background())
	}
}

// Close waits for the flush loop started by Start to finish.
func (c *Collector) Close() {
	<-c.done
}

func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush publishes everything buffered. Failed batches are re-queued, capped
// at three batches; older events beyond the cap are dropped.
func (c *Collector) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	err := c.breaker.Execute(func() error {
		return c.publisher.PublishBatch(ctx, batch)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Debug("broker circuit open, keeping events", "batch_size", len(batch))
		} else {
			c.logger.Error("event flush failed", "batch_size", len(batch), "error", err)
		}
		c.requeue(batch)
		return fmt.Errorf("flushing %d events: %w", len(batch), err)
	}
	if c.metrics != nil {
		for _, e := range batch {
			if ev, ok := e.Value.(FileProcessed); ok {
				c.metrics.EventsPublishedTotal.WithLabelValues(ev.Status).Inc()
			}
		}
	}
	c.logger.Debug("events flushed", "events", len(batch))
	return nil
}

func (c *Collector) requeue(batch []kafka.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = append(batch, c.buffer...)
	limit := c.batchSize * 3
	if len(c.buffer) > limit {
		dropped := len(c.buffer) - limit
		c.buffer = c.buffer[dropped:]
		c.logger.Warn("event buffer overflow, oldest events dropped", "dropped", dropped)
	}
}
