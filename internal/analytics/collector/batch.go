// Package collector buffers verdict analytics events and publishes them to
// the analytics topic in bulk.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/kafka"
)

// maxBacklog is how many batches a collector holds while the broker is
// unreachable.
const maxBacklog = 3

// Publisher writes a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector is an analytics.Tracker that publishes every batchSize
// events or every flushInterval, whichever comes first. Flushes run on the
// Start goroutine only.
type BatchCollector struct {
	pub           Publisher
	batchSize     int
	flushInterval time.Duration
	log           *slog.Logger

	mu      sync.Mutex
	pending []kafka.Event
	dropped atomic.Int64

	full chan struct{}
	done chan struct{}
}

var _ analytics.Tracker = (*BatchCollector)(nil)

func NewBatchCollector(pub Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		pub:           pub,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           slog.Default().With("component", "analytics-collector"),
		pending:       make([]kafka.Event, 0, batchSize),
		full:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start runs the flush loop until ctx is cancelled, then publishes what is
// left with a five second budget.
func (bc *BatchCollector) Start(ctx context.Context) {
	bc.log.Info("analytics collector started", "batch_size", bc.batchSize, "flush_interval", bc.flushInterval)
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.flush(final)
				cancel()
				return
			case <-ticker.C:
				bc.flush(ctx)
			case <-bc.full:
				bc.flush(ctx)
			}
		}
	}()
}

// Track queues e keyed by its source and wakes the flush loop once a
// batch is ready. It never blocks on the broker.
func (bc *BatchCollector) Track(e analytics.Event) {
	bc.mu.Lock()
	bc.pending = append(bc.pending, kafka.Event{Key: e.Source, Value: e})
	ready := len(bc.pending) >= bc.batchSize
	bc.mu.Unlock()

	if ready {
		select {
		case bc.full <- struct{}{}:
		default:
		}
	}
}

// Close waits for the final flush after the Start context ends.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// BufferLen reports the number of queued events.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

// Dropped reports events discarded because the backlog overflowed.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

// flush publishes the queue. A failed batch goes back to the front of the
// queue, which keeps at most maxBacklog batches and drops the oldest.
func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	out := bc.pending
	bc.pending = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()
	if len(out) == 0 {
		return
	}

	err := bc.pub.PublishBatch(ctx, out)
	if err == nil {
		bc.log.Debug("analytics flushed", "events", len(out))
		return
	}

	bc.mu.Lock()
	bc.pending = append(out, bc.pending...)
	excess := len(bc.pending) - maxBacklog*bc.batchSize
	if excess > 0 {
		bc.pending = bc.pending[excess:]
		bc.dropped.Add(int64(excess))
	}
	bc.mu.Unlock()
	bc.log.Error("analytics flush failed", "events", len(out), "dropped", max(excess, 0), "error", err)
}
