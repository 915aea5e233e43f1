package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"card-server/internal/metrics"
	"card-server/internal/observability"
)

// Attempt tracks one queued delivery. Attempts are mutated only by the
// drain loop; the delivery client only appends.
type Attempt struct {
	EventID      string
	Payload      WirePayload
	AttemptCount int
	NextRetryAt  time.Time
	EnqueuedAt   time.Time
}

type sendFunc func(ctx context.Context, payload WirePayload) error

// RetryQueue is an in-memory FIFO of failed deliveries drained on a fixed
// interval. Entries exceeding the max attempt count are dropped with an
// observable failure, which bounds queue growth under sustained outage.
type RetryQueue struct {
	mu          sync.Mutex
	entries     []*Attempt
	interval    time.Duration
	maxAttempts int
	send        sendFunc
	metrics     *metrics.Metrics
	logger      *observability.Logger
	stopChan    chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

func newRetryQueue(interval time.Duration, maxAttempts int, send sendFunc, m *metrics.Metrics, logger *observability.Logger) *RetryQueue {
	return &RetryQueue{
		interval:    interval,
		maxAttempts: maxAttempts,
		send:        send,
		metrics:     m,
		logger:      logger,
		stopChan:    make(chan struct{}),
		now:         time.Now,
	}
}

// Enqueue appends a failed delivery for background redelivery.
func (q *RetryQueue) Enqueue(eventID string, payload WirePayload) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.entries = append(q.entries, &Attempt{
		EventID:     eventID,
		Payload:     payload,
		NextRetryAt: now.Add(q.interval),
		EnqueuedAt:  now,
	})
	q.metrics.RetryQueueDepth.Set(float64(len(q.entries)))
}

// Len returns the current queue depth.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Start runs the drain loop until Stop is called or the context ends.
func (q *RetryQueue) Start(ctx context.Context) {
	q.logger.Info(ctx, "Starting delivery retry queue")

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.drainOne(ctx)
		case <-q.stopChan:
			q.logger.Info(ctx, "Stopping delivery retry queue")
			return
		case <-ctx.Done():
			q.logger.Info(ctx, "Context cancelled, stopping delivery retry queue")
			return
		}
	}
}

// Stop stops the drain loop.
func (q *RetryQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopChan)
	})
}

// drainOne pops the head of the queue and re-attempts delivery once.
// Failed entries under the attempt limit rejoin the tail; the rest are
// dropped for good.
func (q *RetryQueue) drainOne(ctx context.Context) {
	entry := q.pop()
	if entry == nil {
		return
	}

	entryCtx := observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: entry.EventID},
		observability.Field{Key: "attempt", Value: entry.AttemptCount + 1},
	)

	entry.AttemptCount++
	err := q.send(entryCtx, entry.Payload)
	if err == nil {
		q.metrics.DeliveryAttemptsTotal.WithLabelValues("success").Inc()
		q.metrics.EventsDeliveredTotal.Inc()
		q.logger.Info(entryCtx, "queued event delivered on retry")
		return
	}

	q.metrics.DeliveryAttemptsTotal.WithLabelValues("failure").Inc()

	if entry.AttemptCount >= q.maxAttempts {
		q.metrics.EventsDroppedTotal.Inc()
		q.logger.Error(entryCtx, "dropping event after exhausting retries",
			fmt.Errorf("max attempts reached: %w", err))
		return
	}

	entry.NextRetryAt = q.now().Add(q.interval)
	q.push(entry)
	q.logger.Warn(entryCtx, "queued event delivery failed, will retry")
}

// pop removes and returns the head entry if it is due, nil otherwise.
func (q *RetryQueue) pop() *Attempt {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}
	head := q.entries[0]
	if head.NextRetryAt.After(q.now()) {
		return nil
	}
	q.entries = append([]*Attempt(nil), q.entries[1:]...)
	q.metrics.RetryQueueDepth.Set(float64(len(q.entries)))
	return head
}

// push returns a not-yet-exhausted entry to the tail.
func (q *RetryQueue) push(entry *Attempt) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, entry)
	q.metrics.RetryQueueDepth.Set(float64(len(q.entries)))
}
