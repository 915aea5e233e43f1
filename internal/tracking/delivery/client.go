package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"card-server/internal/metrics"
	"card-server/internal/observability"
	"card-server/internal/tracking/dedupe"
	"card-server/internal/tracking/events"
)

// Result reports what happened to a delivery from the caller's point of
// view. Err is informational: delivery is best-effort and a failed
// marketing event must never block the calling business flow.
type Result struct {
	Delivered bool
	Duplicate bool
	Queued    bool
	Err       error
}

// attemptState drives the synchronous delivery state machine.
type attemptState int

const (
	statePending attemptState = iota
	stateRetrying
	stateDelivered
	stateQueued
)

// Config holds delivery client configuration.
type Config struct {
	PixelID     string
	AccessToken string
	EndpointURL string

	// Timeout bounds one HTTP attempt. Defaults to 10s.
	Timeout time.Duration
	// RetryBackoff is the base delay between synchronous retries,
	// multiplied by the attempt number. Defaults to 250ms.
	RetryBackoff time.Duration
	// MaxQueueAttempts bounds background redelivery. Defaults to 3.
	MaxQueueAttempts int
	// DrainInterval is the retry queue tick. Defaults to 5s.
	DrainInterval time.Duration
}

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryBackoff  = 250 * time.Millisecond
	defaultQueueAttempts = 3
	defaultDrainInterval = 5 * time.Second

	// One initial attempt plus two synchronous retries.
	maxSyncAttempts = 3
)

// Client builds wire payloads and performs the outbound call with bounded
// retries, handing exhausted attempts to the retry queue.
type Client struct {
	cfg        Config
	httpClient *http.Client
	dedupe     *dedupe.Cache
	queue      *RetryQueue
	metrics    *metrics.Metrics
	logger     *observability.Logger
}

// NewClient creates a delivery client and its retry queue.
func NewClient(cfg Config, dedupeCache *dedupe.Cache, m *metrics.Metrics, logger *observability.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.MaxQueueAttempts <= 0 {
		cfg.MaxQueueAttempts = defaultQueueAttempts
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = defaultDrainInterval
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		dedupe:  dedupeCache,
		metrics: m,
		logger:  logger,
	}
	c.queue = newRetryQueue(cfg.DrainInterval, cfg.MaxQueueAttempts, c.post, m, logger)
	return c
}

// StartQueue launches the background drain loop.
func (c *Client) StartQueue(ctx context.Context) {
	go c.queue.Start(ctx)
}

// StopQueue stops the background drain loop.
func (c *Client) StopQueue() {
	c.queue.Stop()
}

// QueueDepth returns the number of entries waiting for redelivery.
func (c *Client) QueueDepth() int {
	return c.queue.Len()
}

// Deliver sends a scored event to the attribution API. Duplicates are
// discarded without a network call. Synchronous attempts follow an
// explicit Pending -> Retrying(n) -> Delivered | Queued state machine;
// exhausted attempts land on the retry queue and the caller sees success.
func (c *Client) Deliver(ctx context.Context, ev events.ScoredEvent) Result {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: ev.EventID},
		observability.Field{Key: "event_name", Value: string(ev.Name)},
	)

	if c.dedupe.Seen(ev.EventID, ev.Name) {
		c.metrics.EventsDuplicateTotal.Inc()
		c.logger.Info(ctx, "duplicate event discarded")
		return Result{Duplicate: true}
	}

	payload := buildPayload(c.cfg.PixelID, ev)

	state := statePending
	attempt := 0
	var lastErr error

	for {
		switch state {
		case statePending, stateRetrying:
			attempt++
			lastErr = c.post(ctx, payload)
			if lastErr == nil {
				state = stateDelivered
				continue
			}
			c.metrics.DeliveryAttemptsTotal.WithLabelValues("failure").Inc()
			c.logger.Warn(observability.WithFields(ctx,
				observability.Field{Key: "attempt", Value: attempt},
				observability.Field{Key: "error", Value: lastErr.Error()},
			), "delivery attempt failed")

			if attempt >= maxSyncAttempts {
				state = stateQueued
				continue
			}
			select {
			case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
				state = stateRetrying
			case <-ctx.Done():
				state = stateQueued
			}

		case stateDelivered:
			c.metrics.DeliveryAttemptsTotal.WithLabelValues("success").Inc()
			c.metrics.EventsDeliveredTotal.Inc()
			c.logger.Info(ctx, "event delivered")
			return Result{Delivered: true}

		case stateQueued:
			c.queue.Enqueue(ev.EventID, payload)
			c.metrics.EventsQueuedTotal.Inc()
			c.logger.Info(ctx, "event handed to retry queue")
			return Result{Queued: true, Err: lastErr}
		}
	}
}

// post performs one HTTP attempt against the attribution API.
func (c *Client) post(ctx context.Context, payload WirePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Access-Token", c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("received non-2xx status code: %d", resp.StatusCode)
	}
	return nil
}
