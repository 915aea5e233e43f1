package processor

import (
	"context"
	"strings"
	"sync"
	"time"

	"card-server/internal/metrics"
	"card-server/internal/observability"
	"card-server/internal/tracking/delivery"
	"card-server/internal/tracking/events"
	"card-server/internal/tracking/identity"
	"card-server/internal/tracking/quality"

	"github.com/google/uuid"
)

// EventDeliverer sends scored events to the attribution API.
type EventDeliverer interface {
	Deliver(ctx context.Context, ev events.ScoredEvent) delivery.Result
	StartQueue(ctx context.Context)
	StopQueue()
	QueueDepth() int
}

// Outcome is what the caller learns about one tracked event.
type Outcome struct {
	EventID   string
	Quality   events.QualityScore
	Delivered bool
	Duplicate bool
	Queued    bool
}

// Stats is a running summary of pipeline activity since startup.
type Stats struct {
	EventsTracked   int64
	AverageQuality  float64
	RetryQueueDepth int
}

// Config holds pipeline defaults applied to incoming intents.
type Config struct {
	// DefaultCountry fills Context.Country when the caller sent none.
	DefaultCountry string
}

// Pipeline normalizes, scores and delivers conversion events. It is the
// only component that sees plaintext identity, and only for the duration
// of one Track call.
type Pipeline struct {
	cfg       Config
	deliverer EventDeliverer
	metrics   *metrics.Metrics
	logger    *observability.Logger
	now       func() time.Time

	mu           sync.Mutex
	tracked      int64
	qualityTotal int64
}

// New creates a Pipeline.
func New(cfg Config, deliverer EventDeliverer, m *metrics.Metrics, logger *observability.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		deliverer: deliverer,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Start launches the background redelivery loop.
func (p *Pipeline) Start(ctx context.Context) {
	p.deliverer.StartQueue(ctx)
}

// Shutdown stops background redelivery. Entries still queued are dropped
// with the process; delivery is best-effort.
func (p *Pipeline) Shutdown() {
	p.deliverer.StopQueue()
}

// Track runs one intent through normalize -> score -> deliver. It never
// returns an error: malformed identity degrades to absent fields and a
// lower score, and delivery failures surface as Queued, not as failures.
func (p *Pipeline) Track(ctx context.Context, intent events.Intent) Outcome {
	now := p.now()

	if intent.Context.EventTime.IsZero() {
		intent.Context.EventTime = now
	}
	if intent.Context.Country == "" {
		intent.Context.Country = p.cfg.DefaultCountry
	}

	eventID := strings.TrimSpace(intent.RequestedEventID)
	if eventID == "" {
		eventID = "evt-" + uuid.New().String()
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: eventID},
		observability.Field{Key: "event_name", Value: string(intent.Name)},
	)

	normalized := identity.Normalize(intent.Identity, intent.Context, now)
	score := quality.Score(quality.Inputs{
		Identity:   normalized,
		Context:    intent.Context,
		Properties: intent.Properties,
		EventTime:  intent.Context.EventTime,
		Now:        now,
	})

	p.metrics.EventsReceivedTotal.WithLabelValues(string(intent.Name)).Inc()
	p.metrics.QualityScore.Observe(float64(score.Total))
	p.recordQuality(score.Total)

	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "quality_total", Value: score.Total},
		observability.Field{Key: "quality_grade", Value: string(score.Grade)},
	), "event scored")

	result := p.deliverer.Deliver(ctx, events.ScoredEvent{
		EventID:    eventID,
		Name:       intent.Name,
		EventTime:  intent.Context.EventTime,
		Properties: intent.Properties,
		Identity:   normalized,
		Context:    intent.Context,
		Quality:    score,
	})

	return Outcome{
		EventID:   eventID,
		Quality:   score,
		Delivered: result.Delivered,
		Duplicate: result.Duplicate,
		Queued:    result.Queued,
	}
}

// Stats reports running pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	tracked := p.tracked
	total := p.qualityTotal
	p.mu.Unlock()

	s := Stats{
		EventsTracked:   tracked,
		RetryQueueDepth: p.deliverer.QueueDepth(),
	}
	if tracked > 0 {
		s.AverageQuality = float64(total) / float64(tracked)
	}
	return s
}

func (p *Pipeline) recordQuality(total int) {
	p.mu.Lock()
	p.tracked++
	p.qualityTotal += int64(total)
	p.mu.Unlock()
}
