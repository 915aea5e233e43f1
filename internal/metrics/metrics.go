package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for the conversion event pipeline.
// It is constructed once at bootstrap and injected into the components that
// record observations, so no package-level registry state is required.
type Metrics struct {
	EventsReceivedTotal    *prometheus.CounterVec
	EventsDeliveredTotal   prometheus.Counter
	EventsDuplicateTotal   prometheus.Counter
	EventsQueuedTotal      prometheus.Counter
	EventsDroppedTotal     prometheus.Counter
	DeliveryAttemptsTotal  *prometheus.CounterVec
	QualityScore           prometheus.Histogram
	RetryQueueDepth        prometheus.Gauge
	ConfirmationEmailTotal *prometheus.CounterVec
	PaymentNotifications   *prometheus.CounterVec
}

// New creates and registers the pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversion_events_received_total",
				Help: "Total number of conversion event intents received",
			},
			[]string{"event"},
		),
		EventsDeliveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conversion_events_delivered_total",
				Help: "Total number of conversion events delivered to the attribution API",
			},
		),
		EventsDuplicateTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conversion_events_duplicate_total",
				Help: "Total number of conversion events discarded as duplicates",
			},
		),
		EventsQueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conversion_events_queued_total",
				Help: "Total number of conversion events handed to the retry queue",
			},
		),
		EventsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conversion_events_dropped_total",
				Help: "Total number of conversion events dropped after exhausting retries",
			},
		),
		DeliveryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversion_delivery_attempts_total",
				Help: "Total number of delivery attempts by outcome",
			},
			[]string{"outcome"},
		),
		QualityScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conversion_event_quality_score",
				Help:    "Distribution of event match quality scores",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		),
		RetryQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "conversion_retry_queue_depth",
				Help: "Current number of entries waiting in the retry queue",
			},
		),
		ConfirmationEmailTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmation_emails_total",
				Help: "Total number of confirmation email attempts by outcome",
			},
			[]string{"outcome"},
		),
		PaymentNotifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_notifications_total",
				Help: "Total number of payment notifications by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.EventsReceivedTotal,
		m.EventsDeliveredTotal,
		m.EventsDuplicateTotal,
		m.EventsQueuedTotal,
		m.EventsDroppedTotal,
		m.DeliveryAttemptsTotal,
		m.QualityScore,
		m.RetryQueueDepth,
		m.ConfirmationEmailTotal,
		m.PaymentNotifications,
	)

	return m
}

// NewForTesting creates an unregistered Metrics instance for use in tests.
func NewForTesting() *Metrics {
	return New(prometheus.NewRegistry())
}
