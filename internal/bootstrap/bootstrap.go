package bootstrap

import (
	"context"
	"fmt"
	"time"

	"card-server/internal/clients/mail"
	"card-server/internal/clients/mercadopago"
	"card-server/internal/config"
	"card-server/internal/email"
	"card-server/internal/links"
	"card-server/internal/metrics"
	"card-server/internal/observability"
	"card-server/internal/store"
	"card-server/internal/tracking/dedupe"
	"card-server/internal/tracking/delivery"

	ordersHandler "card-server/internal/orders/handler"
	ordersProcessor "card-server/internal/orders/processor"
	paymentsHandler "card-server/internal/payments/handler"
	paymentsProcessor "card-server/internal/payments/processor"
	trackingHandler "card-server/internal/tracking/handler"
	trackingProcessor "card-server/internal/tracking/processor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// dedupeRetention is how long an event id is remembered before the cache
// forgets it.
const dedupeRetention = 48 * time.Hour

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store    store.Store
	Logger   *observability.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	// Tracking pipeline
	DeliveryClient *delivery.Client
	Pipeline       *trackingProcessor.Pipeline

	// Handlers
	TrackingHandler trackingHandler.Handler
	PaymentsHandler paymentsHandler.Handler
	OrdersHandler   ordersHandler.Handler
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	connectionString := cfg.Database.ConnectionString()
	var err error
	deps.Store, err = store.New(connectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize metrics
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.New(deps.Registry)

	// Initialize clients
	mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resend client: %w", err)
	}
	paymentClient := mercadopago.New(cfg.Services.MercadoPagoBaseURL, cfg.Services.MercadoPagoToken, logger)

	// Initialize email service and link signer
	emailService := email.New(mailClient, cfg.Services.DefaultEmailSender, logger)
	linkSigner := links.New(cfg.Services.LinkSigningSecret, cfg.Services.WebAppURI)

	// Initialize the tracking pipeline
	dedupeCache := dedupe.New(cfg.Tracking.DedupeCapacity, dedupeRetention)
	deps.DeliveryClient = delivery.NewClient(delivery.Config{
		PixelID:          cfg.Tracking.PixelID,
		AccessToken:      cfg.Tracking.AccessToken,
		EndpointURL:      cfg.Tracking.EventsAPIURL,
		DrainInterval:    cfg.Tracking.DrainInterval,
		MaxQueueAttempts: cfg.Tracking.MaxAttempts,
	}, dedupeCache, deps.Metrics, logger)

	deps.Pipeline = trackingProcessor.New(trackingProcessor.Config{
		DefaultCountry: cfg.Tracking.DefaultCountry,
	}, deps.DeliveryClient, deps.Metrics, logger)
	deps.TrackingHandler = trackingHandler.New(deps.Pipeline, logger)

	// Initialize the payment confirmation processor
	paymentsProc := paymentsProcessor.New(
		&deps.Store,
		paymentClient,
		emailService,
		linkSigner,
		deps.Pipeline,
		deps.Metrics,
		logger,
	)
	deps.PaymentsHandler = paymentsHandler.New(paymentsProc, logger)

	// Initialize the orders processor and handler
	ordersProc := ordersProcessor.New(&deps.Store, deps.Pipeline, logger)
	deps.OrdersHandler = ordersHandler.New(ordersProc, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.Pipeline != nil {
		d.Pipeline.Shutdown()
	}
}
