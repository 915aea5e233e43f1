package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"card-server/internal/clients/mercadopago"
	"card-server/internal/email"
	"card-server/internal/metrics"
	"card-server/internal/observability"
	"card-server/internal/store"
	"card-server/internal/tracking/events"
	tracking "card-server/internal/tracking/processor"

	"github.com/google/uuid"
)

var ErrMalformedReference = errors.New("malformed external reference")

// paymentStatusApproved is the upstream payment status that triggers
// order approval. Everything else leaves the order pendente.
const paymentStatusApproved = "approved"

// cardLinkTTL bounds how long a confirmation email's share link stays
// valid.
const cardLinkTTL = 90 * 24 * time.Hour

// OrderStore persists orders and the confirmation-email reservation.
type OrderStore interface {
	GetOrderByID(ctx context.Context, orderID uuid.UUID) (store.Order, error)
	ApproveOrderPayment(ctx context.Context, orderID uuid.UUID, paymentID string) error
	ReserveConfirmationEmail(ctx context.Context, orderID uuid.UUID) (bool, error)
	CompleteConfirmationEmail(ctx context.Context, orderID uuid.UUID) error
	ReleaseConfirmationEmail(ctx context.Context, orderID uuid.UUID) error
}

// PaymentClient resolves a payment notification id to payment details.
type PaymentClient interface {
	GetPaymentDetails(ctx context.Context, paymentID string) (mercadopago.PaymentDetails, error)
}

// EmailSender sends the order confirmation email.
type EmailSender interface {
	SendOrderConfirmation(ctx context.Context, to string, data email.TemplateData) error
}

// LinkSigner issues the shareable card link embedded in the email.
type LinkSigner interface {
	CardLink(orderID uuid.UUID, cardSlug string, ttl time.Duration) (string, error)
}

// EventTracker emits conversion events through the tracking pipeline.
type EventTracker interface {
	Track(ctx context.Context, intent events.Intent) tracking.Outcome
}

// Processor coordinates payment confirmation: order approval, the
// confirmation-email reservation, and the Purchase conversion event.
type Processor struct {
	store    OrderStore
	payments PaymentClient
	emails   EmailSender
	links    LinkSigner
	tracker  EventTracker
	metrics  *metrics.Metrics
	logger   *observability.Logger
}

// New creates a payment confirmation processor.
func New(orderStore OrderStore, payments PaymentClient, emails EmailSender, links LinkSigner, tracker EventTracker, m *metrics.Metrics, logger *observability.Logger) *Processor {
	return &Processor{
		store:    orderStore,
		payments: payments,
		emails:   emails,
		links:    links,
		tracker:  tracker,
		metrics:  m,
		logger:   logger,
	}
}

// HandleNotification processes one payment notification. It is safe under
// arbitrary concurrent redelivery: the database reservation guarantees at
// most one confirmation email per order, and every write is idempotent.
//
// A nil return means "acknowledged" — including lookups that failed after
// retries, since anything but an acknowledgment triggers a redelivery storm
// from the notifier. Errors are returned only for unexpected store
// failures, and the webhook handler acknowledges those too.
func (p *Processor) HandleNotification(ctx context.Context, paymentID string) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "payment_id", Value: paymentID},
	)

	details, err := p.payments.GetPaymentDetails(ctx, paymentID)
	if err != nil {
		p.metrics.PaymentNotifications.WithLabelValues("lookup_failed").Inc()
		p.logger.Error(ctx, "giving up on payment notification after lookup retries", err)
		return nil
	}

	if details.Status != paymentStatusApproved {
		p.metrics.PaymentNotifications.WithLabelValues("ignored").Inc()
		p.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "status", Value: details.Status},
		), "ignoring non-approved payment notification")
		return nil
	}

	ref, err := parseExternalReference(details.ExternalReference)
	if err != nil {
		p.metrics.PaymentNotifications.WithLabelValues("malformed").Inc()
		p.logger.Error(ctx, "cannot resolve order from external reference", err)
		return nil
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "order_id", Value: ref.OrderID.String()},
	)

	order, err := p.store.GetOrderByID(ctx, ref.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.metrics.PaymentNotifications.WithLabelValues("order_not_found").Inc()
			p.logger.Error(ctx, "payment notification references unknown order", err)
			return nil
		}
		return fmt.Errorf("failed to load order: %w", err)
	}

	// Replay gates. Both only short-circuit once the email side effect has
	// completed; until then the reservation below is the single authority,
	// so a redelivery after a failed send still gets to retry.
	if order.EmailSent {
		if order.PaymentID != nil && *order.PaymentID == paymentID {
			p.metrics.PaymentNotifications.WithLabelValues("replay").Inc()
			p.logger.Info(ctx, "exact replay of a processed notification")
			return nil
		}
		if order.StatusPagamento == store.PaymentStatusAprovado {
			p.metrics.PaymentNotifications.WithLabelValues("replay").Inc()
			p.logger.Info(ctx, "order already approved and confirmed")
			return nil
		}
	}

	if err := p.store.ApproveOrderPayment(ctx, ref.OrderID, paymentID); err != nil {
		return fmt.Errorf("failed to approve order: %w", err)
	}

	reserved, err := p.store.ReserveConfirmationEmail(ctx, ref.OrderID)
	if err != nil {
		return fmt.Errorf("failed to reserve confirmation email: %w", err)
	}
	if !reserved {
		p.metrics.PaymentNotifications.WithLabelValues("reservation_lost").Inc()
		p.logger.Info(ctx, "confirmation email already reserved or sent")
		return nil
	}

	if err := p.sendConfirmation(ctx, order, details); err != nil {
		p.metrics.ConfirmationEmailTotal.WithLabelValues("failure").Inc()
		p.logger.Error(ctx, "confirmation email failed, releasing reservation", err)
		if releaseErr := p.store.ReleaseConfirmationEmail(ctx, ref.OrderID); releaseErr != nil {
			p.logger.Error(ctx, "failed to release confirmation email reservation", releaseErr)
		}
		return nil
	}

	if err := p.store.CompleteConfirmationEmail(ctx, ref.OrderID); err != nil {
		p.logger.Error(ctx, "failed to mark confirmation email as sent", err)
		return fmt.Errorf("failed to complete confirmation email: %w", err)
	}

	p.metrics.ConfirmationEmailTotal.WithLabelValues("success").Inc()
	p.metrics.PaymentNotifications.WithLabelValues("confirmed").Inc()
	p.logger.Info(ctx, "payment confirmed and email sent")
	return nil
}

// sendConfirmation sends the confirmation email and emits the Purchase
// event. Only the email outcome decides the reservation: tracking is
// best-effort and never fails the confirmation.
func (p *Processor) sendConfirmation(ctx context.Context, order store.Order, details mercadopago.PaymentDetails) error {
	link, err := p.links.CardLink(order.ID, order.CardSlug, cardLinkTTL)
	if err != nil {
		return fmt.Errorf("failed to build card link: %w", err)
	}

	err = p.emails.SendOrderConfirmation(ctx, order.BuyerEmail, email.TemplateData{
		BuyerName: order.BuyerName,
		CardLink:  link,
		PlanName:  planName(order.PlanCode),
		OrderID:   order.ID.String(),
		Amount:    order.Amount,
		Currency:  order.Currency,
	})
	if err != nil {
		return err
	}

	p.emitPurchase(ctx, order, details)
	return nil
}

// emitPurchase sends the Purchase conversion event for a confirmed order.
func (p *Processor) emitPurchase(ctx context.Context, order store.Order, details mercadopago.PaymentDetails) {
	var phone string
	if order.BuyerPhone != nil {
		phone = *order.BuyerPhone
	}

	outcome := p.tracker.Track(ctx, events.Intent{
		Name: events.Purchase,
		// One Purchase per order, whatever the notifier redelivers.
		RequestedEventID: "purchase-" + order.ID.String(),
		Properties: events.Properties{
			ContentID:   order.PlanCode,
			ContentName: planName(order.PlanCode),
			ContentType: "product",
			Value:       order.Amount,
			Currency:    order.Currency,
			OrderID:     order.ID.String(),
		},
		Identity: events.RawIdentity{
			Email:      order.BuyerEmail,
			Phone:      phone,
			ExternalID: order.ID.String(),
		},
	})

	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: outcome.EventID},
		observability.Field{Key: "duplicate", Value: outcome.Duplicate},
	), "purchase event emitted")
}

// externalReference is the composite reference set on the payment
// preference at checkout.
type externalReference struct {
	OrderID    uuid.UUID
	BuyerEmail string
	PlanCode   string
}

// parseExternalReference splits "orderID|buyerEmail|planCode".
func parseExternalReference(raw string) (externalReference, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 3 {
		return externalReference{}, fmt.Errorf("%w: %q", ErrMalformedReference, raw)
	}

	orderID, err := uuid.Parse(parts[0])
	if err != nil {
		return externalReference{}, fmt.Errorf("%w: invalid order id: %s", ErrMalformedReference, err)
	}

	return externalReference{
		OrderID:    orderID,
		BuyerEmail: parts[1],
		PlanCode:   parts[2],
	}, nil
}

// planName maps a plan code to its storefront display name.
func planName(code string) string {
	switch code {
	case "basico":
		return "Plano Básico"
	case "premium":
		return "Plano Premium"
	default:
		return code
	}
}
