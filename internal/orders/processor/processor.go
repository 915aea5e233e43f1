package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"card-server/internal/observability"
	"card-server/internal/store"
	"card-server/internal/tracking/events"
	tracking "card-server/internal/tracking/processor"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order")
)

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, params store.CreateOrderParams) (store.Order, error)
	GetOrderByID(ctx context.Context, orderID uuid.UUID) (store.Order, error)
}

// EventTracker emits conversion events through the tracking pipeline.
type EventTracker interface {
	Track(ctx context.Context, intent events.Intent) tracking.Outcome
}

// CreateOrderRequest carries the checkout form data for a new order.
type CreateOrderRequest struct {
	BuyerEmail string
	BuyerName  string
	BuyerPhone *string
	PlanCode   string
	CardSlug   string
	Amount     float64
	Currency   string
}

// Processor handles checkout order creation and lookup.
type Processor struct {
	store   OrderStore
	tracker EventTracker
	logger  *observability.Logger
}

// New creates an orders processor.
func New(orderStore OrderStore, tracker EventTracker, logger *observability.Logger) *Processor {
	return &Processor{
		store:   orderStore,
		tracker: tracker,
		logger:  logger,
	}
}

// CreateOrder records a pending order and emits an InitiateCheckout event.
// The conversion event is best-effort and never fails the checkout.
func (p *Processor) CreateOrder(ctx context.Context, req CreateOrderRequest) (store.Order, error) {
	if err := validate(req); err != nil {
		return store.Order{}, err
	}

	order, err := p.store.CreateOrder(ctx, store.CreateOrderParams{
		BuyerEmail: strings.TrimSpace(req.BuyerEmail),
		BuyerName:  strings.TrimSpace(req.BuyerName),
		BuyerPhone: req.BuyerPhone,
		PlanCode:   req.PlanCode,
		CardSlug:   req.CardSlug,
		Amount:     req.Amount,
		Currency:   req.Currency,
	})
	if err != nil {
		return store.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	p.emitInitiateCheckout(ctx, order)
	return order, nil
}

// GetOrder looks up an order by id.
func (p *Processor) GetOrder(ctx context.Context, orderID uuid.UUID) (store.Order, error) {
	order, err := p.store.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Order{}, ErrOrderNotFound
		}
		return store.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (p *Processor) emitInitiateCheckout(ctx context.Context, order store.Order) {
	var phone string
	if order.BuyerPhone != nil {
		phone = *order.BuyerPhone
	}

	outcome := p.tracker.Track(ctx, events.Intent{
		Name:             events.InitiateCheckout,
		RequestedEventID: "checkout-" + order.ID.String(),
		Properties: events.Properties{
			ContentID:   order.PlanCode,
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
		observability.Field{Key: "order_id", Value: order.ID.String()},
		observability.Field{Key: "event_id", Value: outcome.EventID},
	), "checkout event emitted")
}

func validate(req CreateOrderRequest) error {
	if strings.TrimSpace(req.BuyerEmail) == "" {
		return fmt.Errorf("%w: buyer email is required", ErrInvalidOrder)
	}
	if strings.TrimSpace(req.BuyerName) == "" {
		return fmt.Errorf("%w: buyer name is required", ErrInvalidOrder)
	}
	if req.PlanCode == "" || req.CardSlug == "" {
		return fmt.Errorf("%w: plan code and card slug are required", ErrInvalidOrder)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}
	if req.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidOrder)
	}
	return nil
}
