package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateOrderParams represents parameters for creating an order
type CreateOrderParams struct {
	BuyerEmail string
	BuyerName  string
	BuyerPhone *string
	PlanCode   string
	CardSlug   string
	Amount     float64
	Currency   string
}

const sqlCreateOrder = `
INSERT INTO orders (buyer_email, buyer_name, buyer_phone, plan_code, card_slug, amount, currency, status_pagamento)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'pendente')
RETURNING id, buyer_email, buyer_name, buyer_phone, plan_code, card_slug, amount, currency,
          payment_id, status_pagamento, email_sending, email_sent, email_sent_at, created_at, updated_at
`

// CreateOrder creates a new pending order
func (s *Store) CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error) {
	var order Order
	err := s.db.GetContext(ctx, &order, sqlCreateOrder,
		params.BuyerEmail,
		params.BuyerName,
		params.BuyerPhone,
		params.PlanCode,
		params.CardSlug,
		params.Amount,
		params.Currency)
	if err != nil {
		s.logger.Error(ctx, "failed to create order", err)
		return Order{}, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

const sqlGetOrderByID = `
SELECT id, buyer_email, buyer_name, buyer_phone, plan_code, card_slug, amount, currency,
       payment_id, status_pagamento, email_sending, email_sent, email_sent_at, created_at, updated_at
FROM orders
WHERE id = $1
`

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, orderID uuid.UUID) (Order, error) {
	var order Order
	err := s.db.GetContext(ctx, &order, sqlGetOrderByID, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get order", err)
		return Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

const sqlApproveOrderPayment = `
UPDATE orders
SET status_pagamento = 'aprovado',
    payment_id = $2,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
`

// ApproveOrderPayment records the payment id and moves the order to
// aprovado. Setting the same values twice is harmless, so the write needs
// no precondition.
func (s *Store) ApproveOrderPayment(ctx context.Context, orderID uuid.UUID, paymentID string) error {
	result, err := s.db.ExecContext(ctx, sqlApproveOrderPayment, orderID, paymentID)
	if err != nil {
		s.logger.Error(ctx, "failed to approve order payment", err)
		return fmt.Errorf("failed to approve order payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlReserveConfirmationEmail = `
UPDATE orders
SET email_sending = TRUE,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1 AND email_sent = FALSE AND email_sending = FALSE
`

// ReserveConfirmationEmail attempts to take the confirmation-email
// reservation for an order. The database applies the predicate and the
// write atomically, so exactly one concurrent caller observes the
// false/false precondition. Returns true when the reservation was won.
func (s *Store) ReserveConfirmationEmail(ctx context.Context, orderID uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, sqlReserveConfirmationEmail, orderID)
	if err != nil {
		s.logger.Error(ctx, "failed to reserve confirmation email", err)
		return false, fmt.Errorf("failed to reserve confirmation email: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

const sqlCompleteConfirmationEmail = `
UPDATE orders
SET email_sent = TRUE,
    email_sent_at = CURRENT_TIMESTAMP,
    email_sending = FALSE,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
`

// CompleteConfirmationEmail marks the confirmation email as sent and
// releases the reservation.
func (s *Store) CompleteConfirmationEmail(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, sqlCompleteConfirmationEmail, orderID)
	if err != nil {
		s.logger.Error(ctx, "failed to complete confirmation email", err)
		return fmt.Errorf("failed to complete confirmation email: %w", err)
	}
	return nil
}

const sqlReleaseConfirmationEmail = `
UPDATE orders
SET email_sending = FALSE,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1 AND email_sent = FALSE
`

// ReleaseConfirmationEmail rolls back the reservation after a failed send
// so a later redelivery of the same notification can retry.
func (s *Store) ReleaseConfirmationEmail(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, sqlReleaseConfirmationEmail, orderID)
	if err != nil {
		s.logger.Error(ctx, "failed to release confirmation email reservation", err)
		return fmt.Errorf("failed to release confirmation email reservation: %w", err)
	}
	return nil
}
