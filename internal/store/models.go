package store

import (
	"time"

	"github.com/google/uuid"
)

// Payment status values stored in orders.status_pagamento. The storefront
// records them in Portuguese to match the payment processor's locale.
const (
	PaymentStatusPendente = "pendente"
	PaymentStatusAprovado = "aprovado"
)

// Order represents a greeting-card purchase and carries the payment
// confirmation reservation state. The reservation protocol in the payments
// processor is the only writer of EmailSending/EmailSent.
type Order struct {
	ID              uuid.UUID  `db:"id"`
	BuyerEmail      string     `db:"buyer_email"`
	BuyerName       string     `db:"buyer_name"`
	BuyerPhone      *string    `db:"buyer_phone"`
	PlanCode        string     `db:"plan_code"`
	CardSlug        string     `db:"card_slug"`
	Amount          float64    `db:"amount"`
	Currency        string     `db:"currency"`
	PaymentID       *string    `db:"payment_id"`
	StatusPagamento string     `db:"status_pagamento"`
	EmailSending    bool       `db:"email_sending"`
	EmailSent       bool       `db:"email_sent"`
	EmailSentAt     *time.Time `db:"email_sent_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}
