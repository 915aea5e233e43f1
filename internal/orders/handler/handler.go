package handler

import (
	"errors"
	"net/http"
	"time"

	"card-server/internal/apierrors"
	"card-server/internal/observability"
	"card-server/internal/orders/processor"
	"card-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor *processor.Processor
	logger    *observability.Logger
}

func New(processor *processor.Processor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// CreateOrderRequest represents the HTTP request for creating an order
type CreateOrderRequest struct {
	BuyerEmail string  `json:"buyer_email" binding:"required,email"`
	BuyerName  string  `json:"buyer_name" binding:"required,min=1,max=200"`
	BuyerPhone *string `json:"buyer_phone,omitempty"`
	PlanCode   string  `json:"plan_code" binding:"required"`
	CardSlug   string  `json:"card_slug" binding:"required"`
	Amount     float64 `json:"amount" binding:"required,gt=0"`
	Currency   string  `json:"currency" binding:"required,len=3"`
}

// OrderResponse is the client-facing projection of an order. Reservation
// bookkeeping columns stay internal.
type OrderResponse struct {
	ID              string     `json:"id"`
	BuyerEmail      string     `json:"buyer_email"`
	BuyerName       string     `json:"buyer_name"`
	PlanCode        string     `json:"plan_code"`
	CardSlug        string     `json:"card_slug"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	StatusPagamento string     `json:"status_pagamento"`
	EmailSent       bool       `json:"email_sent"`
	CreatedAt       time.Time  `json:"created_at"`
	EmailSentAt     *time.Time `json:"email_sent_at,omitempty"`
}

// HandleCreateOrder handles POST /api/orders
func (h *Handler) HandleCreateOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error(ctx, "failed to bind create order request", err)
		apierrors.BadRequest(c, "INVALID_ORDER", "invalid request")
		return
	}

	order, err := h.processor.CreateOrder(ctx, processor.CreateOrderRequest{
		BuyerEmail: req.BuyerEmail,
		BuyerName:  req.BuyerName,
		BuyerPhone: req.BuyerPhone,
		PlanCode:   req.PlanCode,
		CardSlug:   req.CardSlug,
		Amount:     req.Amount,
		Currency:   req.Currency,
	})
	if err != nil {
		h.logger.Error(ctx, "failed to create order", err)
		if errors.Is(err, processor.ErrInvalidOrder) {
			apierrors.BadRequest(c, "INVALID_ORDER", "invalid order")
			return
		}
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(order))
}

// HandleGetOrder handles GET /api/orders/:order_id
func (h *Handler) HandleGetOrder(c *gin.Context) {
	ctx := c.Request.Context()

	orderID, err := uuid.Parse(c.Param("order_id"))
	if err != nil {
		h.logger.Error(ctx, "failed to parse order ID", err)
		apierrors.BadRequest(c, "INVALID_ORDER_ID", "invalid order id")
		return
	}

	order, err := h.processor.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, processor.ErrOrderNotFound) {
			apierrors.NotFound(c, "order not found")
			return
		}
		h.logger.Error(ctx, "failed to get order", err)
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(order))
}

func toResponse(order store.Order) OrderResponse {
	return OrderResponse{
		ID:              order.ID.String(),
		BuyerEmail:      order.BuyerEmail,
		BuyerName:       order.BuyerName,
		PlanCode:        order.PlanCode,
		CardSlug:        order.CardSlug,
		Amount:          order.Amount,
		Currency:        order.Currency,
		StatusPagamento: order.StatusPagamento,
		EmailSent:       order.EmailSent,
		CreatedAt:       order.CreatedAt,
		EmailSentAt:     order.EmailSentAt,
	}
}
