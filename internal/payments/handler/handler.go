package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"card-server/internal/apierrors"
	"card-server/internal/observability"

	"github.com/gin-gonic/gin"
)

// NotificationProcessor handles a resolved payment notification.
type NotificationProcessor interface {
	HandleNotification(ctx context.Context, paymentID string) error
}

type Handler struct {
	processor NotificationProcessor
	logger    *observability.Logger
}

func New(processor NotificationProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// webhookBody covers the JSON notification shape. The id arrives as a
// number or a string depending on the notification generation.
type webhookBody struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// HandlePaymentWebhook handles POST /api/payments/webhook. The notifier
// treats anything but a 2xx as "retry later", so the only non-200 answer
// is 400 for notifications we could not even parse; internal processing
// failures are logged and still acknowledged.
func (h *Handler) HandlePaymentWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	paymentID, topic := h.extractNotification(c)
	if paymentID == "" {
		h.logger.Warn(ctx, "unparseable payment notification")
		apierrors.BadRequest(c, "INVALID_NOTIFICATION", "missing payment id")
		return
	}

	if topic != "" && topic != "payment" {
		h.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "topic", Value: topic},
		), "ignoring non-payment notification")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.processor.HandleNotification(ctx, paymentID); err != nil {
		h.logger.Error(ctx, "payment notification processing failed", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// extractNotification pulls the payment id and topic from either the JSON
// body or the query string, the two delivery styles the notifier uses.
func (h *Handler) extractNotification(c *gin.Context) (paymentID, topic string) {
	var body webhookBody
	if err := c.ShouldBindJSON(&body); err == nil {
		if id := body.Data.ID.String(); id != "" {
			topic = body.Type
			if topic == "" {
				topic = body.Topic
			}
			return id, topic
		}
	}

	id := c.Query("data.id")
	if id == "" {
		id = c.Query("id")
	}
	topic = c.Query("topic")
	if topic == "" {
		topic = c.Query("type")
	}
	return strings.TrimSpace(id), topic
}
