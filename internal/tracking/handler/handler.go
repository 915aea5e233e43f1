package handler

import (
	"net/http"
	"time"

	"card-server/internal/apierrors"
	"card-server/internal/observability"
	"card-server/internal/tracking/events"
	"card-server/internal/tracking/processor"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	pipeline *processor.Pipeline
	logger   *observability.Logger
}

func New(pipeline *processor.Pipeline, logger *observability.Logger) Handler {
	return Handler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// TrackEventRequest represents the HTTP request for emitting a conversion event
type TrackEventRequest struct {
	Event       string  `json:"event" binding:"required"`
	EventID     string  `json:"event_id,omitempty"`
	ContentID   string  `json:"content_id,omitempty"`
	ContentName string  `json:"content_name,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	OrderID     string  `json:"order_id,omitempty"`

	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	ExternalID string `json:"external_id,omitempty"`

	PageURL           string `json:"page_url,omitempty"`
	ReferrerURL       string `json:"referrer_url,omitempty"`
	TTCLID            string `json:"ttclid,omitempty"`
	TTP               string `json:"ttp,omitempty"`
	Country           string `json:"country,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
	Language          string `json:"language,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	EventTime         int64  `json:"event_time,omitempty"`
}

// TrackEventResponse is the acknowledgement sent to the storefront.
type TrackEventResponse struct {
	EventID   string      `json:"event_id"`
	Quality   QualityView `json:"quality"`
	Delivered bool        `json:"delivered"`
	Duplicate bool        `json:"duplicate"`
	Queued    bool        `json:"queued"`
}

// QualityView is the client-facing projection of a quality score.
type QualityView struct {
	Total           int      `json:"total"`
	Grade           string   `json:"grade"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// HandleTrackEvent handles POST /api/track/event. The request context
// (client IP, user agent, referrer) is assembled here, once, at the
// boundary; downstream components never look at the HTTP request.
// Delivery failures never surface as 5xx: tracking is best-effort and the
// storefront must not break over it.
func (h *Handler) HandleTrackEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req TrackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error(ctx, "failed to bind track event request", err)
		apierrors.BadRequest(c, "INVALID_EVENT", "invalid request")
		return
	}

	intent := events.Intent{
		Name:             events.Name(req.Event),
		RequestedEventID: req.EventID,
		Properties: events.Properties{
			ContentID:   req.ContentID,
			ContentName: req.ContentName,
			ContentType: req.ContentType,
			Value:       req.Value,
			Currency:    req.Currency,
			OrderID:     req.OrderID,
		},
		Identity: events.RawIdentity{
			Email:      req.Email,
			Phone:      req.Phone,
			ExternalID: req.ExternalID,
		},
		Context: buildEventContext(c, req),
	}

	outcome := h.pipeline.Track(ctx, intent)

	c.JSON(http.StatusAccepted, TrackEventResponse{
		EventID: outcome.EventID,
		Quality: QualityView{
			Total:           outcome.Quality.Total,
			Grade:           string(outcome.Quality.Grade),
			Recommendations: outcome.Quality.Recommendations,
		},
		Delivered: outcome.Delivered,
		Duplicate: outcome.Duplicate,
		Queued:    outcome.Queued,
	})
}

// buildEventContext captures the network and page signals for one event.
// Body fields win over headers so server-to-server callers can forward the
// original visitor's context.
func buildEventContext(c *gin.Context, req TrackEventRequest) events.Context {
	evCtx := events.Context{
		IP:                observability.GetRealClientIP(c),
		UserAgent:         observability.GetRealUserAgent(c),
		PageURL:           req.PageURL,
		ReferrerURL:       req.ReferrerURL,
		TTCLID:            req.TTCLID,
		TTP:               req.TTP,
		Country:           req.Country,
		Timezone:          req.Timezone,
		Language:          req.Language,
		DeviceFingerprint: req.DeviceFingerprint,
	}

	if evCtx.ReferrerURL == "" {
		evCtx.ReferrerURL = c.Request.Referer()
	}
	if evCtx.TTCLID == "" {
		evCtx.TTCLID = c.Query("ttclid")
	}
	if evCtx.Language == "" {
		evCtx.Language = c.GetHeader("Accept-Language")
	}
	if req.EventTime > 0 {
		evCtx.EventTime = time.Unix(req.EventTime, 0).UTC()
	}
	return evCtx
}
