package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"card-server/internal/metrics"
	"card-server/internal/observability"
	"card-server/internal/tracking/delivery"
	"card-server/internal/tracking/events"
	"card-server/internal/tracking/processor"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDeliverer struct {
	delivered []events.ScoredEvent
	result    delivery.Result
}

func (s *stubDeliverer) Deliver(ctx context.Context, ev events.ScoredEvent) delivery.Result {
	s.delivered = append(s.delivered, ev)
	return s.result
}

func (s *stubDeliverer) StartQueue(ctx context.Context) {}
func (s *stubDeliverer) StopQueue()                     {}
func (s *stubDeliverer) QueueDepth() int                { return 0 }

func setupRouter(deliverer *stubDeliverer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := observability.NewLogger()
	pipeline := processor.New(processor.Config{DefaultCountry: "BR"}, deliverer, metrics.NewForTesting(), logger)
	h := New(pipeline, logger)

	router := gin.New()
	router.POST("/api/track/event", h.HandleTrackEvent)
	return router
}

func postEvent(t *testing.T, router *gin.Engine, body map[string]any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/track/event", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleTrackEventAccepted(t *testing.T) {
	deliverer := &stubDeliverer{result: delivery.Result{Delivered: true}}
	router := setupRouter(deliverer)

	rec := postEvent(t, router, map[string]any{
		"event":      "Purchase",
		"email":      "Buyer@Example.com",
		"phone":      "(11) 98765-4321",
		"value":      17.99,
		"currency":   "BRL",
		"order_id":   "7d5c9a3e",
		"content_id": "card-premium",
		"ttclid":     "E.C.P.v1abc",
		"page_url":   "https://cards.example.com/checkout",
	}, http.Header{
		"User-Agent":      []string{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"},
		"X-Forwarded-For": []string{"203.0.113.9, 10.0.0.1"},
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp TrackEventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.EventID)
	assert.True(t, resp.Delivered)
	assert.GreaterOrEqual(t, resp.Quality.Total, 60)

	require.Len(t, deliverer.delivered, 1)
	sent := deliverer.delivered[0]
	assert.Equal(t, events.Purchase, sent.Name)
	assert.Equal(t, "203.0.113.9", sent.Context.IP)
	assert.Equal(t, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", sent.Context.UserAgent)
	assert.Equal(t, "BR", sent.Context.Country)
	assert.NotContains(t, sent.Identity.EmailHash, "@")
}

func TestHandleTrackEventRejectsMissingName(t *testing.T) {
	deliverer := &stubDeliverer{}
	router := setupRouter(deliverer)

	rec := postEvent(t, router, map[string]any{"value": 17.99}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, deliverer.delivered)
}

func TestHandleTrackEventNever5xxOnDeliveryFailure(t *testing.T) {
	deliverer := &stubDeliverer{result: delivery.Result{Queued: true}}
	router := setupRouter(deliverer)

	rec := postEvent(t, router, map[string]any{"event": "PageView"}, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp TrackEventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Queued)
	assert.False(t, resp.Delivered)
}

func TestHandleTrackEventReportsDuplicate(t *testing.T) {
	deliverer := &stubDeliverer{result: delivery.Result{Duplicate: true}}
	router := setupRouter(deliverer)

	rec := postEvent(t, router, map[string]any{
		"event":    "Purchase",
		"event_id": "order-1-purchase",
	}, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp TrackEventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "order-1-purchase", resp.EventID)
	assert.True(t, resp.Duplicate)
}
