package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"card-server/internal/metrics"
	"card-server/internal/observability"
	"card-server/internal/tracking/dedupe"
	"card-server/internal/tracking/events"
	"card-server/internal/tracking/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(eventID string) events.ScoredEvent {
	return events.ScoredEvent{
		EventID:   eventID,
		Name:      events.Purchase,
		EventTime: time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC),
		Properties: events.Properties{
			ContentID: "card-premium",
			Value:     17.99,
			Currency:  "BRL",
			OrderID:   "7d5c9a3e",
		},
		Identity: events.NormalizedIdentity{
			EmailHash:      "emailhash",
			PhoneHash:      "phonehash",
			ExternalIDHash: "externalhash",
		},
		Context: events.Context{
			IP:        "203.0.113.9",
			UserAgent: "Mozilla/5.0",
			TTCLID:    "E.C.P.v1abc",
			Country:   "BR",
			PageURL:   "https://cards.example.com/checkout",
		},
	}
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	return NewClient(Config{
		PixelID:      "pixel-123",
		AccessToken:  "token-abc",
		EndpointURL:  endpoint,
		RetryBackoff: time.Millisecond,
	}, dedupe.New(100, time.Hour), metrics.NewForTesting(), observability.NewLogger())
}

func TestDeliverSuccess(t *testing.T) {
	var calls int32
	var gotToken string
	var gotPayload WirePayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		gotToken = r.Header.Get("Access-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result := client.Deliver(context.Background(), testEvent("evt-1"))

	assert.True(t, result.Delivered)
	assert.False(t, result.Duplicate)
	assert.False(t, result.Queued)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.Equal(t, "token-abc", gotToken)
	assert.Equal(t, "pixel-123", gotPayload.PixelID)
	require.Len(t, gotPayload.Data, 1)
	wire := gotPayload.Data[0]
	assert.Equal(t, "Purchase", wire.Event)
	assert.Equal(t, "evt-1", wire.EventID)
	assert.Equal(t, int64(1741966200), wire.EventTime)
	assert.Equal(t, "emailhash", wire.User.Email)
	assert.Equal(t, "externalhash", wire.User.ExternalID)
	assert.Equal(t, 17.99, wire.Properties.Value)
	assert.Equal(t, "BRL", wire.Properties.Currency)
	assert.Equal(t, "https://cards.example.com/checkout", wire.Properties.PageURL)
}

func TestDeliverDuplicateMakesOneNetworkCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	first := client.Deliver(context.Background(), testEvent("evt-dup"))
	second := client.Deliver(context.Background(), testEvent("evt-dup"))

	assert.True(t, first.Delivered)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Delivered)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "exactly one network call")
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result := client.Deliver(context.Background(), testEvent("evt-retry"))

	assert.True(t, result.Delivered)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, client.QueueDepth())
}

func TestDeliverExhaustionQueuesInsteadOfFailing(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result := client.Deliver(context.Background(), testEvent("evt-down"))

	assert.False(t, result.Delivered)
	assert.True(t, result.Queued)
	assert.Equal(t, int32(maxSyncAttempts), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, client.QueueDepth())
}

func TestDeliverNeverSendsPlaintextIdentity(t *testing.T) {
	var rawBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ev := testEvent("evt-privacy")
	ev.Identity = identity.Normalize(events.RawIdentity{
		Email: "buyer@example.com",
		Phone: "(11) 98765-4321",
	}, ev.Context, time.Now())
	client.Deliver(context.Background(), ev)

	assert.NotContains(t, string(rawBody), "buyer@example.com")
	assert.NotContains(t, string(rawBody), "98765")
	assert.Contains(t, string(rawBody), ev.Identity.EmailHash)
}
