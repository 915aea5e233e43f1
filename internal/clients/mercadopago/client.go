package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"card-server/internal/observability"
)

var ErrPaymentLookupFailed = errors.New("payment lookup failed")

const (
	lookupAttempts  = 3
	lookupBaseDelay = 500 * time.Millisecond
)

// PaymentDetails is the subset of the payment resource the confirmation
// flow needs. ExternalReference carries the composite
// "orderID|buyerEmail|planCode" set when the preference was created.
type PaymentDetails struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	Payer             Payer   `json:"payer"`
}

// Payer identifies the buyer on the payment resource.
type Payer struct {
	Email string `json:"email"`
}

// Client looks up payment details from the Mercado Pago API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *observability.Logger
}

// New creates a Mercado Pago client.
func New(baseURL, accessToken string, logger *observability.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// GetPaymentDetails resolves a payment id to its details. Transient
// failures are retried a small fixed number of times with short delays;
// after that the error is returned for the caller to log and acknowledge.
func (c *Client) GetPaymentDetails(ctx context.Context, paymentID string) (PaymentDetails, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "payment_id", Value: paymentID},
	)

	var lastErr error
	for attempt := 1; attempt <= lookupAttempts; attempt++ {
		details, err := c.fetchPayment(ctx, paymentID)
		if err == nil {
			return details, nil
		}
		lastErr = err
		c.logger.Warn(observability.WithFields(ctx,
			observability.Field{Key: "attempt", Value: attempt},
			observability.Field{Key: "error", Value: err.Error()},
		), "payment lookup attempt failed")

		if attempt < lookupAttempts {
			select {
			case <-time.After(lookupBaseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return PaymentDetails{}, ctx.Err()
			}
		}
	}

	return PaymentDetails{}, fmt.Errorf("%w after %d attempts: %s", ErrPaymentLookupFailed, lookupAttempts, lastErr)
}

func (c *Client) fetchPayment(ctx context.Context, paymentID string) (PaymentDetails, error) {
	url := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PaymentDetails{}, fmt.Errorf("received non-2xx status code: %d", resp.StatusCode)
	}

	var details PaymentDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return PaymentDetails{}, fmt.Errorf("failed to unmarshal payment details: %w", err)
	}

	return details, nil
}
