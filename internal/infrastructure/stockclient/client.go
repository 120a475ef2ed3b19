// Package stockclient reaches a remote inventory service over HTTP. It is
// the remote StockGateway used when inventory runs as its own service.
package stockclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	"github.com/shopfront/backend/internal/domain/inventory"
	"github.com/shopfront/backend/internal/domain/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// maxResponseSize caps how much of a response body is read (1MB)
const maxResponseSize = 1 << 20

// ErrUnavailable is returned when the inventory service cannot be reached
// or keeps answering with server errors after all attempts
var ErrUnavailable = errors.New("stockclient: inventory service unavailable")

// Config holds remote inventory settings
type Config struct {
	BaseURL        string
	ServiceToken   string
	RequestTimeout time.Duration
	MaxAttempts    int
	// InitialBackoff is the first retry delay; later delays grow exponentially
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Validate checks required settings and fills defaults
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("stockclient: base URL is required")
	}
	if c.ServiceToken == "" {
		return errors.New("stockclient: service token is required")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	return nil
}

// Client calls the inventory reservation endpoints. Every request carries
// the order's ledger key as Idempotency-Key, so retrying a request that
// already succeeded on the server has no further effect.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Client
func New(config Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}, nil
}

// Reserve reserves stock for an order
func (c *Client) Reserve(ctx context.Context, orderID uuid.UUID, lines []inventoryapp.ReservationLine) error {
	body, err := json.Marshal(inventoryapp.ReservationRequest{OrderID: orderID, Lines: lines})
	if err != nil {
		return fmt.Errorf("stockclient: encode reservation: %w", err)
	}
	return c.post(ctx, "/api/v1/inventory/reservations", inventory.ReservationKey(orderID), body)
}

// Release returns an order's reserved stock
func (c *Client) Release(ctx context.Context, orderID uuid.UUID) error {
	path := "/api/v1/inventory/reservations/" + orderID.String() + "/release"
	return c.post(ctx, path, inventory.ReleaseKey(orderID), nil)
}

// errorEnvelope is the error part of the API response envelope
type errorEnvelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post sends a request, retrying transport errors and 5xx answers with
// exponential backoff. 4xx answers are final and are turned back into
// domain errors so callers see INSUFFICIENT_STOCK and friends unchanged.
func (c *Client) post(ctx context.Context, path, idempotencyKey string, body []byte) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.InitialBackoff
	policy.MaxInterval = c.config.MaxBackoff
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := c.once(ctx, path, idempotencyKey, body)
		if err == nil {
			return nil
		}
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("inventory request failed",
			zap.String("path", path),
			zap.String("idempotency_key", idempotencyKey),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}

	err := backoff.Retry(operation, retry)
	if err == nil {
		return nil
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, attempt, err)
}

func (c *Client) once(ctx context.Context, path, idempotencyKey string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("stockclient: failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ServiceToken)
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("stockclient: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("stockclient: HTTP %d", resp.StatusCode)
	}
	return decodeError(resp.StatusCode, payload)
}

// decodeError turns a 4xx answer into a domain error
func decodeError(status int, payload []byte) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error != nil && envelope.Error.Code != "" {
		return shared.NewDomainError(envelope.Error.Code, envelope.Error.Message)
	}
	switch status {
	case http.StatusUnauthorized:
		return shared.ErrUnauthorized
	case http.StatusForbidden:
		return shared.ErrForbidden
	case http.StatusNotFound:
		return shared.ErrNotFound
	case http.StatusConflict:
		return shared.ErrConcurrencyConflict
	}
	return shared.NewDomainError("INVENTORY_REQUEST_REJECTED", fmt.Sprintf("Inventory service rejected the request with HTTP %d", status))
}
