package btcpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"satoshicheckout/internal/logging"
)

// ErrNotConfigured is returned by every call when the client lacks credentials.
var ErrNotConfigured = errors.New("btcpay client not configured")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("btcpay API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("btcpay API returned status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Config holds configuration for the BTCPay Greenfield client.
type Config struct {
	BaseURL    string
	APIKey     string
	StoreID    string
	AuthScheme string // "Token" (default) or "Bearer"
	HTTPClient *http.Client
}

// Client is a thin authenticated wrapper around the store-scoped Greenfield API.
// It never retries; callers own retry policy.
type Client struct {
	baseURL    string
	apiKey     string
	storeID    string
	authScheme string
	httpClient *http.Client
}

// NewClient creates a client. An incomplete config is accepted so the process can
// start; requests then fail with ErrNotConfigured.
func NewClient(cfg Config) *Client {
	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = "Token"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		storeID:    cfg.StoreID,
		authScheme: scheme,
		httpClient: httpClient,
	}
}

// Configured reports whether the client has everything needed to make calls.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != "" && c.storeID != ""
}

// Request performs an authenticated JSON call against /api/v1/stores/{storeId}/{endpoint}.
// A nil body sends no payload.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	return c.do(ctx, method, endpoint, body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, headers map[string]string) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	target := fmt.Sprintf("%s/api/v1/stores/%s/%s", c.baseURL, url.PathEscape(c.storeID), strings.TrimLeft(endpoint, "/"))
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.authScheme+" "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}
	return json.RawMessage(respBody), nil
}

// newAPIError understands both {code,message} and [{path,message}] error bodies.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}

	var single struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &single); err == nil && single.Message != "" {
		apiErr.Code = single.Code
		apiErr.Message = single.Message
		return apiErr
	}

	var validation []struct {
		Path    string `json:"path"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &validation); err == nil && len(validation) > 0 {
		parts := make([]string, 0, len(validation))
		for _, v := range validation {
			if v.Path != "" {
				parts = append(parts, v.Path+": "+v.Message)
			} else {
				parts = append(parts, v.Message)
			}
		}
		apiErr.Code = "validation-error"
		apiErr.Message = strings.Join(parts, "; ")
	}
	return apiErr
}

// CreateInvoice issues POST /invoices. It is never retried, so an idempotency key
// is attached to let the provider drop accidental duplicates.
func (c *Client) CreateInvoice(ctx context.Context, in CreateInvoiceRequest) (*Invoice, error) {
	logging.BTCPay.Printf("creating invoice for %s %s (methods=%v)", in.Amount, in.Currency, in.Checkout.PaymentMethods)

	raw, err := c.do(ctx, http.MethodPost, "invoices", in, map[string]string{
		"Idempotency-Key": uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	var inv Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}
	logging.BTCPay.Printf("created invoice %s (status=%s)", inv.ID, inv.Status)
	return &inv, nil
}

// GetInvoice issues GET /invoices/{id}.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	raw, err := c.Request(ctx, http.MethodGet, "invoices/"+url.PathEscape(invoiceID), nil)
	if err != nil {
		return nil, err
	}
	var inv Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}
	return &inv, nil
}

// FindInvoiceByOrderID issues GET /invoices?orderId={id} and returns the most
// recent match. No match yields a 404 APIError so IsNotFound holds.
func (c *Client) FindInvoiceByOrderID(ctx context.Context, orderID string) (*Invoice, error) {
	raw, err := c.Request(ctx, http.MethodGet, "invoices?orderId="+url.QueryEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	var invoices []Invoice
	if err := json.Unmarshal(raw, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}
	if len(invoices) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "no invoice for order " + orderID}
	}
	return &invoices[0], nil
}

// GetPaymentMethods issues GET /invoices/{id}/payment-methods.
func (c *Client) GetPaymentMethods(ctx context.Context, invoiceID string) ([]PaymentMethod, error) {
	raw, err := c.Request(ctx, http.MethodGet, "invoices/"+url.PathEscape(invoiceID)+"/payment-methods", nil)
	if err != nil {
		return nil, err
	}
	var methods []PaymentMethod
	if err := json.Unmarshal(raw, &methods); err != nil {
		return nil, fmt.Errorf("failed to decode payment methods: %w", err)
	}
	return methods, nil
}
