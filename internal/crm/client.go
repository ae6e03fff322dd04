// Package crm hands completed checkouts to the CRM and obtains the payment
// page for them.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/upstream"
)

const (
	DefaultBaseURL = "https://api.saguaro.com.ua"
	DefaultTimeout = 10 * time.Second

	ordersPath = "/webhooks/shopify/orders"
)

// ErrMissingPageURL is returned when the CRM answers without a payment page.
var ErrMissingPageURL = errors.New("no pageUrl in CRM response")

// UpstreamError is a non-2xx answer from the CRM.
type UpstreamError struct {
	Operation string
	Status    int
	Body      string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("crm %s: status %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("crm %s: status %d: %s", e.Operation, e.Status, e.Body)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// PostToInvoiceRoute posts orders to /webhooks/shopify/orders/{id}/invoice
	// instead of the collection route.
	PostToInvoiceRoute bool
	HTTPClient         *http.Client
}

// Invoice is the CRM's payment page for an order.
type Invoice struct {
	PageURL   string
	InvoiceID string
}

type invoiceResponse struct {
	PageURL   string            `json:"pageUrl"`
	InvoiceID domain.FlexibleID `json:"invoiceId"`
}

// Result separates an obtained invoice from the reason there is none.
type Result struct {
	Invoice Invoice
	Err     error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Invoice.PageURL != ""
}

type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	metrics *upstream.Metrics
}

func NewClient(cfg Config, logger *slog.Logger, metrics *upstream.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = telemetry.NewHTTPClient(0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		logger:  logger.With("service", "crm"),
		metrics: metrics,
	}
}

// ProcessOrder sends the order and returns its payment page, fetching the
// invoice link only when the send response did not already carry one.
func (c *Client) ProcessOrder(ctx context.Context, orderID string, order domain.Order) Result {
	if order.DeliveryAddress == nil {
		return Result{Err: domain.ErrMissingDeliveryAddress}
	}

	payload := BuildPayload(orderID, order)
	if payload.ID == "" && payload.ShopifyOrderID == "" {
		return Result{Err: domain.ErrMissingOrderID}
	}
	if payload.ID == "" {
		payload.ID = payload.ShopifyOrderID
	}

	sent, err := c.SendOrder(ctx, payload)
	if err != nil {
		return Result{Err: err}
	}
	if sent.PageURL != "" {
		return Result{Invoice: sent}
	}

	invoice, err := c.InvoiceLink(ctx, payload.ID)
	if err != nil {
		return Result{Err: err}
	}
	if invoice.InvoiceID == "" {
		invoice.InvoiceID = sent.InvoiceID
	}
	return Result{Invoice: invoice}
}

// SendOrder posts the payload. The returned invoice may have no page URL.
func (c *Client) SendOrder(ctx context.Context, payload Payload) (Invoice, error) {
	endpoint := c.cfg.BaseURL + ordersPath
	if c.cfg.PostToInvoiceRoute {
		endpoint = c.invoiceURL(payload.ID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Invoice{}, fmt.Errorf("encode crm payload: %w", err)
	}

	c.logger.InfoContext(ctx, "crm request",
		"url", endpoint,
		"order_id", payload.ID,
		"payload", json.RawMessage(body),
	)

	var resp invoiceResponse
	if err := c.do(ctx, "send_order", http.MethodPost, endpoint, body, &resp); err != nil {
		c.logger.ErrorContext(ctx, "crm send failed",
			"url", endpoint,
			"order_id", payload.ID,
			"payload", json.RawMessage(body),
			"error", err,
		)
		return Invoice{}, err
	}

	return Invoice{PageURL: resp.PageURL, InvoiceID: resp.InvoiceID.String()}, nil
}

// InvoiceLink fetches the payment page for an order already known to the CRM.
func (c *Client) InvoiceLink(ctx context.Context, orderID string) (Invoice, error) {
	endpoint := c.invoiceURL(orderID)

	var resp invoiceResponse
	if err := c.do(ctx, "invoice_link", http.MethodGet, endpoint, nil, &resp); err != nil {
		c.logger.ErrorContext(ctx, "crm invoice lookup failed", "url", endpoint, "order_id", orderID, "error", err)
		return Invoice{}, err
	}
	if resp.PageURL == "" {
		c.logger.ErrorContext(ctx, "crm invoice response has no page url", "url", endpoint, "order_id", orderID)
		return Invoice{}, ErrMissingPageURL
	}

	return Invoice{PageURL: resp.PageURL, InvoiceID: resp.InvoiceID.String()}, nil
}

func (c *Client) invoiceURL(orderID string) string {
	return c.cfg.BaseURL + ordersPath + "/" + url.PathEscape(orderID) + "/invoice"
}

func (c *Client) do(ctx context.Context, operation, method, endpoint string, body []byte, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		c.metrics.RecordCall(ctx, "crm", operation, time.Since(start).Seconds(), err == nil)
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build crm %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm %s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read crm %s response: %w", operation, err)
	}

	c.logger.InfoContext(ctx, "crm response",
		"operation", operation,
		"status", resp.StatusCode,
		"body", string(raw),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{Operation: operation, Status: resp.StatusCode, Body: string(raw)}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode crm %s response: %w", operation, err)
	}
	return nil
}
