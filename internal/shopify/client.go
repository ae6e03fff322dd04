// Package shopify mirrors completed checkouts into the Shopify Admin API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/upstream"
)

const (
	DefaultAPIVersion = "2024-01"
	DefaultTimeout    = 15 * time.Second

	accessTokenHeader = "X-Shopify-Access-Token"
)

var (
	ErrMissingAccessToken = errors.New("SHOPIFY_ACCESS_KEY is not configured")
	ErrMissingShopDomain  = errors.New("shop domain is missing")
	ErrMissingOrderID     = errors.New("shop domain and order id are required")
	ErrNoLineItems        = errors.New("no items in cart")
)

// APIError is a non-2xx answer from the Admin API. Errors holds the
// response's "errors" member when present.
type APIError struct {
	Action string
	Status int
	Errors json.RawMessage
	Body   string
}

func (e *APIError) Error() string {
	detail := e.Body
	if len(e.Errors) > 0 {
		detail = string(e.Errors)
	}
	if detail == "" {
		return fmt.Sprintf("failed to %s: status %d", e.Action, e.Status)
	}
	return fmt.Sprintf("failed to %s: status %d - %s", e.Action, e.Status, detail)
}

type Config struct {
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
	// Endpoint replaces https://<shop>.myshopify.com when set.
	Endpoint   string
	HTTPClient *http.Client
}

// Order is the part of a Shopify order record the relay reads back.
type Order struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	OrderNumber     int64  `json:"order_number"`
	FinancialStatus string `json:"financial_status"`
	ClosedAt        string `json:"closed_at"`
}

type orderResponse struct {
	Order  *Order          `json:"order"`
	Errors json.RawMessage `json:"errors"`
}

type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	metrics *upstream.Metrics
}

func NewClient(cfg Config, logger *slog.Logger, metrics *upstream.Metrics) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
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
		logger:  logger.With("service", "shopify"),
		metrics: metrics,
	}
}

// CreateOrder submits the checkout as a pending Shopify order. Cart items
// without a variant or with a non-positive quantity are skipped.
func (c *Client) CreateOrder(ctx context.Context, order domain.Order) (*Order, error) {
	if c.cfg.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	shop := order.Shop.Domain
	if shop == "" {
		return nil, ErrMissingShopDomain
	}
	if len(order.Cart.Items) == 0 {
		return nil, ErrNoLineItems
	}

	lines, skipped := buildLineItems(order.Cart.Items)
	for _, s := range skipped {
		c.logger.WarnContext(ctx, "skipping cart item", "shop", shop, "index", s.Index, "reason", s.Reason)
	}
	if len(lines) == 0 {
		return nil, ErrNoLineItems
	}

	payload := orderEnvelope{Order: buildOrder(order, lines)}
	c.logger.InfoContext(ctx, "creating shopify order", "shop", shop, "line_items", len(lines))

	created, err := c.send(ctx, "create_order", "create order", http.MethodPost, c.apiURL(shop)+"/orders.json", payload)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "shopify order created",
		"shop", shop,
		"shopify_order_id", created.ID,
		"order_number", created.OrderNumber,
		"name", created.Name,
	)
	return created, nil
}

// CloseOrder closes a mirrored order. With markAsPaid it first tries to set
// the financial status to paid; that failure is logged and closing proceeds.
func (c *Client) CloseOrder(ctx context.Context, shopDomain string, orderID int64, markAsPaid bool) (*Order, error) {
	if c.cfg.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	if shopDomain == "" || orderID == 0 {
		return nil, ErrMissingOrderID
	}

	base := c.apiURL(shopDomain) + "/orders/" + strconv.FormatInt(orderID, 10)

	if markAsPaid {
		update := map[string]any{"order": map[string]any{"id": orderID, "financial_status": "paid"}}
		if _, err := c.send(ctx, "mark_paid", "mark order as paid", http.MethodPut, base+".json", update); err != nil {
			c.logger.WarnContext(ctx, "could not mark shopify order as paid", "shop", shopDomain, "shopify_order_id", orderID, "error", err)
		}
	}

	closed, err := c.send(ctx, "close_order", "close order", http.MethodPost, base+"/close.json", struct{}{})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "shopify order closed", "shop", shopDomain, "shopify_order_id", closed.ID, "closed_at", closed.ClosedAt)
	return closed, nil
}

func (c *Client) apiURL(shopDomain string) string {
	if c.cfg.Endpoint != "" {
		return c.cfg.Endpoint + "/admin/api/" + c.cfg.APIVersion
	}
	shop := strings.TrimSuffix(strings.TrimSpace(shopDomain), ".myshopify.com")
	return "https://" + shop + ".myshopify.com/admin/api/" + c.cfg.APIVersion
}

func (c *Client) send(ctx context.Context, operation, action, method, endpoint string, payload any) (order *Order, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		c.metrics.RecordCall(ctx, "shopify", operation, time.Since(start).Seconds(), err == nil)
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode shopify %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build shopify %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accessTokenHeader, c.cfg.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read shopify %s response: %w", operation, err)
	}

	var decoded orderResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Action: action, Status: resp.StatusCode, Body: string(raw)}
		if decodeErr == nil {
			apiErr.Errors = decoded.Errors
		}
		c.logger.ErrorContext(ctx, "shopify request failed",
			"operation", operation,
			"status", resp.StatusCode,
			"body", string(raw),
			"payload", json.RawMessage(body),
		)
		return nil, apiErr
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("decode shopify %s response: %w", operation, decodeErr)
	}
	if decoded.Order == nil {
		return &Order{}, nil
	}
	return decoded.Order, nil
}
