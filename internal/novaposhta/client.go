// Package novaposhta looks up Nova Poshta cities and pickup points for the
// address form.
package novaposhta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/upstream"
)

const (
	DefaultAPIURL           = "https://api.novaposhta.ua/v2.0/json/"
	DefaultTimeout          = 5 * time.Second
	DefaultWarehouseTimeout = 10 * time.Second

	cityLimit      = 50
	cityRefLimit   = 5
	warehouseLimit = 500
)

var (
	// ErrRateLimited matches upstream errors caused by request throttling.
	ErrRateLimited = errors.New("nova poshta rate limit")
	// ErrInvalidResponse is returned when the API answers with something other than JSON.
	ErrInvalidResponse = errors.New("invalid response format from Nova Poshta API")
)

// APIError is a failed call: a non-2xx status or success:false with errors.
type APIError struct {
	Method   string
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return e.Messages[0]
	}
	return fmt.Sprintf("nova poshta %s failed with status %d", e.Method, e.Status)
}

func (e *APIError) Is(target error) bool {
	if target != ErrRateLimited {
		return false
	}
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	for _, msg := range e.Messages {
		if strings.Contains(strings.ToLower(msg), "many requests") {
			return true
		}
	}
	return false
}

type Config struct {
	APIURL           string
	APIKey           string
	Timeout          time.Duration
	WarehouseTimeout time.Duration
	HTTPClient       *http.Client
}

// City is a settlement record as returned by getCities.
type City struct {
	Ref             string `json:"Ref"`
	Description     string `json:"Description"`
	AreaDescription string `json:"AreaDescription"`
}

// Area is a region (oblast) record as returned by getAreas.
type Area struct {
	Ref         string `json:"Ref"`
	Description string `json:"Description"`
}

// Warehouse is a pickup point record as returned by getWarehouses.
type Warehouse struct {
	Number       string `json:"Number"`
	Description  string `json:"Description"`
	ShortAddress string `json:"ShortAddress"`
}

// WarehouseQuery selects pickup points by city reference, or by city name
// when no reference is known.
type WarehouseQuery struct {
	CityRef  string
	CityName string
	Limit    int
}

type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	metrics *upstream.Metrics
}

func NewClient(cfg Config, logger *slog.Logger, metrics *upstream.Metrics) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.WarehouseTimeout <= 0 {
		cfg.WarehouseTimeout = DefaultWarehouseTimeout
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
		logger:  logger,
		metrics: metrics,
	}
}

type apiRequest struct {
	APIKey           string         `json:"apiKey"`
	ModelName        string         `json:"modelName"`
	CalledMethod     string         `json:"calledMethod"`
	MethodProperties map[string]any `json:"methodProperties"`
}

type apiResponse struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Errors   messages        `json:"errors"`
	Warnings messages        `json:"warnings"`
}

// messages accepts the shapes the API uses for errors and warnings: a list
// of strings, an object keyed by code, or a single string.
type messages []string

func (m *messages) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*m = list
		return nil
	}

	var byCode map[string]string
	if err := json.Unmarshal(data, &byCode); err == nil {
		out := make([]string, 0, len(byCode))
		for _, msg := range byCode {
			out = append(out, msg)
		}
		*m = out
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil && single != "" {
		*m = []string{single}
		return nil
	}

	*m = nil
	return nil
}

// FindCities searches settlements by name, optionally inside one area.
func (c *Client) FindCities(ctx context.Context, query, areaRef string, limit int) ([]City, error) {
	props := map[string]any{
		"FindByString": query,
		"Limit":        limit,
	}
	if areaRef != "" {
		props["AreaRef"] = areaRef
	}

	var cities []City
	if err := c.call(ctx, "getCities", props, c.cfg.Timeout, false, &cities); err != nil {
		return nil, err
	}
	return cities, nil
}

func (c *Client) Areas(ctx context.Context) ([]Area, error) {
	var areas []Area
	if err := c.call(ctx, "getAreas", map[string]any{}, c.cfg.Timeout, false, &areas); err != nil {
		return nil, err
	}
	return areas, nil
}

func (c *Client) Warehouses(ctx context.Context, q WarehouseQuery) ([]Warehouse, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = warehouseLimit
	}
	props := map[string]any{"Limit": limit}
	if q.CityRef != "" {
		props["CityRef"] = q.CityRef
	} else {
		props["CityName"] = q.CityName
	}

	var warehouses []Warehouse
	if err := c.call(ctx, "getWarehouses", props, c.cfg.WarehouseTimeout, true, &warehouses); err != nil {
		return nil, err
	}
	return warehouses, nil
}

func (c *Client) call(ctx context.Context, method string, props map[string]any, timeout time.Duration, requireJSON bool, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		c.metrics.RecordCall(ctx, "nova_poshta", method, time.Since(start).Seconds(), err == nil)
	}()

	body, err := json.Marshal(apiRequest{
		APIKey:           c.cfg.APIKey,
		ModelName:        "Address",
		CalledMethod:     method,
		MethodProperties: props,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("nova poshta %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	if requireJSON && !isJSON(resp.Header.Get("Content-Type")) {
		c.logger.WarnContext(ctx, "nova poshta returned non-JSON response",
			"method", method,
			"status", resp.StatusCode,
			"content_type", resp.Header.Get("Content-Type"),
		)
		return ErrInvalidResponse
	}

	var decoded apiResponse
	if jsonErr := json.Unmarshal(raw, &decoded); jsonErr != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Method: method, Status: resp.StatusCode}
		}
		return fmt.Errorf("%w: %w", ErrInvalidResponse, jsonErr)
	}

	if resp.StatusCode >= http.StatusBadRequest || (!decoded.Success && len(decoded.Errors) > 0) {
		apiErr := &APIError{Method: method, Status: resp.StatusCode, Messages: decoded.Errors}
		c.logger.WarnContext(ctx, "nova poshta call failed",
			"method", method,
			"status", resp.StatusCode,
			"errors", []string(decoded.Errors),
		)
		return apiErr
	}

	if len(decoded.Warnings) > 0 {
		c.logger.DebugContext(ctx, "nova poshta warnings", "method", method, "warnings", []string(decoded.Warnings))
	}

	if !decoded.Success || len(decoded.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mediaType == "application/json"
}
