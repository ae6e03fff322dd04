package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/app/commands"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/app/queries"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/novaposhta"
)

// CheckoutService is the checkout use-case surface the handlers call.
type CheckoutService interface {
	Checkout(ctx context.Context, order domain.Order) (commands.CheckoutResult, error)
	SubmitToCRM(ctx context.Context, order domain.Order) (commands.CheckoutResult, error)
	PendingOrder(ctx context.Context, orderID string) (domain.Order, error)
}

// GeoService serves the address form's city and pickup point lookups.
type GeoService interface {
	SearchCities(ctx context.Context, query, region string) (novaposhta.CitiesResult, error)
	SearchWarehouses(ctx context.Context, location string) (novaposhta.WarehousesResult, error)
}

// Handler exposes the checkout relay's HTTP endpoints.
type Handler struct {
	checkout      CheckoutService
	geo           GeoService
	publicBaseURL string
	port          int
	validate      *validator.Validate
	logger        *slog.Logger
}

type HandlerConfig struct {
	// PublicBaseURL overrides the scheme and host used in address form links.
	PublicBaseURL string
	Port          int
}

// NewHandler constructs a Handler.
func NewHandler(checkout CheckoutService, geo GeoService, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		checkout:      checkout,
		geo:           geo,
		publicBaseURL: cfg.PublicBaseURL,
		port:          cfg.Port,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger,
	}
}

// Register binds the API routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout", h.createCheckout)
		r.Get("/order/{orderId}", h.getPendingOrder)
		r.Post("/crm/order", h.submitCRMOrder)
		r.Get("/nova-poshta/cities", h.searchCities)
		r.Get("/nova-poshta/warehouses", h.searchWarehouses)
	})
}

type citiesQuery struct {
	Query  string `validate:"required,min=2,max=100"`
	Region string
}

type warehousesQuery struct {
	Location string `validate:"required,max=200"`
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	order, ok := h.decodeOrder(w, r)
	if !ok {
		return
	}

	result, err := h.checkout.Checkout(r.Context(), order)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	if result.Staged {
		addressURL := BuildAddressURL(h.publicBaseURL, r, h.port, result.OrderID)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"redirectUrl": addressURL,
			"addressUrl":  addressURL,
			"orderId":     result.OrderID,
		})
		return
	}

	writeJSON(w, http.StatusOK, pageResponse(result))
}

func (h *Handler) submitCRMOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.decodeOrder(w, r)
	if !ok {
		return
	}

	result, err := h.checkout.SubmitToCRM(r.Context(), order)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pageResponse(result))
}

func (h *Handler) getPendingOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.PendingOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		switch {
		case errors.Is(err, ports.ErrPendingOrderNotFound):
			writeFailure(w, http.StatusNotFound, "Order not found or expired", nil)
		case errors.Is(err, queries.ErrOrderIDRequired):
			writeFailure(w, http.StatusBadRequest, err.Error(), nil)
		default:
			writeFailure(w, http.StatusInternalServerError, "Failed to load order", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"orderData": order.Payload(),
	})
}

func (h *Handler) searchCities(w http.ResponseWriter, r *http.Request) {
	q := citiesQuery{
		Query:  strings.TrimSpace(r.URL.Query().Get("query")),
		Region: strings.TrimSpace(r.URL.Query().Get("region")),
	}
	if err := h.validate.Struct(q); err != nil {
		writeFailure(w, http.StatusBadRequest, novaposhta.ErrQueryTooShort.Error(), nil)
		return
	}

	result, err := h.geo.SearchCities(r.Context(), q.Query, q.Region)
	if err != nil {
		if errors.Is(err, novaposhta.ErrQueryTooShort) {
			writeFailure(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		writeFailure(w, http.StatusInternalServerError, "Failed to search cities", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) searchWarehouses(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if strings.TrimSpace(location) == "" {
		location = r.URL.Query().Get("city")
	}
	q := warehousesQuery{Location: strings.TrimSpace(location)}
	if err := h.validate.Struct(q); err != nil {
		writeFailure(w, http.StatusBadRequest, novaposhta.ErrLocationRequired.Error(), nil)
		return
	}

	result, err := h.geo.SearchWarehouses(r.Context(), q.Location)
	if err != nil {
		if errors.Is(err, novaposhta.ErrLocationRequired) {
			writeFailure(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		writeFailure(w, http.StatusInternalServerError, "Failed to search warehouses", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) decodeOrder(w http.ResponseWriter, r *http.Request) (domain.Order, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return domain.Order{}, false
		}
		writeFailure(w, http.StatusBadRequest, "failed to read request body", err)
		return domain.Order{}, false
	}

	order, err := domain.ParseOrder(body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid checkout payload", "error", err)
		writeFailure(w, http.StatusBadRequest, "invalid JSON payload", err)
		return domain.Order{}, false
	}
	return order, true
}

func pageResponse(result commands.CheckoutResult) map[string]any {
	response := map[string]any{
		"success": true,
		"pageUrl": result.PageURL,
		"orderId": result.OrderID,
	}
	if result.InvoiceID != "" {
		response["invoiceId"] = result.InvoiceID
	}
	if result.Fallback {
		response["fallback"] = true
	}
	return response
}

func writeCheckoutError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidOrder) {
		writeFailure(w, http.StatusBadRequest, validationMessage(err), err)
		return
	}
	writeFailure(w, http.StatusInternalServerError, "Failed to process order", err)
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingDeliveryAddress):
		return "Delivery address is required"
	case errors.Is(err, domain.ErrMissingOrderID):
		return "Order ID or Shopify order ID is required"
	case errors.Is(err, domain.ErrInvalidPhone):
		return "Invalid phone number"
	default:
		return "Invalid order"
	}
}

// BuildAddressURL points the shopper at the address form for orderID. base
// wins when set; otherwise the scheme and host come from the request.
func BuildAddressURL(base string, r *http.Request, port int, orderID string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = requestScheme(r) + "://" + requestHost(r, port)
	}
	return base + "/address?orderId=" + url.QueryEscape(orderID)
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func requestHost(r *http.Request, port int) string {
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		return strings.TrimSpace(strings.Split(host, ",")[0])
	}
	if r.Host != "" {
		return r.Host
	}
	return "localhost:" + strconv.Itoa(port)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeFailure writes {success:false, message} and, when cause is set, the
// underlying error text.
func writeFailure(w http.ResponseWriter, status int, message string, cause error) {
	payload := map[string]any{"success": false, "message": message}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	writeJSON(w, status, payload)
}
