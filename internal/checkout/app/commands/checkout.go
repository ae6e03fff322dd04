package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
)

// Kind tells which entry point submitted the order.
type Kind string

const (
	// KindCheckout stages address-less orders and mirrors completed ones.
	KindCheckout Kind = "checkout"
	// KindCRMOrder requires a delivery address and never mirrors.
	KindCRMOrder Kind = "crm_order"
)

// ErrNoFallbackURL means the CRM failed and nothing was configured to
// send the shopper to instead.
var ErrNoFallbackURL = errors.New("crm unavailable and no fallback url configured")

type CheckoutCommand struct {
	Kind  Kind
	Order domain.Order
}

// CheckoutResult is either a staged order waiting for its address or a
// payment page. Fallback marks a page that did not come from the CRM.
type CheckoutResult struct {
	OrderID        string
	Staged         bool
	PageURL        string
	InvoiceID      string
	Fallback       bool
	FallbackReason string
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// Spawner starts work that must not hold up the response.
type Spawner interface {
	Go(ctx context.Context, name string, fn func(context.Context) error)
}

// FallbackPolicy picks where the shopper goes when the CRM cannot produce a
// payment page: the configured URL, the shop's storefront, then the
// allowed origin.
type FallbackPolicy struct {
	URL           string
	AllowedOrigin string
}

func (p FallbackPolicy) Resolve(order domain.Order) string {
	if p.URL != "" {
		return p.URL
	}
	if shop := strings.TrimSpace(order.Shop.Domain); shop != "" {
		if strings.HasPrefix(shop, "http://") || strings.HasPrefix(shop, "https://") {
			return shop
		}
		return "https://" + shop
	}
	return p.AllowedOrigin
}

type CheckoutCommandHandler struct {
	pending  ports.PendingOrderStore
	crm      ports.CRMGateway
	mirror   ports.OrderMirror
	events   ports.EventBus
	spawner  Spawner
	fallback FallbackPolicy
	logger   *slog.Logger
}

type HandlerDeps struct {
	Pending  ports.PendingOrderStore
	CRM      ports.CRMGateway
	Mirror   ports.OrderMirror
	Events   ports.EventBus
	Spawner  Spawner
	Fallback FallbackPolicy
}

func NewCheckoutCommandHandler(deps HandlerDeps, logger *slog.Logger) *CheckoutCommandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutCommandHandler{
		pending:  deps.Pending,
		crm:      deps.CRM,
		mirror:   deps.Mirror,
		events:   deps.Events,
		spawner:  deps.Spawner,
		fallback: deps.Fallback,
		logger:   logger,
	}
}

func (h *CheckoutCommandHandler) Handle(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	order := cmd.Order

	if !order.HasDeliveryAddress() {
		if cmd.Kind == KindCRMOrder {
			return CheckoutResult{}, domain.ErrMissingDeliveryAddress
		}
		return h.stage(ctx, order)
	}

	if err := order.DeliveryAddress.Validate(); err != nil {
		return CheckoutResult{}, err
	}
	normalized := order.DeliveryAddress.Normalized()
	order.DeliveryAddress = &normalized

	orderID := h.orderID(cmd.Kind, order)

	h.logger.InfoContext(ctx, "delivery address received",
		"order_id", orderID,
		"region", normalized.Region,
		"city", normalized.City,
		"warehouse_number", normalized.WarehouseNumber,
	)

	invoice, err := h.crm.ProcessOrder(ctx, orderID, order)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			return CheckoutResult{}, err
		}
		return h.degrade(ctx, orderID, order, err)
	}

	if err := h.events.PublishCheckoutCompleted(ctx, orderID, invoice.PageURL); err != nil {
		h.logger.WarnContext(ctx, "checkout completed event not published", "order_id", orderID, "error", err)
	}

	if cmd.Kind == KindCheckout && h.mirror != nil && h.spawner != nil {
		mirrored := order
		h.spawner.Go(ctx, "shopify_mirror", func(ctx context.Context) error {
			return h.mirror.Mirror(ctx, mirrored)
		})
	}

	return CheckoutResult{
		OrderID:   orderID,
		PageURL:   invoice.PageURL,
		InvoiceID: invoice.InvoiceID,
	}, nil
}

func (h *CheckoutCommandHandler) stage(ctx context.Context, order domain.Order) (CheckoutResult, error) {
	orderID := domain.ExtractOrderID(order)
	if _, ok := domain.ResolveOrderID(order); !ok {
		order = order.WithID(orderID)
	}

	if err := h.pending.Store(ctx, orderID, order); err != nil {
		return CheckoutResult{}, fmt.Errorf("stage order %s: %w", orderID, err)
	}

	if err := h.events.PublishCheckoutStaged(ctx, orderID); err != nil {
		h.logger.WarnContext(ctx, "checkout staged event not published", "order_id", orderID, "error", err)
	}

	return CheckoutResult{OrderID: orderID, Staged: true}, nil
}

func (h *CheckoutCommandHandler) degrade(ctx context.Context, orderID string, order domain.Order, cause error) (CheckoutResult, error) {
	url := h.fallback.Resolve(order)

	h.logger.ErrorContext(ctx, "crm hand-off failed",
		"order_id", orderID,
		"error", cause,
		"fallback_url", url,
	)
	telemetry.AddSpanEvent(ctx, "checkout.fallback_used",
		attribute.String("fallback.url", url),
		attribute.String("fallback.reason", cause.Error()),
	)

	if err := h.events.PublishCheckoutDegraded(ctx, orderID, cause.Error()); err != nil {
		h.logger.WarnContext(ctx, "checkout degraded event not published", "order_id", orderID, "error", err)
	}

	if url == "" {
		return CheckoutResult{}, fmt.Errorf("%w: %w", ErrNoFallbackURL, cause)
	}

	return CheckoutResult{
		OrderID:        orderID,
		PageURL:        url,
		Fallback:       true,
		FallbackReason: cause.Error(),
	}, nil
}

// orderID derives the id once per request. Direct CRM submissions must carry
// an id of their own; an empty result is rejected by the CRM gateway.
func (h *CheckoutCommandHandler) orderID(kind Kind, order domain.Order) string {
	if kind == KindCheckout {
		return domain.ExtractOrderID(order)
	}
	if id, ok := domain.ResolveOrderID(order); ok {
		return id
	}
	if order.Shopify != nil {
		return strings.TrimSpace(order.Shopify.OrderID.String())
	}
	return ""
}
