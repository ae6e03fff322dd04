package ports

import (
	"context"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
)

// Invoice is the payment page the shopper is redirected to.
type Invoice struct {
	PageURL   string
	InvoiceID string
}

// CRMGateway hands completed orders to the CRM.
type CRMGateway interface {
	ProcessOrder(ctx context.Context, orderID string, order domain.Order) (Invoice, error)
}

// OrderMirror copies a completed order into the commerce platform. It is
// best-effort and reports failures only for logging.
type OrderMirror interface {
	Mirror(ctx context.Context, order domain.Order) error
}
