package ports

import (
	"context"
	"errors"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
)

// PendingOrderStore keeps checkouts that are waiting for a delivery address.
type PendingOrderStore interface {
	Store(ctx context.Context, orderID string, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
}

var (
	// ErrPendingOrderNotFound is returned for unknown and expired orders alike.
	ErrPendingOrderNotFound = errors.New("order not found or expired")
)
