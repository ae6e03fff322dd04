package queries

import (
	"context"
	"errors"
	"strings"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
)

// ErrOrderIDRequired is returned for a blank order id.
var ErrOrderIDRequired = errors.New("order id is required")

// GetPendingOrderQuery asks for a staged checkout by its order id.
type GetPendingOrderQuery struct {
	OrderID string
}

// GetPendingOrderQueryHandler reads staged checkouts from the pending store.
type GetPendingOrderQueryHandler struct {
	store ports.PendingOrderStore
}

// NewGetPendingOrderQueryHandler constructs a GetPendingOrderQueryHandler.
func NewGetPendingOrderQueryHandler(store ports.PendingOrderStore) *GetPendingOrderQueryHandler {
	return &GetPendingOrderQueryHandler{store: store}
}

// Handle returns the staged order, or ports.ErrPendingOrderNotFound once it
// has expired.
func (h *GetPendingOrderQueryHandler) Handle(ctx context.Context, query GetPendingOrderQuery) (domain.Order, error) {
	if err := query.Validate(); err != nil {
		return domain.Order{}, err
	}
	return h.store.Get(ctx, strings.TrimSpace(query.OrderID))
}

// Validate ensures the query has valid parameters.
func (q GetPendingOrderQuery) Validate() error {
	if strings.TrimSpace(q.OrderID) == "" {
		return ErrOrderIDRequired
	}
	return nil
}
