package memory

import (
	"context"
	"time"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/platform/ttlcache"
)

// DefaultPendingTTL is how long a checkout waits for its delivery address.
const DefaultPendingTTL = 30 * time.Minute

// PendingOrderStore keeps staged checkouts in process memory. A restart
// drops every pending order.
type PendingOrderStore struct {
	orders *ttlcache.Cache[string, domain.Order]
}

// NewPendingOrderStore constructs a store whose entries expire after ttl.
func NewPendingOrderStore(ttl time.Duration, opts ...ttlcache.Option) *PendingOrderStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &PendingOrderStore{orders: ttlcache.New[string, domain.Order](ttl, opts...)}
}

// Store inserts or replaces the order and restarts its TTL.
func (s *PendingOrderStore) Store(_ context.Context, orderID string, order domain.Order) error {
	s.orders.Set(orderID, order)
	return nil
}

// Get returns the order while it is still live.
func (s *PendingOrderStore) Get(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := s.orders.Get(orderID)
	if !ok {
		return domain.Order{}, ports.ErrPendingOrderNotFound
	}
	return order, nil
}

// Len reports how many orders are currently held, expired ones included
// until the next sweep.
func (s *PendingOrderStore) Len() int {
	return s.orders.Len()
}

// Run evicts expired orders every interval until ctx is done.
func (s *PendingOrderStore) Run(ctx context.Context, interval time.Duration) error {
	return s.orders.Run(ctx, interval)
}
