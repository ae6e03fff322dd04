package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/platform/ttlcache"
)

func TestPendingOrderStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := NewPendingOrderStore(DefaultPendingTTL, ttlcache.WithClock(clock))

	order := domain.Order{ID: "order-1", Shop: domain.Shop{Domain: "shop.myshopify.com"}}
	require.NoError(t, store.Store(ctx, "order-1", order))

	t.Run("returns order inside ttl window", func(t *testing.T) {
		now = now.Add(29*time.Minute + 59*time.Second)

		got, err := store.Get(ctx, "order-1")
		require.NoError(t, err)
		require.Equal(t, order, got)
	})

	t.Run("read does not extend ttl", func(t *testing.T) {
		now = now.Add(time.Second)

		_, err := store.Get(ctx, "order-1")
		require.ErrorIs(t, err, ports.ErrPendingOrderNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		require.ErrorIs(t, err, ports.ErrPendingOrderNotFound)
	})
}

func TestPendingOrderStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewPendingOrderStore(0)

	require.NoError(t, store.Store(ctx, "id", domain.Order{ID: "id", Shop: domain.Shop{Domain: "a"}}))
	require.NoError(t, store.Store(ctx, "id", domain.Order{ID: "id", Shop: domain.Shop{Domain: "b"}}))

	got, err := store.Get(ctx, "id")
	require.NoError(t, err)
	require.Equal(t, "b", got.Shop.Domain)
	require.Equal(t, 1, store.Len())
}
