package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/adapters/memory"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/app"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/app/commands"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/events"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/platform/ttlcache"
)

type stubCRM struct {
	invoice ports.Invoice
	err     error
}

func (s stubCRM) ProcessOrder(context.Context, string, domain.Order) (ports.Invoice, error) {
	return s.invoice, s.err
}

// blockingMirror holds every mirror call until release is closed.
type blockingMirror struct {
	release chan struct{}
	mu      sync.Mutex
	done    int
}

func (m *blockingMirror) Mirror(ctx context.Context, _ domain.Order) error {
	<-m.release
	m.mu.Lock()
	m.done++
	m.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("shopify unavailable")
}

func (m *blockingMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func newService(t *testing.T, crm ports.CRMGateway, mirror ports.OrderMirror, clock func() time.Time) *app.Service {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.NewService(app.Dependencies{
		Pending:  memory.NewPendingOrderStore(memory.DefaultPendingTTL, ttlcache.WithClock(clock)),
		CRM:      crm,
		Mirror:   mirror,
		Events:   events.NewNoopEventBus(logger),
		Fallback: commands.FallbackPolicy{AllowedOrigin: "https://shop.example"},
	}, logger, nil)
}

func TestStagedOrderRoundTrip(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := newService(t, stubCRM{}, nil, clock)

	order, err := domain.ParseOrder([]byte(`{"cart":{"token":"tok-1","items":[{"variantId":1,"quantity":1,"price":100}]},"shop":{"domain":"s"}}`))
	require.NoError(t, err)

	result, err := svc.Checkout(t.Context(), order)
	require.NoError(t, err)
	require.True(t, result.Staged)
	require.Equal(t, "tok-1", result.OrderID)

	now = now.Add(30*time.Minute - time.Second)
	pending, err := svc.PendingOrder(t.Context(), "tok-1")
	require.NoError(t, err)
	require.JSONEq(t, string(order.Raw), string(pending.Payload()))

	now = now.Add(2 * time.Second)
	_, err = svc.PendingOrder(t.Context(), "tok-1")
	require.ErrorIs(t, err, ports.ErrPendingOrderNotFound)
}

func TestMirrorRunsAfterResponseAndIsDrained(t *testing.T) {
	mirror := &blockingMirror{release: make(chan struct{})}
	svc := newService(t, stubCRM{invoice: ports.Invoice{PageURL: "https://pay/1"}}, mirror, time.Now)

	ctx, cancel := context.WithCancel(t.Context())
	order := domain.Order{ID: "1001", DeliveryAddress: &domain.Address{City: "Київ", WarehouseNumber: "1"}}

	result, err := svc.Checkout(ctx, order)
	cancel()

	require.NoError(t, err)
	require.Equal(t, "https://pay/1", result.PageURL)
	require.Zero(t, mirror.count(), "mirror must not block the response")

	close(mirror.release)
	require.NoError(t, svc.Wait(t.Context()))
	require.Equal(t, 1, mirror.count())
}

func TestSubmitToCRMFallsBack(t *testing.T) {
	svc := newService(t, stubCRM{err: errors.New("crm down")}, nil, time.Now)

	result, err := svc.SubmitToCRM(t.Context(), domain.Order{ID: "5", DeliveryAddress: &domain.Address{City: "Львів"}})

	require.NoError(t, err)
	require.True(t, result.Fallback)
	require.Equal(t, "https://shop.example", result.PageURL)
}
