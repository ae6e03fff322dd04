package app

import (
	"context"
	"log/slog"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/app/commands"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/app/queries"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/metrics"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/platform/background"
)

// Dependencies are the ports the checkout use cases run against. Mirror may
// be nil when Shopify is not configured.
type Dependencies struct {
	Pending  ports.PendingOrderStore
	CRM      ports.CRMGateway
	Mirror   ports.OrderMirror
	Events   ports.EventBus
	Fallback commands.FallbackPolicy
}

// Service bundles the checkout use cases served over HTTP.
type Service struct {
	checkout   commands.CommandHandler
	pending    *queries.GetPendingOrderQueryHandler
	background *background.Group
}

// NewService wires required dependencies.
func NewService(deps Dependencies, logger *slog.Logger, metrics *metrics.Metrics) *Service {
	group := background.New(logger)

	coreHandler := commands.NewCheckoutCommandHandler(commands.HandlerDeps{
		Pending:  deps.Pending,
		CRM:      deps.CRM,
		Mirror:   deps.Mirror,
		Events:   deps.Events,
		Spawner:  group,
		Fallback: deps.Fallback,
	}, logger)
	observableHandler := commands.NewObservableCommandHandler(coreHandler, logger, metrics)

	return &Service{
		checkout:   observableHandler,
		pending:    queries.NewGetPendingOrderQueryHandler(deps.Pending),
		background: group,
	}
}

// Checkout stages an address-less order or hands a complete one to the CRM.
func (s *Service) Checkout(ctx context.Context, order domain.Order) (commands.CheckoutResult, error) {
	return s.checkout.Handle(ctx, commands.CheckoutCommand{Kind: commands.KindCheckout, Order: order})
}

// SubmitToCRM sends an order that already carries its delivery address.
func (s *Service) SubmitToCRM(ctx context.Context, order domain.Order) (commands.CheckoutResult, error) {
	return s.checkout.Handle(ctx, commands.CheckoutCommand{Kind: commands.KindCRMOrder, Order: order})
}

// PendingOrder returns a staged checkout by id.
func (s *Service) PendingOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.pending.Handle(ctx, queries.GetPendingOrderQuery{OrderID: orderID})
}

// Wait blocks until background mirror work finishes or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.background.Wait(ctx)
}
