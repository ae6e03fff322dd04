package adapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/crm"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
)

// CRMProcessor is the part of crm.Client the gateway needs.
type CRMProcessor interface {
	ProcessOrder(ctx context.Context, orderID string, order domain.Order) crm.Result
}

// CRMGateway adapts the CRM client's result type to ports.CRMGateway.
type CRMGateway struct {
	client CRMProcessor
}

func NewCRMGateway(client CRMProcessor) *CRMGateway {
	return &CRMGateway{client: client}
}

func (g *CRMGateway) ProcessOrder(ctx context.Context, orderID string, order domain.Order) (ports.Invoice, error) {
	ctx, span := telemetry.StartSpan(ctx, "CRMGateway.ProcessOrder")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", orderID),
		attribute.String("shop.domain", order.Shop.Domain),
	)

	result := g.client.ProcessOrder(ctx, orderID, order)
	if !result.OK() {
		err := result.Err
		if err == nil {
			err = crm.ErrMissingPageURL
		}
		telemetry.RecordSpanError(span, err)
		return ports.Invoice{}, err
	}

	telemetry.AddSpanAttributes(span, attribute.String("crm.invoice_id", result.Invoice.InvoiceID))
	telemetry.SetSpanSuccess(span)
	return ports.Invoice{
		PageURL:   result.Invoice.PageURL,
		InvoiceID: result.Invoice.InvoiceID,
	}, nil
}
