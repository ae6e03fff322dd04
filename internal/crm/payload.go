package crm

import (
	"encoding/json"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
)

// Payload is the order shape the CRM webhook accepts. Name and phone travel
// in Customer; DeliveryAddress carries only the location.
type Payload struct {
	ID              string          `json:"id"`
	ShopifyOrderID  string          `json:"shopifyOrderId,omitempty"`
	Shop            domain.Shop     `json:"shop"`
	Customer        domain.Customer `json:"customer"`
	Cart            domain.Cart     `json:"cart"`
	DeliveryAddress *domain.Address `json:"deliveryAddress,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

func BuildPayload(orderID string, order domain.Order) Payload {
	payload := Payload{
		ID:             orderID,
		ShopifyOrderID: shopifyOrderID(orderID, order),
		Shop:           order.Shop,
		Customer:       domain.MergeCustomer(order.Customer, order.DeliveryAddress),
		Cart:           order.Cart,
		Metadata:       order.Metadata,
	}
	if order.DeliveryAddress != nil {
		location := order.DeliveryAddress.WithoutContact()
		payload.DeliveryAddress = &location
	}
	return payload
}

func shopifyOrderID(orderID string, order domain.Order) string {
	if order.ID != "" {
		return order.ID.String()
	}
	if order.Shopify != nil && order.Shopify.OrderID != "" {
		return order.Shopify.OrderID.String()
	}
	return orderID
}
