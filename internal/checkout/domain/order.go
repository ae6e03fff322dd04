package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidOrder marks every payload problem the caller can fix.
	ErrInvalidOrder           = errors.New("invalid order")
	ErrMissingDeliveryAddress = fmt.Errorf("%w: delivery address is required", ErrInvalidOrder)
	ErrMissingOrderID         = fmt.Errorf("%w: order id or shopify order id is required", ErrInvalidOrder)
	ErrInvalidPhone           = fmt.Errorf("%w: phone must be a Ukrainian mobile number", ErrInvalidOrder)
)

// FlexibleID holds an identifier that storefronts send either as a JSON
// string or as a JSON number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or a number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}

// Order is a storefront checkout payload.
type Order struct {
	ID              FlexibleID      `json:"id,omitempty"`
	OrderID         FlexibleID      `json:"order_id,omitempty"`
	OrderIDCamel    FlexibleID      `json:"orderId,omitempty"`
	Shop            Shop            `json:"shop"`
	Customer        Customer        `json:"customer"`
	Cart            Cart            `json:"cart"`
	DeliveryAddress *Address        `json:"deliveryAddress,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Shopify         *ShopifyRef     `json:"shopify,omitempty"`

	// Raw is the request body the order was parsed from.
	Raw []byte `json:"-"`
}

type Shop struct {
	Domain string `json:"domain"`
}

type Customer struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type Cart struct {
	Token    FlexibleID `json:"token,omitempty"`
	Items    []CartItem `json:"items"`
	Currency string     `json:"currency,omitempty"`
}

type ShopifyRef struct {
	OrderID FlexibleID `json:"orderId,omitempty"`
}

// CartItem prices are minor units (kopecks).
type CartItem struct {
	VariantID FlexibleID
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Title     string
	SKU       string
}

func (c *CartItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		VariantID      FlexibleID      `json:"variantId"`
		VariantIDSnake FlexibleID      `json:"variant_id"`
		ID             FlexibleID      `json:"id"`
		Quantity       json.RawMessage `json:"quantity"`
		Price          json.RawMessage `json:"price"`
		Title          string          `json:"title"`
		SKU            string          `json:"sku"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.VariantID = firstID(raw.VariantID, raw.VariantIDSnake, raw.ID)
	c.Quantity = parseDecimal(raw.Quantity)
	c.Price = parseDecimal(raw.Price)
	c.Title = raw.Title
	c.SKU = raw.SKU
	return nil
}

func (c CartItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		VariantID FlexibleID  `json:"variantId"`
		Quantity  json.Number `json:"quantity"`
		Price     json.Number `json:"price"`
		Title     string      `json:"title,omitempty"`
		SKU       string      `json:"sku,omitempty"`
	}{
		VariantID: c.VariantID,
		Quantity:  json.Number(c.Quantity.String()),
		Price:     json.Number(c.Price.String()),
		Title:     c.Title,
		SKU:       c.SKU,
	})
}

// parseDecimal accepts numbers and numeric strings; anything else is zero.
func parseDecimal(raw json.RawMessage) decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero
	}

	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Zero
	}
	return d
}

func firstID(ids ...FlexibleID) FlexibleID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

// ParseOrder decodes a checkout payload and keeps the original bytes.
func ParseOrder(raw []byte) (Order, error) {
	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	order.Raw = append([]byte(nil), raw...)
	return order, nil
}

// HasDeliveryAddress reports whether the shopper already supplied an address.
func (o Order) HasDeliveryAddress() bool {
	return o.DeliveryAddress != nil
}

// WithID returns a copy whose id field, in both the typed order and the raw
// payload, is set to id.
func (o Order) WithID(id string) Order {
	o.ID = FlexibleID(id)
	if len(o.Raw) == 0 {
		return o
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(o.Raw, &fields); err != nil {
		return o
	}
	encoded, err := json.Marshal(id)
	if err != nil {
		return o
	}
	fields["id"] = encoded
	if raw, err := json.Marshal(fields); err == nil {
		o.Raw = raw
	}
	return o
}

// Payload returns the original request body, or the typed order encoded
// when the order was not parsed from a request.
func (o Order) Payload() json.RawMessage {
	if len(o.Raw) > 0 {
		return json.RawMessage(o.Raw)
	}
	encoded, err := json.Marshal(o)
	if err != nil {
		return json.RawMessage("{}")
	}
	return encoded
}
