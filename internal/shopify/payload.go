package shopify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
)

const (
	defaultCurrency = "UAH"
	countryCode     = "UA"
	orderTag        = "crm-integration"
)

var hundred = decimal.NewFromInt(100)

type orderEnvelope struct {
	Order orderRequest `json:"order"`
}

type orderRequest struct {
	LineItems         []lineItem `json:"line_items"`
	Customer          customer   `json:"customer"`
	BillingAddress    address    `json:"billing_address"`
	ShippingAddress   *address   `json:"shipping_address"`
	FinancialStatus   string     `json:"financial_status"`
	FulfillmentStatus *string    `json:"fulfillment_status"`
	Note              string     `json:"note"`
	Currency          string     `json:"currency"`
	Tags              string     `json:"tags"`
}

type lineItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price,omitempty"`
}

type customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address1  string `json:"address1"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Country   string `json:"country"`
	Zip       string `json:"zip"`
}

// skippedItem explains why a cart item did not become a line item.
type skippedItem struct {
	Index  int
	Reason string
}

func buildLineItems(items []domain.CartItem) ([]lineItem, []skippedItem) {
	lines := make([]lineItem, 0, len(items))
	var skipped []skippedItem

	for i, item := range items {
		if item.VariantID == "" {
			skipped = append(skipped, skippedItem{Index: i, Reason: "missing variant id"})
			continue
		}
		if !item.Quantity.IsInteger() || !item.Quantity.IsPositive() {
			skipped = append(skipped, skippedItem{Index: i, Reason: fmt.Sprintf("quantity %s is not a positive integer", item.Quantity)})
			continue
		}

		line := lineItem{
			VariantID: item.VariantID.String(),
			Quantity:  item.Quantity.IntPart(),
		}
		if item.Price.IsPositive() {
			line.Price = item.Price.Div(hundred).StringFixed(2)
		}
		lines = append(lines, line)
	}

	return lines, skipped
}

func buildOrder(order domain.Order, lines []lineItem) orderRequest {
	currency := order.Cart.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	delivery := "N/A"
	if order.DeliveryAddress != nil && order.DeliveryAddress.FullAddress != "" {
		delivery = order.DeliveryAddress.FullAddress
	}

	shipping := shippingAddress(order.DeliveryAddress)
	billing := billingAddress(order.Customer)
	if shipping != nil {
		billing = *shipping
	}

	return orderRequest{
		LineItems:       lines,
		Customer:        formatCustomer(order.Customer, order.DeliveryAddress),
		BillingAddress:  billing,
		ShippingAddress: shipping,
		FinancialStatus: "pending",
		Note:            "Order created via CRM integration. Delivery: " + delivery,
		Currency:        currency,
		Tags:            orderTag,
	}
}

func formatCustomer(c domain.Customer, a *domain.Address) customer {
	merged := domain.MergeCustomer(c, a)
	name := domain.SplitFullName(merged.FullName)
	return customer{
		FirstName: name.FirstName,
		LastName:  name.LastName,
		Email:     merged.Email,
		Phone:     merged.Phone,
	}
}

func shippingAddress(a *domain.Address) *address {
	if a == nil {
		return nil
	}
	name := domain.SplitFullName(a.FullName)
	return &address{
		FirstName: name.FirstName,
		LastName:  name.LastName,
		Phone:     a.Phone,
		Address1:  streetLine(*a),
		City:      a.City,
		Province:  a.Region,
		Country:   countryCode,
	}
}

func billingAddress(c domain.Customer) address {
	name := domain.SplitFullName(c.FullName)
	return address{
		FirstName: name.FirstName,
		LastName:  name.LastName,
		Phone:     c.Phone,
		Country:   countryCode,
	}
}

// streetLine prefers the pickup point address, then the full address with
// region and city removed, then a generic pickup point label.
func streetLine(a domain.Address) string {
	if a.WarehouseAddress != "" {
		return a.WarehouseAddress
	}

	line := a.FullAddress
	if a.Region != "" {
		line = strings.Replace(line, a.Region, "", 1)
	}
	if a.City != "" {
		line = strings.Replace(line, a.City, "", 1)
	}
	line = strings.Trim(strings.TrimSpace(line), ", ")
	if line != "" {
		return line
	}

	return "Відділення Нової Пошти №" + a.WarehouseNumber
}
