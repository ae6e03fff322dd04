package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

type orderIDExtractor func(Order) string

// orderIDExtractors are evaluated in order; the first non-empty result wins.
var orderIDExtractors = []orderIDExtractor{
	func(o Order) string { return o.ID.String() },
	func(o Order) string { return o.OrderID.String() },
	func(o Order) string { return o.OrderIDCamel.String() },
	func(o Order) string { return o.Cart.Token.String() },
}

// ResolveOrderID runs only the deterministic extractors.
func ResolveOrderID(order Order) (string, bool) {
	for _, extract := range orderIDExtractors {
		if id := strings.TrimSpace(extract(order)); id != "" {
			return id, true
		}
	}
	return "", false
}

// ExtractOrderID falls back to a random identifier when the payload carries
// none. Call it once per request and pass the result along.
func ExtractOrderID(order Order) string {
	if id, ok := ResolveOrderID(order); ok {
		return id
	}
	return generateOrderID()
}

func generateOrderID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
