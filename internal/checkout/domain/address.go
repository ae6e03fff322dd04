package domain

import (
	"regexp"
	"strings"
)

// Address is the delivery address collected by the address form.
type Address struct {
	FullName         string `json:"fullName,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Region           string `json:"region"`
	City             string `json:"city"`
	WarehouseNumber  string `json:"warehouseNumber"`
	WarehouseAddress string `json:"warehouseAddress,omitempty"`
	FullAddress      string `json:"fullAddress,omitempty"`
}

// Name is a full name split into given and family parts.
type Name struct {
	FirstName string
	LastName  string
}

var (
	phonePattern      = regexp.MustCompile(`^(\+?380|0)?[0-9]{9}$`)
	countryCodePrefix = regexp.MustCompile(`^\+?380`)
)

// Validate applies the address form rules on the server side.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Phone) != "" && !ValidPhone(a.Phone) {
		return ErrInvalidPhone
	}
	return nil
}

// Normalized returns a copy with the phone in +380XXXXXXXXX form.
func (a Address) Normalized() Address {
	if strings.TrimSpace(a.Phone) != "" {
		a.Phone = FormatPhone(a.Phone)
	}
	return a
}

// WithoutContact drops the fields that travel in the customer record instead.
func (a Address) WithoutContact() Address {
	a.FullName = ""
	a.Phone = ""
	return a
}

// MergeCustomer overrides the customer's name and phone with non-empty
// address values.
func MergeCustomer(customer Customer, address *Address) Customer {
	if address == nil {
		return customer
	}
	if address.FullName != "" {
		customer.FullName = address.FullName
	}
	if address.Phone != "" {
		customer.Phone = address.Phone
	}
	return customer
}

func SplitFullName(fullName string) Name {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return Name{}
	}
	return Name{
		FirstName: parts[0],
		LastName:  strings.Join(parts[1:], " "),
	}
}

// FormatPhone rewrites a Ukrainian number into +380 form. Inputs of another
// shape are rewritten structurally; Validate rejects them beforehand.
func FormatPhone(phone string) string {
	phone = stripSpaces(phone)
	switch {
	case strings.HasPrefix(phone, "0"):
		return "+38" + phone
	case !strings.HasPrefix(phone, "+"):
		return "+380" + strings.TrimPrefix(phone, "380")
	default:
		return phone
	}
}

func ValidPhone(phone string) bool {
	phone = stripSpaces(phone)
	if phone == "" {
		return false
	}
	return phonePattern.MatchString(countryCodePrefix.ReplaceAllString(phone, ""))
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
