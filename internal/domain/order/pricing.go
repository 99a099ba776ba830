package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxQuantity caps a single cart line.
	MaxQuantity = 10_000
	// moneyScale is the number of decimal places stored for amounts.
	moneyScale = 2
)

// maxAmount is the first value that no longer fits NUMERIC(12,2).
var maxAmount = decimal.New(1, 10)

// CartLine is one line of a checkout request as sent by the client.
type CartLine struct {
	ProductID       string
	ProductName     string
	ProductImage    string
	Quantity        int
	UnitPrice       decimal.Decimal
	SelectedColor   string
	SelectedVariant string
}

// Totals are the client-computed monetary fields of a checkout request.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// validateCart checks the lines in order and reports the first problem.
func validateCart(lines []CartLine) error {
	if len(lines) == 0 {
		return ErrEmptyCart
	}
	for i, l := range lines {
		switch {
		case blank(l.ProductID):
			return &InvalidItemError{Index: i, Reason: "productId required"}
		case blank(l.ProductName):
			return &InvalidItemError{Index: i, Reason: "productName required"}
		case l.Quantity < 1:
			return &InvalidItemError{Index: i, Reason: "quantity must be at least 1"}
		case l.Quantity > MaxQuantity:
			return &InvalidItemError{Index: i, Reason: fmt.Sprintf("quantity must be at most %d", MaxQuantity)}
		case l.UnitPrice.IsNegative():
			return &InvalidItemError{Index: i, Reason: "unitPrice must not be negative"}
		case !inPaise(l.UnitPrice):
			return &InvalidItemError{Index: i, Reason: "unitPrice must have at most 2 decimal places"}
		case l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).GreaterThanOrEqual(maxAmount):
			return &InvalidItemError{Index: i, Reason: "line total is too large"}
		}
	}
	return nil
}

func validateAddress(a ShippingAddress) error {
	for _, v := range []string{a.Name, a.Phone, a.AddressLine1, a.City, a.State, a.Pincode} {
		if blank(v) {
			return ErrInvalidAddress
		}
	}
	return nil
}

// validateTotals requires non-negative amounts and total = subtotal +
// shipping + tax at paise precision.
func validateTotals(t Totals) error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"subtotal", t.Subtotal},
		{"shipping", t.Shipping},
		{"tax", t.Tax},
		{"total", t.Total},
	}
	for _, f := range fields {
		switch {
		case f.value.IsNegative():
			return &InvalidTotalsError{Reason: f.name + " must not be negative"}
		case !inPaise(f.value):
			return &InvalidTotalsError{Reason: f.name + " must have at most 2 decimal places"}
		case f.value.GreaterThanOrEqual(maxAmount):
			return &InvalidTotalsError{Reason: f.name + " is too large"}
		}
	}
	sum := t.Subtotal.Add(t.Shipping).Add(t.Tax)
	if !sum.Equal(t.Total) {
		return &InvalidTotalsError{Reason: "total must equal subtotal + shipping + tax"}
	}
	return nil
}

// lineItems snapshots cart lines into order items, computing every line total
// on the server.
func lineItems(lines []CartLine) []Item {
	items := make([]Item, len(lines))
	for i, l := range lines {
		items[i] = Item{
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			ProductImage:    l.ProductImage,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			TotalPrice:      l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
			SelectedColor:   l.SelectedColor,
			SelectedVariant: l.SelectedVariant,
		}
	}
	return items
}

// inPaise reports whether v is representable without rounding in a
// NUMERIC(12,2) column.
func inPaise(v decimal.Decimal) bool {
	return v.Equal(v.Round(moneyScale))
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
