package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment lifecycle of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks the gateway payment independently of Status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

const (
	// PaymentMethodRazorpay is the only payment method the checkout supports.
	PaymentMethodRazorpay = "razorpay"
	// DefaultCountry is stored when the shipping address omits a country.
	DefaultCountry = "India"
	// Currency is the ISO code every gateway order is opened in.
	Currency = "INR"
)

// ShippingAddress is a value copied onto the order at creation time.
type ShippingAddress struct {
	Name         string
	Phone        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
	Country      string
}

// Order is one checkout attempt.
type Order struct {
	ID                string
	OrderNumber       string
	UserID            string
	Status            Status
	PaymentStatus     PaymentStatus
	PaymentMethod     string
	Subtotal          decimal.Decimal
	Shipping          decimal.Decimal
	Tax               decimal.Decimal
	Total             decimal.Decimal
	ShippingAddress   ShippingAddress
	RazorpayOrderID   string
	RazorpayPaymentID string
	Items             []Item
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsFinal reports whether the order already left the pending state.
func (o *Order) IsFinal() bool {
	return o.PaymentStatus != PaymentPending
}

// Item is a cart line snapshotted at purchase time.
type Item struct {
	ID              string
	OrderID         string
	ProductID       string
	ProductName     string
	ProductImage    string
	Quantity        int
	UnitPrice       decimal.Decimal
	TotalPrice      decimal.Decimal
	SelectedColor   string
	SelectedVariant string
	CreatedAt       time.Time
}

// Repository defines persistence operations for orders and their items.
//
// MarkPaid and MarkFailed only touch orders whose payment is still pending
// and return ErrNotPending when no row was updated.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	CreateItems(ctx context.Context, orderID string, items []Item) error
	Delete(ctx context.Context, id string) error
	GetForUser(ctx context.Context, id, userID string) (*Order, error)
	ListItems(ctx context.Context, orderID string) ([]Item, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Order, error)
	MarkPaid(ctx context.Context, id, paymentID string) (*Order, error)
	MarkFailed(ctx context.Context, id string) error
}

// Transactor is implemented by repositories able to run several writes
// atomically. The callback receives a Repository bound to the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
