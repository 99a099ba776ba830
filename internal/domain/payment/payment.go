// Package payment describes the payment gateway the checkout talks to and the
// callback signature scheme used to authenticate completed payments.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Credentials are the gateway API key pair. KeyID is public and handed to the
// client; KeySecret never leaves the server.
type Credentials struct {
	KeyID     string
	KeySecret string
}

// Configured reports whether both halves of the key pair are present.
func (c Credentials) Configured() bool {
	return c.KeyID != "" && c.KeySecret != ""
}

// OrderRequest opens a gateway order for the given amount in minor units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the gateway-side view of an order.
type GatewayOrder struct {
	ID         string
	Amount     int64
	AmountPaid int64
	Currency   string
	Receipt    string
	Status     string
}

// Gateway creates and fetches orders on the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
	FetchOrder(ctx context.Context, id string) (*GatewayOrder, error)
}

// MinorUnits converts an amount in rupees to paise, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Sign returns the hex-encoded HMAC-SHA256 of "orderID|paymentID" keyed by
// secret, matching the signature the gateway hands to the client.
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the callback signature and compares it with the
// client-supplied one in constant time.
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	expected := Sign(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
