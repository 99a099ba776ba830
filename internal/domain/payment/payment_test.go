package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSign_MatchesHMAC(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("order_ABC|pay_XYZ"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign("secret", "order_ABC", "pay_XYZ"))
}

func TestSign_Deterministic(t *testing.T) {
	a := Sign("k", "order_1", "pay_1")
	b := Sign("k", "order_1", "pay_1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Sign("other", "order_1", "pay_1"))
	assert.NotEqual(t, a, Sign("k", "order_1", "pay_2"))
}

func TestVerifySignature(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_1")

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{name: "valid", orderID: "order_1", paymentID: "pay_1", signature: sig, want: true},
		{name: "tampered", orderID: "order_1", paymentID: "pay_1", signature: "deadbeef"},
		{name: "empty", orderID: "order_1", paymentID: "pay_1", signature: ""},
		{name: "other payment", orderID: "order_1", paymentID: "pay_2", signature: sig},
		{name: "other order", orderID: "order_2", paymentID: "pay_1", signature: sig},
		{name: "uppercase hex", orderID: "order_1", paymentID: "pay_1", signature: upper(sig)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature("secret", tt.orderID, tt.paymentID, tt.signature)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{in: "1000", want: 100000},
		{in: "0", want: 0},
		{in: "19.99", want: 1999},
		{in: "10.005", want: 1001},
		{in: "10.004", want: 1000},
		{in: "1180.50", want: 118050},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnits(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestCredentials_Configured(t *testing.T) {
	assert.True(t, Credentials{KeyID: "rzp_test", KeySecret: "s"}.Configured())
	assert.False(t, Credentials{KeyID: "rzp_test"}.Configured())
	assert.False(t, Credentials{KeySecret: "s"}.Configured())
	assert.False(t, Credentials{}.Configured())
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
