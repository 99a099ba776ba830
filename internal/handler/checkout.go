package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/voltcart-checkout/internal/domain/auth"
	"github.com/xenking/voltcart-checkout/internal/domain/order"
	"github.com/xenking/voltcart-checkout/internal/idempotency"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
)

// createOrder handles POST /api/checkout/orders.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request, u *auth.User) error {
	ctx := r.Context()

	body, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	req, err := decodeCheckoutRequest(body)
	if err != nil {
		return err
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		return invalidRequest("Idempotency-Key is too long")
	}
	fingerprint := idempotency.Fingerprint(body)

	reserved := false
	if key != "" && h.idem != nil {
		cached, err := h.idem.Reserve(ctx, u.ID, key, fingerprint)
		switch {
		case errors.Is(err, idempotency.ErrInProgress), errors.Is(err, idempotency.ErrKeyReused):
			return err
		case err != nil:
			// Creation still works without the store; retries just lose dedup.
			zctx.From(ctx).Warn("Idempotency store unavailable", zap.Error(err))
		case cached != nil:
			w.Header().Set(replayedHeader, "true")
			writeJSON(w, cached.Status, cached.Body)
			return nil
		default:
			reserved = true
		}
	}

	res, err := h.orders.CreateOrder(ctx, order.CreateRequest{
		User:            *u,
		Lines:           req.Items,
		ShippingAddress: req.ShippingAddress,
		Totals:          req.Totals,
	})
	if err != nil {
		if reserved {
			h.release(ctx, u.ID, key)
		}
		return err
	}

	resp := encodeCheckoutResponse(res)
	if reserved {
		stored := idempotency.Response{Status: http.StatusOK, Body: resp}
		if err := h.idem.Complete(ctx, u.ID, key, fingerprint, stored); err != nil {
			// A key left pending would answer every retry with 409 until it expires.
			zctx.From(ctx).Warn("Store idempotent response", zap.Error(err))
			h.release(ctx, u.ID, key)
		}
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

// release forgets a reserved idempotency key so retries run again.
func (h *Handler) release(ctx context.Context, scope, key string) {
	if err := h.idem.Release(ctx, scope, key); err != nil {
		zctx.From(ctx).Warn("Release idempotency key", zap.Error(err))
	}
}

// verifyPayment handles POST /api/checkout/verify.
func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request, u *auth.User) error {
	body, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	req, err := decodeVerifyRequest(body)
	if err != nil {
		return err
	}

	o, err := h.orders.VerifyPayment(r.Context(), order.VerifyRequest{
		UserID:            u.ID,
		OrderID:           req.OrderID,
		RazorpayOrderID:   req.RazorpayOrderID,
		RazorpayPaymentID: req.RazorpayPaymentID,
		RazorpaySignature: req.RazorpaySignature,
	})
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, encodeVerifyResponse(o))
	return nil
}
