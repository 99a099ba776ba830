// Package handler exposes the checkout service over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/voltcart-checkout/internal/domain/auth"
	"github.com/xenking/voltcart-checkout/internal/domain/order"
	"github.com/xenking/voltcart-checkout/internal/idempotency"
)

// DefaultMaxBodyBytes caps request bodies when HandlerConfig leaves it unset.
const DefaultMaxBodyBytes = 64 << 10

// Orders is the order service as seen by the HTTP layer.
type Orders interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error)
	VerifyPayment(ctx context.Context, req order.VerifyRequest) (*order.Order, error)
	GetOrder(ctx context.Context, userID, id string) (*order.Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]order.Order, error)
}

// Idempotency stores responses keyed by the client's Idempotency-Key.
type Idempotency interface {
	Reserve(ctx context.Context, scope, key, fingerprint string) (*idempotency.Response, error)
	Complete(ctx context.Context, scope, key, fingerprint string, resp idempotency.Response) error
	Release(ctx context.Context, scope, key string) error
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	MaxBodyBytes int64
}

// Handler serves the checkout API.
type Handler struct {
	orders  Orders
	users   auth.Resolver
	idem    Idempotency
	maxBody int64
}

// NewHandler constructs a Handler. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewHandler(cfg HandlerConfig, orders Orders, users auth.Resolver, idem Idempotency) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		orders:  orders,
		users:   users,
		idem:    idem,
		maxBody: cfg.MaxBodyBytes,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/checkout/orders", h.authenticated(h.createOrder))
	mux.Handle("POST /api/checkout/verify", h.authenticated(h.verifyPayment))
	mux.Handle("GET /api/orders/{id}", h.authenticated(h.getOrder))
	mux.Handle("GET /api/orders", h.authenticated(h.listOrders))
}
