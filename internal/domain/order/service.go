package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/voltcart-checkout/internal/domain/auth"
	"github.com/xenking/voltcart-checkout/internal/domain/payment"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CreateRequest holds the input for opening a checkout.
type CreateRequest struct {
	User            auth.User
	Lines           []CartLine
	ShippingAddress ShippingAddress
	Totals          Totals
}

// CreateResult holds everything the client needs to open the gateway's
// payment UI for a freshly created order.
type CreateResult struct {
	Order        *Order
	GatewayOrder *payment.GatewayOrder
	KeyID        string
}

// VerifyRequest is a payment callback forwarded by the client.
type VerifyRequest struct {
	UserID            string
	OrderID           string
	RazorpayOrderID   string
	RazorpayPaymentID string
	RazorpaySignature string
}

// ServiceConfig holds non-dependency configuration for the Service.
type ServiceConfig struct {
	Credentials payment.Credentials
	// NumberPrefix starts every order number. Defaults to DefaultNumberPrefix.
	NumberPrefix string
	// VerifyAmount makes verification fetch the gateway order and require its
	// amount to match the stored order total.
	VerifyAmount   bool
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service encapsulates order creation and payment verification.
type Service struct {
	orders       Repository
	gateway      payment.Gateway
	creds        payment.Credentials
	prefix       string
	verifyAmount bool

	now   func() time.Time
	randN func(n int) int
	newID func() string

	tracer   trace.Tracer
	created  metric.Int64Counter
	verified metric.Int64Counter
}

// NewService creates an order Service with the required dependencies.
func NewService(orders Repository, gateway payment.Gateway, cfg ServiceConfig) (*Service, error) {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = DefaultNumberPrefix
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}

	meter := cfg.MeterProvider.Meter("checkout")
	created, err := meter.Int64Counter("checkout.orders.created",
		metric.WithDescription("Orders persisted in pending state"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	verified, err := meter.Int64Counter("checkout.payments.verified",
		metric.WithDescription("Payment verification outcomes"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "payments.verified counter")
	}

	return &Service{
		orders:       orders,
		gateway:      gateway,
		creds:        cfg.Credentials,
		prefix:       cfg.NumberPrefix,
		verifyAmount: cfg.VerifyAmount,
		now:          time.Now,
		randN:        rand.IntN,
		newID:        uuid.NewString,
		tracer:       cfg.TracerProvider.Tracer("checkout"),
		created:      created,
		verified:     verified,
	}, nil
}

// CreateOrder validates the checkout, opens a gateway order and persists a
// pending order with its items. On any failure no local state survives.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (_ *CreateResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder")
	defer func() { endSpan(span, rerr) }()

	if err := validateCart(req.Lines); err != nil {
		return nil, err
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		return nil, err
	}
	if err := validateTotals(req.Totals); err != nil {
		return nil, err
	}
	if !s.creds.Configured() {
		return nil, ErrGatewayNotConfigured
	}

	lg := zctx.From(ctx)
	now := s.now()

	gw, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   payment.MinorUnits(req.Totals.Total),
		Currency: Currency,
		Receipt:  fmt.Sprintf("receipt_%d", now.UnixMilli()),
		Notes: map[string]string{
			"user_id": req.User.ID,
			"email":   req.User.Email,
		},
	})
	if err != nil {
		return nil, &GatewayError{Op: "create order", Err: err}
	}
	lg.Info("Gateway order created", zap.String("razorpay_order_id", gw.ID), zap.Int64("amount", gw.Amount))

	addr := req.ShippingAddress
	if blank(addr.Country) {
		addr.Country = DefaultCountry
	}

	o := &Order{
		ID:              s.newID(),
		OrderNumber:     formatOrderNumber(s.prefix, now, s.randN(orderNumberSpace)),
		UserID:          req.User.ID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   PaymentMethodRazorpay,
		Subtotal:        req.Totals.Subtotal,
		Shipping:        req.Totals.Shipping,
		Tax:             req.Totals.Tax,
		Total:           req.Totals.Total,
		ShippingAddress: addr,
		RazorpayOrderID: gw.ID,
		Items:           lineItems(req.Lines),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i := range o.Items {
		o.Items[i].ID = s.newID()
		o.Items[i].OrderID = o.ID
		o.Items[i].CreatedAt = now
	}

	// The gateway order is left to expire on persistence failure.
	if err := s.persist(ctx, o); err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1)
	lg.Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int("items", len(o.Items)),
	)

	return &CreateResult{
		Order:        o,
		GatewayOrder: gw,
		KeyID:        s.creds.KeyID,
	}, nil
}

// persist writes the order and its items in one transaction when the
// repository supports it, and otherwise deletes the order if the items fail.
func (s *Service) persist(ctx context.Context, o *Order) error {
	if tx, ok := s.orders.(Transactor); ok {
		err := tx.InTx(ctx, func(repo Repository) error {
			if err := repo.Create(ctx, o); err != nil {
				return errors.Wrap(err, "insert order")
			}
			if err := repo.CreateItems(ctx, o.ID, o.Items); err != nil {
				return errors.Wrap(err, "insert items")
			}
			return nil
		})
		if err != nil {
			return &PersistenceError{Op: "create order", Err: err}
		}
		return nil
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return &PersistenceError{Op: "create order", Err: err}
	}
	if err := s.orders.CreateItems(ctx, o.ID, o.Items); err != nil {
		if delErr := s.orders.Delete(ctx, o.ID); delErr != nil {
			zctx.From(ctx).Error("Compensating order delete failed",
				zap.String("order_id", o.ID),
				zap.Error(delErr),
			)
		}
		return &PersistenceError{Op: "create order items", Err: err}
	}
	return nil
}

// VerifyPayment authenticates a payment callback and moves the order to its
// terminal state: confirmed/completed on a valid signature, cancelled/failed
// otherwise.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.VerifyPayment")
	defer func() { endSpan(span, rerr) }()

	if blank(req.OrderID) || blank(req.RazorpayOrderID) ||
		blank(req.RazorpayPaymentID) || blank(req.RazorpaySignature) {
		return nil, ErrMissingFields
	}

	o, err := s.lookup(ctx, req.OrderID, req.UserID)
	if err != nil {
		return nil, err
	}
	if s.creds.KeySecret == "" {
		return nil, ErrGatewayNotConfigured
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	// The signature only vouches for the gateway order it was computed over,
	// so that order must be the one linked at creation.
	if req.RazorpayOrderID != o.RazorpayOrderID ||
		!payment.VerifySignature(s.creds.KeySecret, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		lg.Warn("Invalid payment signature", zap.String("razorpay_order_id", req.RazorpayOrderID))
		return nil, s.reject(ctx, o, ErrInvalidSignature)
	}

	if o.IsFinal() {
		return s.replay(ctx, o, req.RazorpayPaymentID)
	}

	if s.verifyAmount {
		gw, err := s.gateway.FetchOrder(ctx, o.RazorpayOrderID)
		if err != nil {
			return nil, &GatewayError{Op: "fetch order", Err: err}
		}
		if want := payment.MinorUnits(o.Total); gw.Amount != want {
			lg.Warn("Gateway amount mismatch", zap.Int64("gateway", gw.Amount), zap.Int64("order", want))
			return nil, s.reject(ctx, o, ErrAmountMismatch)
		}
	}

	updated, err := s.orders.MarkPaid(ctx, o.ID, req.RazorpayPaymentID)
	if err != nil {
		if !errors.Is(err, ErrNotPending) {
			return nil, &PersistenceError{Op: "mark paid", Err: err}
		}
		// Another callback finalized the order between lookup and update.
		current, err := s.lookup(ctx, o.ID, req.UserID)
		if err != nil {
			return nil, err
		}
		return s.replay(ctx, current, req.RazorpayPaymentID)
	}

	s.record(ctx, "confirmed")
	lg.Info("Payment verified", zap.String("order_number", updated.OrderNumber))
	return updated, nil
}

// reject cancels a still-pending order after a failed verification and
// returns cause. Finalized orders are left untouched.
func (s *Service) reject(ctx context.Context, o *Order, cause error) error {
	s.record(ctx, "rejected")
	if o.IsFinal() {
		return cause
	}
	if err := s.orders.MarkFailed(ctx, o.ID); err != nil && !errors.Is(err, ErrNotPending) {
		return &PersistenceError{Op: "mark failed", Err: err}
	}
	return cause
}

// replay answers a verification for an order that is no longer pending. Only
// the payment that confirmed the order may be replayed.
func (s *Service) replay(ctx context.Context, o *Order, paymentID string) (*Order, error) {
	if o.PaymentStatus == PaymentCompleted && o.RazorpayPaymentID == paymentID {
		s.record(ctx, "replayed")
		return o, nil
	}
	s.record(ctx, "conflict")
	return nil, ErrAlreadyFinalized
}

// GetOrder returns an order with its items if it belongs to userID.
func (s *Service) GetOrder(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.lookup(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.orders.ListItems(ctx, o.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "list items", Err: err}
	}
	o.Items = items
	return o, nil
}

// ListOrders returns the newest orders of userID. Limit is clamped to
// [1, 100]; zero selects the default page size.
func (s *Service) ListOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	orders, err := s.orders.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

// lookup fetches an order scoped to its owner. Unknown, foreign and malformed
// ids all yield ErrNotFound.
func (s *Service) lookup(ctx context.Context, id, userID string) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	o, err := s.orders.GetForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get order", Err: err}
	}
	return o, nil
}

func (s *Service) record(ctx context.Context, outcome string) {
	s.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
