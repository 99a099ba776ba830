package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/voltcart-checkout/internal/domain/auth"
	"github.com/xenking/voltcart-checkout/internal/domain/order"
	"github.com/xenking/voltcart-checkout/internal/idempotency"
)

// Error kinds carried in the "error" field of every error response.
const (
	KindUnauthorized       = "Unauthorized"
	KindInvalidRequest     = "InvalidRequest"
	KindInvalidSignature   = "InvalidSignature"
	KindNotFound           = "NotFound"
	KindConflict           = "Conflict"
	KindGatewayError       = "GatewayError"
	KindPersistenceError   = "PersistenceError"
	KindConfigurationError = "ConfigurationError"
	KindInternalError      = "InternalError"
)

// apiError is an error already shaped for the wire.
type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	return e.Kind + ": " + e.Message
}

func invalidRequest(msg string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Kind: KindInvalidRequest, Message: msg}
}

var (
	errUnauthenticated       = &apiError{Status: http.StatusUnauthorized, Kind: KindUnauthorized, Message: "Authentication required"}
	errInvalidAuthentication = &apiError{Status: http.StatusUnauthorized, Kind: KindUnauthorized, Message: "Invalid authentication"}
	errInternal              = &apiError{Status: http.StatusInternalServerError, Kind: KindInternalError, Message: "An unexpected error occurred"}
)

// persistenceMessages keeps datastore details out of responses.
var persistenceMessages = map[string]string{
	"create order":       "Failed to create order in database",
	"create order items": "Failed to create order items",
	"mark paid":          "Failed to update order status",
	"mark failed":        "Failed to update order status",
}

// toAPIError maps domain errors onto the error taxonomy.
func toAPIError(err error) *apiError {
	var (
		apiErr     *apiError
		itemErr    *order.InvalidItemError
		totalsErr  *order.InvalidTotalsError
		gatewayErr *order.GatewayError
		persistErr *order.PersistenceError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, auth.ErrUnauthorized):
		return errInvalidAuthentication
	case errors.Is(err, order.ErrEmptyCart):
		return invalidRequest("Cart is empty")
	case errors.Is(err, order.ErrInvalidAddress):
		return invalidRequest("Invalid shipping address")
	case errors.As(err, &itemErr):
		return invalidRequest(itemErr.Error())
	case errors.As(err, &totalsErr):
		return invalidRequest(totalsErr.Error())
	case errors.Is(err, order.ErrMissingFields):
		return invalidRequest("Missing required payment verification fields")
	case errors.Is(err, order.ErrNotFound):
		return &apiError{Status: http.StatusNotFound, Kind: KindNotFound, Message: "Order not found"}
	case errors.Is(err, order.ErrInvalidSignature):
		return &apiError{Status: http.StatusBadRequest, Kind: KindInvalidSignature, Message: "Invalid payment signature"}
	case errors.Is(err, order.ErrAmountMismatch):
		return &apiError{Status: http.StatusBadRequest, Kind: KindInvalidSignature, Message: "Payment amount does not match order total"}
	case errors.Is(err, order.ErrAlreadyFinalized):
		return &apiError{Status: http.StatusConflict, Kind: KindConflict, Message: "Order already finalized"}
	case errors.Is(err, idempotency.ErrInProgress):
		return &apiError{Status: http.StatusConflict, Kind: KindConflict, Message: "A request with this Idempotency-Key is in progress"}
	case errors.Is(err, idempotency.ErrKeyReused):
		return &apiError{Status: http.StatusConflict, Kind: KindConflict, Message: "Idempotency-Key was used with a different request"}
	case errors.Is(err, order.ErrGatewayNotConfigured):
		return &apiError{Status: http.StatusInternalServerError, Kind: KindConfigurationError, Message: "Payment gateway not configured"}
	case errors.As(err, &gatewayErr):
		msg := "Payment gateway request failed"
		if gatewayErr.Op == "create order" {
			msg = "Failed to create payment order"
		}
		return &apiError{Status: http.StatusInternalServerError, Kind: KindGatewayError, Message: msg}
	case errors.As(err, &persistErr):
		msg, ok := persistenceMessages[persistErr.Op]
		if !ok {
			msg = "Failed to read orders"
		}
		return &apiError{Status: http.StatusInternalServerError, Kind: KindPersistenceError, Message: msg}
	default:
		return errInternal
	}
}

// fail logs server-side failures and writes the mapped error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("kind", apiErr.Kind),
			zap.Error(err),
		)
	}
	writeAPIError(w, apiErr)
}

func writeAPIError(w http.ResponseWriter, e *apiError) {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.Status)
	enc.FieldStart("error")
	enc.Str(e.Kind)
	enc.FieldStart("message")
	enc.Str(e.Message)
	enc.ObjEnd()
	writeJSON(w, e.Status, enc.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
