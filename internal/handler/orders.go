package handler

import (
	"net/http"
	"strconv"

	"github.com/xenking/voltcart-checkout/internal/domain/auth"
)

// getOrder handles GET /api/orders/{id}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, u *auth.User) error {
	o, err := h.orders.GetOrder(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, encodeOrderResponse(o))
	return nil
}

// listOrders handles GET /api/orders?limit=N.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, u *auth.User) error {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return invalidRequest("limit must be a positive integer")
		}
		limit = n
	}

	orders, err := h.orders.ListOrders(r.Context(), u.ID, limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, encodeOrderList(orders))
	return nil
}
