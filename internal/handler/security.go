package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/voltcart-checkout/internal/domain/auth"
)

// userHandler serves a request on behalf of an authenticated user.
type userHandler func(w http.ResponseWriter, r *http.Request, u *auth.User) error

// authenticated resolves the bearer token before running next. Failures are
// answered with 401 and never reach business logic.
func (h *Handler) authenticated(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeAPIError(w, errUnauthenticated)
			return
		}
		u, err := h.users.Resolve(r.Context(), token)
		if err != nil {
			zctx.From(r.Context()).Debug("Bearer token rejected", zap.Error(err))
			writeAPIError(w, errInvalidAuthentication)
			return
		}

		ctx := auth.WithUser(r.Context(), u)
		ctx = zctx.With(ctx, zap.String("user_id", u.ID))
		r = r.WithContext(ctx)

		if err := next(w, r, u); err != nil {
			h.fail(w, r, err)
		}
	})
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
