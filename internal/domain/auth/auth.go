package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned when a bearer credential is missing, malformed,
// expired or otherwise does not resolve to a user.
var ErrUnauthorized = errors.New("unauthorized")

// User is the identity a bearer credential resolves to.
type User struct {
	ID    string
	Email string
}

// Resolver turns a bearer token into the user it was issued for.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*User, error)
}

type userKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the authenticated user stored by WithUser.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}
