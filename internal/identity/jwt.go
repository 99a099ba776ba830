// Package identity resolves Supabase-issued bearer tokens into users.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/voltcart-checkout/internal/domain/auth"
)

// Compile-time check ensuring JWTResolver satisfies auth.Resolver.
var _ auth.Resolver = (*JWTResolver)(nil)

// Claims are the parts of a Supabase access token the checkout relies on.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Config describes how access tokens are validated.
type Config struct {
	// Secret is the project's HS256 signing secret.
	Secret string
	// Audience, when set, must appear in the token's aud claim.
	Audience string
	// Issuer, when set, must equal the token's iss claim.
	Issuer string
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

// JWTResolver validates HS256 access tokens.
type JWTResolver struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTResolver returns a resolver for tokens signed with cfg.Secret.
func NewJWTResolver(cfg Config) (*JWTResolver, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &JWTResolver{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Resolve parses and validates token. Every failure is reported as
// auth.ErrUnauthorized with the cause attached.
func (r *JWTResolver) Resolve(_ context.Context, token string) (*auth.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, auth.ErrUnauthorized
	}

	var claims Claims
	if _, err := r.parser.ParseWithClaims(token, &claims, r.key); err != nil {
		return nil, errors.Wrapf(auth.ErrUnauthorized, "parse token: %v", err)
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(auth.ErrUnauthorized, "token has no subject")
	}

	return &auth.User{
		ID:    claims.Subject,
		Email: claims.Email,
	}, nil
}

func (r *JWTResolver) key(*jwt.Token) (any, error) {
	return r.secret, nil
}

// Issue signs a token for userID. It is used by development tooling and tests;
// production tokens come from Supabase Auth.
func Issue(secret, userID, email string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
