// Command dev-token mints a bearer token accepted by the checkout API, for
// local testing without the identity provider.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/voltcart-checkout/internal/identity"
)

func main() {
	var (
		secret string
		userID string
		email  string
		ttl    time.Duration
	)

	flag.StringVar(&secret, "secret", "", "HS256 signing secret (or SUPABASE_JWT_SECRET env)")
	flag.StringVar(&userID, "user-id", "", "token subject; a random UUID when empty")
	flag.StringVar(&email, "email", "dev@voltcart.local", "email claim")
	flag.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	flag.Parse()

	if secret == "" {
		secret = os.Getenv("SUPABASE_JWT_SECRET")
	}
	if secret == "" {
		slog.Error("secret is required: set --secret or SUPABASE_JWT_SECRET")
		os.Exit(1)
	}
	if userID == "" {
		userID = uuid.NewString()
	}

	token, err := identity.Issue(secret, userID, email, ttl, time.Now())
	if err != nil {
		slog.Error("issue token failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("token issued", slog.String("user_id", userID), slog.Duration("ttl", ttl))
	fmt.Println(token)
}
