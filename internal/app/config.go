package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Database    DatabaseConfig
	Razorpay    RazorpayConfig
	Auth        AuthConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// DatabaseConfig sizes the pgx pool.
type DatabaseConfig struct {
	MaxConns int32 `default:"10" usage:"Maximum pool connections" flag:"db-max-conns"`
	MinConns int32 `default:"2"  usage:"Minimum idle pool connections" flag:"db-min-conns"`
}

// RazorpayConfig holds gateway credentials and verification options.
// Missing credentials do not stop the server; checkout requests then fail
// with ConfigurationError.
type RazorpayConfig struct {
	KeyID        string        `usage:"Razorpay key id (RAZORPAY_KEY_ID)" flag:"razorpay-key-id"`
	KeySecret    string        `usage:"Razorpay key secret (RAZORPAY_KEY_SECRET)" flag:"razorpay-key-secret"`
	BaseURL      string        `default:"https://api.razorpay.com" usage:"Razorpay API base URL" flag:"razorpay-base-url"`
	Timeout      time.Duration `default:"15s" usage:"Razorpay request timeout" flag:"razorpay-timeout"`
	VerifyAmount bool          `default:"false" usage:"Cross-check the gateway order amount on verification" flag:"razorpay-verify-amount"`
	OrderPrefix  string        `default:"VC" usage:"Order number prefix" flag:"order-prefix"`
}

// AuthConfig controls bearer token validation.
type AuthConfig struct {
	JWTSecret string        `usage:"HS256 secret of the identity provider (SUPABASE_JWT_SECRET)" flag:"jwt-secret"`
	Audience  string        `default:"authenticated" usage:"Required token audience, empty to skip" flag:"jwt-audience"`
	Issuer    string        `default:"" usage:"Required token issuer, empty to skip" flag:"jwt-issuer"`
	Leeway    time.Duration `default:"30s" usage:"Allowed clock skew" flag:"jwt-leeway"`
}

// RedisConfig enables idempotent order creation when URL is set.
type RedisConfig struct {
	URL            string        `usage:"Redis URL for idempotency keys (REDIS_URL)" flag:"redis-url"`
	IdempotencyTTL time.Duration `default:"24h" usage:"Lifetime of idempotency keys" flag:"idempotency-ttl"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"5"  usage:"Sustained requests per second per client"`
	Burst int     `default:"20" usage:"Burst size per client"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("jwt secret is required: set CHECKOUT_AUTH_JWT_SECRET or SUPABASE_JWT_SECRET")
	case c.RateLimit.RPS <= 0:
		return errors.New("rate limit rps must be positive")
	case c.Redis.URL != "" && c.Redis.IdempotencyTTL <= 0:
		return errors.New("idempotency ttl must be positive")
	}
	return nil
}

// applyPlatformDefaults maps the unprefixed variables that hosting platforms
// and the storefront's deployment provide onto the configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	fallback := func(dst *string, name string) {
		if *dst == "" {
			*dst = getenv(name)
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.Razorpay.KeyID, "RAZORPAY_KEY_ID")
	fallback(&c.Razorpay.KeySecret, "RAZORPAY_KEY_SECRET")
	fallback(&c.Auth.JWTSecret, "SUPABASE_JWT_SECRET")
	fallback(&c.Redis.URL, "REDIS_URL")

	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
