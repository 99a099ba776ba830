package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/voltcart-checkout/internal/domain/order"
	"github.com/xenking/voltcart-checkout/internal/domain/payment"
	"github.com/xenking/voltcart-checkout/internal/handler"
	"github.com/xenking/voltcart-checkout/internal/idempotency"
	"github.com/xenking/voltcart-checkout/internal/identity"
	"github.com/xenking/voltcart-checkout/internal/razorpay"
	"github.com/xenking/voltcart-checkout/internal/storage/postgres"
	"github.com/xenking/voltcart-checkout/pkg/health"
	"github.com/xenking/voltcart-checkout/pkg/httpmiddleware"
)

const serviceName = "checkout-api"

// corsAllowHeaders are the request headers browsers may send cross-origin.
// X-Client-Info and Apikey are attached by supabase-js to every call.
var corsAllowHeaders = []string{
	"Authorization",
	"Content-Type",
	"X-Client-Info",
	"Apikey",
	"Idempotency-Key",
	httpmiddleware.RequestIDHeader,
}

// Telemetry provides the OpenTelemetry providers; *app.Telemetry from
// go-faster/sdk implements it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health checks.
	prober := health.New(2 * time.Second)
	prober.AddLiveness("goroutines", time.Second, health.GoroutineCountCheck(10000))
	prober.AddReadiness("postgres", 3*time.Second, health.PingCheck(pool))

	// Optional idempotency store.
	var idem handler.Idempotency
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		store := idempotency.NewStore(rdb, cfg.Redis.IdempotencyTTL)
		prober.AddReadiness("redis", time.Second, health.PingCheck(store))
		idem = store
		lg.Info("Idempotency keys enabled", zap.Duration("ttl", cfg.Redis.IdempotencyTTL))
	}

	// Payment gateway.
	creds := payment.Credentials{KeyID: cfg.Razorpay.KeyID, KeySecret: cfg.Razorpay.KeySecret}
	if !creds.Configured() {
		lg.Warn("Razorpay credentials missing, checkout requests will fail")
	}
	gateway, err := razorpay.New(razorpay.Options{
		Credentials:    creds,
		BaseURL:        cfg.Razorpay.BaseURL,
		Timeout:        cfg.Razorpay.Timeout,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create razorpay client")
	}

	// Domain service.
	orderService, err := order.NewService(postgres.NewOrderRepository(pool), gateway, order.ServiceConfig{
		Credentials:    creds,
		NumberPrefix:   cfg.Razorpay.OrderPrefix,
		VerifyAmount:   cfg.Razorpay.VerifyAmount,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	users, err := identity.NewJWTResolver(identity.Config{
		Secret:   cfg.Auth.JWTSecret,
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		return errors.Wrap(err, "create token resolver")
	}

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", prober.LiveHandler)
	mux.HandleFunc("GET /readyz", prober.ReadyHandler)
	handler.NewHandler(handler.HandlerConfig{}, orderService, users, idem).Register(mux)

	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		RPS:   cfg.RateLimit.RPS,
		Burst: cfg.RateLimit.Burst,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Razorpay.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RouteLabels(),
			limiter.Middleware(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     corsAllowHeaders,
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After", "Idempotent-Replayed"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           24 * time.Hour,
			}),
			httpmiddleware.LogRequests(),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.InjectLogger(lg),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return limiter.Run(gctx)
	})
	g.Go(func() error {
		prober.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: drop readiness, let load balancers notice, then drain.
	g.Go(func() error {
		<-gctx.Done()
		prober.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		if ctx.Err() != nil {
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	return g.Wait()
}
