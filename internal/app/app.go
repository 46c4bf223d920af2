package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/theerakarnm/ekoe-promotion-service/internal/cache"
	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/cart"
	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/promotion"
	"github.com/theerakarnm/ekoe-promotion-service/internal/handler"
	"github.com/theerakarnm/ekoe-promotion-service/internal/storage/postgres"
	"github.com/theerakarnm/ekoe-promotion-service/pkg/health"
	"github.com/theerakarnm/ekoe-promotion-service/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health probes.
	checker := health.New()
	checker.AddReadiness("postgres", 5*time.Second, health.PingProbe(pool))
	checker.AddLiveness("goroutines", time.Second, health.GoroutineProbe(10000))

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	promoRepo := postgres.NewPromotionRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Optional Redis cache for the active promotion set.
	var (
		promotions promotion.Repository = promoRepo
		store      cache.Store          = cache.NoopStore{}
	)
	if cfg.Redis.Addr != "" {
		redisStore := cache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() { _ = redisStore.Close() }()
		checker.AddReadiness("redis", 5*time.Second, health.PingProbe(redisStore))
		store = redisStore
		promotions = cache.NewRepository(promoRepo, redisStore, cfg.Redis.TTL)
		lg.Info("Promotion cache enabled", zap.String("redis_addr", cfg.Redis.Addr))
	}

	checker.Start(ctx, 10*time.Second)
	checker.SetReady(true)

	// Domain services.
	cartService := cart.NewService(
		productRepo,
		promotions,
		promoRepo,
		cart.PricingConfig{
			TaxBasisPoints: cfg.Pricing.TaxBasisPoints,
			ShippingRates: map[string]cart.Money{
				"standard": cfg.Pricing.ShippingStandard,
				"express":  cfg.Pricing.ShippingExpress,
				"pickup":   cfg.Pricing.ShippingPickup,
			},
			DefaultShipping: cfg.Pricing.ShippingStandard,
		},
		m.TracerProvider().Tracer("cart"),
	)
	lifecycle := promotion.NewLifecycle(promoRepo)

	// HTTP surface.
	var security *handler.SecurityHandler
	if cfg.APIKeyPepper != "" {
		security = handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))
	} else {
		lg.Warn("API key pepper is not set, admin endpoints are unauthenticated")
	}
	h := handler.NewHandler(cartService, lifecycle, store, security)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", checker.LiveEndpoint)
	mux.HandleFunc("/readyz", checker.ReadyEndpoint)
	mux.Handle("/api/", otelhttp.NewHandler(h.Routes(), "ekoe-promotion-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		// InjectLogger sits outside Recovery so panic reports reach the real
		// logger, not the zctx fallback.
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		checker.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		checker.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
