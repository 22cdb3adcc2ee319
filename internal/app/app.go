package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	isolation, err := postgres.ParseIsolation(cfg.Checkout.Isolation)
	if err != nil {
		return errors.Wrap(err, "checkout isolation")
	}

	// Repositories on the pool. The checkout transaction binds its own.
	products := postgres.NewProductRepository(pool)
	discounts := postgres.NewDiscountRepository(pool)
	carts := postgres.NewCartRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	requests := postgres.NewIdempotencyStore(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)

	var filter *discount.Filter
	if cfg.DiscountFilter.Enabled {
		filter = discount.NewFilter(discounts)
	}

	checkouts, err := checkout.NewService(checkout.Deps{
		Products:  products,
		Discounts: discounts,
		Carts:     carts,
		Orders:    orders,
		Requests:  requests,
		Tx:        postgres.NewTransactor(pool, isolation, postgres.RetryPolicy{
			Budget:      cfg.Checkout.RetryBudget,
			MaxAttempts: cfg.Checkout.MaxAttempts,
		}),
	}, checkout.Options{
		Currency:                 cfg.Checkout.Currency,
		CompensateFailedPayments: cfg.Checkout.CompensateFailedPayments,
		MeterProvider:            m.MeterProvider(),
		TracerProvider:           m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	h := handler.New(handler.Config{ImageBaseURL: cfg.ImageBaseURL}, handler.Deps{
		Products:  products,
		Carts:     cart.NewService(carts, products),
		Checkouts: checkouts,
		Orders:    order.NewService(orders),
		Discounts: discount.NewService(discounts, filter),
		Auth:      auth.NewAuthenticator(apikeys, []byte(cfg.APIKeyPepper)),
	})

	healthSvc := health.New()
	healthSvc.Register(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	if filter != nil {
		healthSvc.Register(health.Readiness, "discount_filter", time.Second,
			health.ConditionCheck("discount filter not loaded", filter.Loaded))
	}
	healthSvc.Register(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				Headers:          []string{"Content-Type", handler.HeaderAPIKey, handler.HeaderIdempotencyKey},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
			}),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gCtx, 10*time.Second)
	})
	if filter != nil {
		g.Go(func() error {
			return filter.Run(gCtx, cfg.DiscountFilter.Refresh)
		})
	}
	g.Go(func() error {
		// Graceful shutdown: drop readiness, let load balancers notice, drain.
		<-gCtx.Done()
		healthSvc.SetReady(false)
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
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
