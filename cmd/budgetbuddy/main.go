package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetbuddy/internal/backend"
	"budgetbuddy/internal/cache"
	"budgetbuddy/internal/cli"
	apphttp "budgetbuddy/internal/http"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/metrics"
	"budgetbuddy/internal/presenter"
	"budgetbuddy/internal/services"
	"budgetbuddy/internal/session"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)
	logger.Info("Starting budgetbuddy server", "port", cfg.Port, "backend", cfg.DataBackend)

	m := metrics.New()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger, m).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	opts := services.Options{
		Logger:          logger.WithComponent(log.ComponentLedger),
		DefaultCurrency: cfg.DefaultCurrency,
		Rates:           cfg.Rates(),
	}
	if cfg.DashboardCacheTTL > 0 {
		dashboards := cache.NewLRUCache[presenter.Dashboard](cfg.DashboardCacheSize, cfg.DashboardCacheTTL)
		caches.Register(dashboards)
		opts.Dashboards = dashboards
	}
	if res.Events != nil {
		opts.Publisher = metrics.InstrumentPublisher(res.Events, m)
	}
	caches.StartCleanup(context.Background(), time.Minute)

	ledger, err := services.NewLedgerService(res.Store, opts)
	if err != nil {
		logger.Error("Failed to create ledger service", log.FieldError, err.Error())
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Deps{
		Ledger:   ledger,
		Verifier: session.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
		Ready:    res.Store,
		Metrics:  m,
		Logger:   logger.WithComponent(log.ComponentHTTP),
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
