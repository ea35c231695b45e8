package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"budgetbuddy/internal/backend"
	"budgetbuddy/internal/cli"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/services"
	"budgetbuddy/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting budgetbuddy-worker", "sweep_interval", cfg.SweepInterval.String())

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	backendCfg.RequireAMQP = true
	if backendCfg.Type == backend.MemoryBackend {
		logger.Warn("Worker running on the memory backend sees none of the server's data")
	}

	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger, nil).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	}()

	ledger, err := services.NewLedgerService(res.Store, services.Options{
		Logger:          logger.WithComponent(log.ComponentLedger),
		DefaultCurrency: cfg.DefaultCurrency,
		Rates:           cfg.Rates(),
	})
	if err != nil {
		logger.Error("Failed to create ledger service", log.FieldError, err.Error())
		os.Exit(1)
	}
	budgets := worker.NewBudgetWorker(ledger, res.Store)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return res.Events.ConsumeLedgerChanged(gctx, budgets.HandleLedgerChanged)
	})
	g.Go(func() error {
		return budgets.Run(gctx, cfg.SweepInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err.Error())
		os.Exit(1)
	}
	if ctx.Err() != nil {
		<-done
	}
	logger.Info("Worker shutdown complete")
}
