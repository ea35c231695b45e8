package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/core"
)

// BudgetRecomputer is satisfied by *services.LedgerService.
type BudgetRecomputer interface {
	RecomputeBudgets(ctx context.Context, owner string) ([]core.Budget, error)
}

// OwnerLister is satisfied by storage.Store.
type OwnerLister interface {
	BudgetOwners(ctx context.Context) ([]string, error)
}

// BudgetWorker keeps the persisted spent of every budget in line with the
// owner's transactions, driven by ledger change events.
type BudgetWorker struct {
	budgets BudgetRecomputer
	owners  OwnerLister
}

func NewBudgetWorker(budgets BudgetRecomputer, owners OwnerLister) *BudgetWorker {
	return &BudgetWorker{budgets: budgets, owners: owners}
}

// HandleLedgerChanged recomputes the budgets of the owner named in msg.
// A returned error makes the consumer requeue the message.
func (w *BudgetWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	slog.InfoContext(ctx, "Processing ledger change",
		"owner", msg.OwnerID,
		"record", msg.Record,
		"record_id", msg.RecordID,
		"op", msg.Op)

	budgets, err := w.budgets.RecomputeBudgets(ctx, msg.OwnerID)
	if err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			// Nothing to retry for a message without a usable owner.
			slog.WarnContext(ctx, "Dropping ledger change without owner")
			return nil
		}
		return fmt.Errorf("recompute budgets for %s: %w", msg.OwnerID, err)
	}

	slog.DebugContext(ctx, "Budgets recomputed", "owner", msg.OwnerID, "budgets", len(budgets))
	return nil
}

// Sweep recomputes budgets of every owner that has any. It is the safety
// net for lost messages; one owner failing does not stop the others.
func (w *BudgetWorker) Sweep(ctx context.Context) error {
	owners, err := w.owners.BudgetOwners(ctx)
	if err != nil {
		return fmt.Errorf("list budget owners: %w", err)
	}
	if len(owners) == 0 {
		return nil
	}

	var failed int
	for _, owner := range owners {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := w.budgets.RecomputeBudgets(ctx, owner); err != nil {
			slog.ErrorContext(ctx, "Failed to recompute budgets", "owner", owner, "error", err)
			failed++
		}
	}

	slog.InfoContext(ctx, "Budget sweep completed", "owners", len(owners), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("budget sweep: %d of %d owners failed", failed, len(owners))
	}
	return nil
}

// Run sweeps once and then every interval until ctx is cancelled.
func (w *BudgetWorker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Startup sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}
