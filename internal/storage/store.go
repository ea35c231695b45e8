// Package storage persists transactions and budgets partitioned by owner.
//
// Every Store method takes the caller's owner explicitly. Reads never
// return another owner's records and writes never touch them: a lookup by
// id that hits a foreign record fails with core.ErrForbidden, an unknown id
// with core.ErrNotFound and an empty owner with core.ErrUnauthenticated.
package storage

import (
	"context"
	"strings"

	"budgetbuddy/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero fields match everything.
type TransactionFilter struct {
	Kind     core.Kind
	Category string
	From     core.Date // inclusive
	To       core.Date // inclusive
}

// Match reports whether t passes the filter.
func (f TransactionFilter) Match(t core.Transaction) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To.Time) {
		return false
	}
	return true
}

// Store is the record store contract shared by the SQLite and memory
// implementations.
type Store interface {
	CreateTransaction(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error)
	ListTransactions(ctx context.Context, owner string, f TransactionFilter) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, owner, id string, p core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, owner, id string) error

	CreateBudget(ctx context.Context, owner string, b core.Budget) (core.Budget, error)
	ListBudgets(ctx context.Context, owner string) ([]core.Budget, error)
	GetBudget(ctx context.Context, owner, id string) (core.Budget, error)
	UpdateBudget(ctx context.Context, owner, id string, p core.BudgetPatch) (core.Budget, error)
	DeleteBudget(ctx context.Context, owner, id string) error
	// UpsertBudget updates amount and period of the owner's budget for
	// category, preserving spent, or creates it with spent = 0.
	UpsertBudget(ctx context.Context, owner, category string, amount core.Money, period core.Period) (core.Budget, error)
	SetBudgetSpent(ctx context.Context, owner, id string, spent core.Money) error

	// ReplaceAll swaps the owner's whole data set in one step.
	ReplaceAll(ctx context.Context, owner string, txs []core.Transaction, budgets []core.Budget) error
	// BudgetOwners lists owners that have at least one budget.
	BudgetOwners(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// RequireOwner rejects an empty owner with core.ErrUnauthenticated.
func RequireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return core.ErrUnauthenticated
	}
	return nil
}

// ValidateImport checks every record of an import set and rejects
// duplicate budget categories.
func ValidateImport(txs []core.Transaction, budgets []core.Budget) error {
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(budgets))
	for _, b := range budgets {
		if err := b.Validate(); err != nil {
			return err
		}
		if seen[b.Category] {
			return core.NewValidationError("budgets", "duplicate budget for category "+b.Category)
		}
		seen[b.Category] = true
	}
	return nil
}

// DuplicateBudget is returned when a second budget is created for a category.
func DuplicateBudget(category string) error {
	return core.NewValidationError("category", "a budget for "+category+" already exists")
}
