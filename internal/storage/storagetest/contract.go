// Package storagetest holds the behaviour every storage.Store must share.
// Implementations call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/storage"
)

const (
	Alice = "alice"
	Bob   = "bob"
)

// Coffee returns a valid expense used across the suite.
func Coffee() core.Transaction {
	return core.Transaction{
		Name:     "Coffee",
		Amount:   core.Cents(450),
		Kind:     core.Expense,
		Category: "food",
		Date:     core.NewDate(2024, 1, 10),
	}
}

// Payday returns a valid income used across the suite.
func Payday() core.Transaction {
	return core.Transaction{
		Name:     "Payday",
		Amount:   core.Cents(200000),
		Kind:     core.Income,
		Category: "salary",
		Date:     core.NewDate(2024, 1, 15),
	}
}

// Run exercises newStore against the shared Store contract. newStore must
// return an empty store; cleanup is the caller's responsibility.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("CreateTransaction assigns id and owner", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateTransaction(ctx, Alice, Coffee())
		if err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
		if created.ID == "" || created.OwnerID != Alice || created.CreatedAt.IsZero() {
			t.Fatalf("unexpected record %+v", created)
		}

		got, err := s.GetTransaction(ctx, Alice, created.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		want := Coffee()
		if got.Amount != want.Amount || got.Kind != want.Kind || got.Category != want.Category || !got.Date.Equal(want.Date.Time) {
			t.Errorf("round trip mismatch: got %+v", got)
		}

		other, err := s.CreateTransaction(ctx, Alice, Coffee())
		if err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
		if other.ID == created.ID {
			t.Errorf("ids must be unique")
		}
	})

	t.Run("empty owner is unauthenticated", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.CreateTransaction(ctx, "", Coffee()); !errors.Is(err, core.ErrUnauthenticated) {
			t.Errorf("CreateTransaction: expected ErrUnauthenticated, got %v", err)
		}
		if _, err := s.ListTransactions(ctx, "", storage.TransactionFilter{}); !errors.Is(err, core.ErrUnauthenticated) {
			t.Errorf("ListTransactions: expected ErrUnauthenticated, got %v", err)
		}
		if _, err := s.ListBudgets(ctx, ""); !errors.Is(err, core.ErrUnauthenticated) {
			t.Errorf("ListBudgets: expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("invalid records are rejected", func(t *testing.T) {
		s := newStore(t)
		bad := Coffee()
		bad.Category = "salary"
		if _, err := s.CreateTransaction(ctx, Alice, bad); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		list, err := s.ListTransactions(ctx, Alice, storage.TransactionFilter{})
		if err != nil || len(list) != 0 {
			t.Fatalf("no record should be stored, got %d (err=%v)", len(list), err)
		}
	})

	t.Run("foreign records are forbidden", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateTransaction(ctx, Alice, Coffee())
		if err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
		name := "Hijacked"

		if _, err := s.GetTransaction(ctx, Bob, created.ID); !errors.Is(err, core.ErrForbidden) {
			t.Errorf("Get: expected ErrForbidden, got %v", err)
		}
		if _, err := s.UpdateTransaction(ctx, Bob, created.ID, core.TransactionPatch{Name: &name}); !errors.Is(err, core.ErrForbidden) {
			t.Errorf("Update: expected ErrForbidden, got %v", err)
		}
		if err := s.DeleteTransaction(ctx, Bob, created.ID); !errors.Is(err, core.ErrForbidden) {
			t.Errorf("Delete: expected ErrForbidden, got %v", err)
		}

		got, err := s.GetTransaction(ctx, Alice, created.ID)
		if err != nil || got.Name != "Coffee" {
			t.Fatalf("record must be untouched, got %+v (err=%v)", got, err)
		}
		list, err := s.ListTransactions(ctx, Bob, storage.TransactionFilter{})
		if err != nil || len(list) != 0 {
			t.Fatalf("bob must see nothing, got %d (err=%v)", len(list), err)
		}
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetTransaction(ctx, Alice, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("GetTransaction: expected ErrNotFound, got %v", err)
		}
		if err := s.DeleteTransaction(ctx, Alice, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("DeleteTransaction: expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetBudget(ctx, Alice, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("GetBudget: expected ErrNotFound, got %v", err)
		}
		if err := s.SetBudgetSpent(ctx, Alice, "missing", core.Cents(1)); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("SetBudgetSpent: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateTransaction merges and validates", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateTransaction(ctx, Alice, Coffee())
		if err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
		amount := core.Cents(520)
		updated, err := s.UpdateTransaction(ctx, Alice, created.ID, core.TransactionPatch{Amount: &amount})
		if err != nil {
			t.Fatalf("UpdateTransaction failed: %v", err)
		}
		if updated.Amount.Cents != 520 || updated.Name != "Coffee" || updated.ID != created.ID {
			t.Fatalf("unexpected update %+v", updated)
		}

		income := core.Income
		if _, err := s.UpdateTransaction(ctx, Alice, created.ID, core.TransactionPatch{Kind: &income}); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error for food income, got %v", err)
		}
		got, _ := s.GetTransaction(ctx, Alice, created.ID)
		if got.Kind != core.Expense || got.Amount.Cents != 520 {
			t.Fatalf("failed update must leave record intact, got %+v", got)
		}
	})

	t.Run("DeleteTransaction is permanent", func(t *testing.T) {
		s := newStore(t)
		created, _ := s.CreateTransaction(ctx, Alice, Coffee())
		if err := s.DeleteTransaction(ctx, Alice, created.ID); err != nil {
			t.Fatalf("DeleteTransaction failed: %v", err)
		}
		if _, err := s.GetTransaction(ctx, Alice, created.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("ListTransactions filters", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, Alice, Coffee())
		mustCreate(t, s, Alice, Payday())
		travel := Coffee()
		travel.Name, travel.Category, travel.Date = "Train", "travel", core.NewDate(2024, 2, 3)
		mustCreate(t, s, Alice, travel)
		mustCreate(t, s, Bob, Coffee())

		cases := []struct {
			name   string
			filter storage.TransactionFilter
			want   []string
		}{
			{"all", storage.TransactionFilter{}, []string{"Coffee", "Payday", "Train"}},
			{"expense", storage.TransactionFilter{Kind: core.Expense}, []string{"Coffee", "Train"}},
			{"category", storage.TransactionFilter{Category: "travel"}, []string{"Train"}},
			{"from", storage.TransactionFilter{From: core.NewDate(2024, 1, 15)}, []string{"Payday", "Train"}},
			{"range", storage.TransactionFilter{From: core.NewDate(2024, 1, 10), To: core.NewDate(2024, 1, 15)}, []string{"Coffee", "Payday"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				list, err := s.ListTransactions(ctx, Alice, tc.filter)
				if err != nil {
					t.Fatalf("ListTransactions failed: %v", err)
				}
				got := names(list)
				if !equalStrings(got, tc.want) {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			})
		}
	})

	t.Run("ListTransactions keeps creation order", func(t *testing.T) {
		s := newStore(t)
		want := []string{"e", "d", "c", "b", "a", "f"}
		for _, name := range want {
			tx := Coffee()
			tx.Name = name
			mustCreate(t, s, Alice, tx)
		}

		list, err := s.ListTransactions(ctx, Alice, storage.TransactionFilter{})
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		got := make([]string, len(list))
		for i, tx := range list {
			got[i] = tx.Name
			if i > 0 && !tx.CreatedAt.After(list[i-1].CreatedAt) {
				t.Errorf("created_at not strictly increasing at %d", i)
			}
		}
		if !equalStrings(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("UpsertBudget keeps one budget per category", func(t *testing.T) {
		s := newStore(t)
		first, err := s.UpsertBudget(ctx, Alice, "food", core.Cents(10000), core.Monthly)
		if err != nil {
			t.Fatalf("UpsertBudget failed: %v", err)
		}
		if first.Spent.Cents != 0 {
			t.Fatalf("new budget must start with zero spent")
		}
		if err := s.SetBudgetSpent(ctx, Alice, first.ID, core.Cents(1200)); err != nil {
			t.Fatalf("SetBudgetSpent failed: %v", err)
		}

		second, err := s.UpsertBudget(ctx, Alice, "food", core.Cents(20000), core.Weekly)
		if err != nil {
			t.Fatalf("UpsertBudget failed: %v", err)
		}
		if second.ID != first.ID || second.Amount.Cents != 20000 || second.Period != core.Weekly {
			t.Fatalf("expected in-place update, got %+v", second)
		}
		if second.Spent.Cents != 1200 {
			t.Fatalf("upsert must preserve spent, got %d", second.Spent.Cents)
		}

		if _, err := s.UpsertBudget(ctx, Bob, "food", core.Cents(500), core.Monthly); err != nil {
			t.Fatalf("UpsertBudget for bob failed: %v", err)
		}
		list, err := s.ListBudgets(ctx, Alice)
		if err != nil || len(list) != 1 {
			t.Fatalf("expected one budget for alice, got %d (err=%v)", len(list), err)
		}
		if _, err := s.CreateBudget(ctx, Alice, core.Budget{Category: "food", Amount: core.Cents(1), Period: core.Monthly}); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected duplicate to fail validation, got %v", err)
		}
		if _, err := s.UpsertBudget(ctx, Alice, "salary", core.Cents(1), core.Monthly); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("income category must be rejected, got %v", err)
		}

		owners, err := s.BudgetOwners(ctx)
		if err != nil || !equalStrings(owners, []string{Alice, Bob}) {
			t.Fatalf("BudgetOwners = %v (err=%v)", owners, err)
		}
	})

	t.Run("budget CRUD is owner scoped", func(t *testing.T) {
		s := newStore(t)
		b, err := s.CreateBudget(ctx, Alice, core.Budget{Category: "travel", Amount: core.Cents(5000), Period: core.Yearly})
		if err != nil {
			t.Fatalf("CreateBudget failed: %v", err)
		}
		amount := core.Cents(7000)
		if _, err := s.UpdateBudget(ctx, Bob, b.ID, core.BudgetPatch{Amount: &amount}); !errors.Is(err, core.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if err := s.SetBudgetSpent(ctx, Bob, b.ID, core.Cents(1)); !errors.Is(err, core.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		updated, err := s.UpdateBudget(ctx, Alice, b.ID, core.BudgetPatch{Amount: &amount})
		if err != nil || updated.Amount.Cents != 7000 || updated.Category != "travel" {
			t.Fatalf("UpdateBudget = %+v (err=%v)", updated, err)
		}
		if err := s.DeleteBudget(ctx, Bob, b.ID); !errors.Is(err, core.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if err := s.DeleteBudget(ctx, Alice, b.ID); err != nil {
			t.Fatalf("DeleteBudget failed: %v", err)
		}
		if _, err := s.GetBudget(ctx, Alice, b.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReplaceAll swaps only the owner's data", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, Alice, Coffee())
		bobTx := mustCreate(t, s, Bob, Payday())

		imported := []core.Transaction{Payday(), Coffee()}
		imported[0].ID = "keep-me"
		imported[1].ID = bobTx.ID // collides with bob's record
		budgets := []core.Budget{{ID: "budget-1", Category: "food", Amount: core.Cents(10000), Period: core.Monthly, Spent: core.Cents(450)}}

		if err := s.ReplaceAll(ctx, Alice, imported, budgets); err != nil {
			t.Fatalf("ReplaceAll failed: %v", err)
		}

		list, err := s.ListTransactions(ctx, Alice, storage.TransactionFilter{})
		if err != nil || len(list) != 2 {
			t.Fatalf("expected 2 transactions, got %d (err=%v)", len(list), err)
		}
		ids := map[string]bool{}
		for _, tx := range list {
			ids[tx.ID] = true
			if tx.OwnerID != Alice {
				t.Fatalf("imported record not restamped: %+v", tx)
			}
		}
		if !ids["keep-me"] || ids[bobTx.ID] {
			t.Fatalf("unexpected ids %v", ids)
		}
		if got, err := s.GetTransaction(ctx, Bob, bobTx.ID); err != nil || got.Name != "Payday" {
			t.Fatalf("bob's record must survive, got %+v (err=%v)", got, err)
		}
		bs, err := s.ListBudgets(ctx, Alice)
		if err != nil || len(bs) != 1 || bs[0].ID != "budget-1" || bs[0].Spent.Cents != 450 {
			t.Fatalf("unexpected budgets %+v (err=%v)", bs, err)
		}

		dup := []core.Budget{budgets[0], budgets[0]}
		if err := s.ReplaceAll(ctx, Alice, nil, dup); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error for duplicate categories, got %v", err)
		}
		if list, _ := s.ListTransactions(ctx, Alice, storage.TransactionFilter{}); len(list) != 2 {
			t.Fatalf("rejected import must not change data, got %d", len(list))
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})
}

func mustCreate(t *testing.T, s storage.Store, owner string, tx core.Transaction) core.Transaction {
	t.Helper()
	created, err := s.CreateTransaction(context.Background(), owner, tx)
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	return created
}

func names(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.Name
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
