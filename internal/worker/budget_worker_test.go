package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/services"
	"budgetbuddy/internal/session"
	"budgetbuddy/internal/storage/memory"
)

type fakeRecomputer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeRecomputer) RecomputeBudgets(_ context.Context, owner string) ([]core.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, owner)
	if owner == "" {
		return nil, core.ErrUnauthenticated
	}
	return nil, f.fail[owner]
}

func (f *fakeRecomputer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type staticOwners struct {
	owners []string
	err    error
}

func (s staticOwners) BudgetOwners(context.Context) ([]string, error) { return s.owners, s.err }

func TestHandleLedgerChanged(t *testing.T) {
	rec := &fakeRecomputer{fail: map[string]error{"bob": errors.New("disk full")}}
	w := NewBudgetWorker(rec, staticOwners{})
	ctx := context.Background()

	tests := []struct {
		name    string
		owner   string
		wantErr bool
	}{
		{"recomputes owner", "alice", false},
		{"store failure requeues", "bob", true},
		{"missing owner is dropped", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := amqp.NewLedgerChangedMessage(tt.owner, amqp.RecordTransaction, "t1", amqp.OpCreate)
			err := w.HandleLedgerChanged(ctx, msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleLedgerChanged() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if rec.count() != 3 {
		t.Fatalf("expected 3 recompute calls, got %d", rec.count())
	}
}

func TestSweep(t *testing.T) {
	t.Run("all owners", func(t *testing.T) {
		rec := &fakeRecomputer{}
		w := NewBudgetWorker(rec, staticOwners{owners: []string{"alice", "bob"}})
		if err := w.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if rec.count() != 2 {
			t.Fatalf("expected 2 calls, got %d", rec.count())
		}
	})

	t.Run("failure does not stop others", func(t *testing.T) {
		rec := &fakeRecomputer{fail: map[string]error{"alice": errors.New("boom")}}
		w := NewBudgetWorker(rec, staticOwners{owners: []string{"alice", "bob"}})
		if err := w.Sweep(context.Background()); err == nil {
			t.Fatal("expected sweep error")
		}
		if rec.count() != 2 {
			t.Fatalf("expected both owners visited, got %d", rec.count())
		}
	})

	t.Run("owner listing fails", func(t *testing.T) {
		w := NewBudgetWorker(&fakeRecomputer{}, staticOwners{err: errors.New("offline")})
		if err := w.Sweep(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	rec := &fakeRecomputer{}
	w := NewBudgetWorker(rec, staticOwners{owners: []string{"alice"}})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for rec.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("expected startup and periodic sweeps")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	if err := w.Run(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestSweepRepairsStoredSpent(t *testing.T) {
	store := memory.New()
	svc, err := services.NewLedgerService(store, services.Options{})
	if err != nil {
		t.Fatalf("NewLedgerService failed: %v", err)
	}
	ctx := session.WithOwner(context.Background(), "alice")
	b, err := svc.SetBudget(ctx, "food", core.Cents(10000), core.Monthly)
	if err != nil {
		t.Fatalf("SetBudget failed: %v", err)
	}
	if _, err := svc.CreateTransaction(ctx, core.Transaction{
		Name: "Groceries", Amount: core.Cents(2500), Kind: core.Expense, Category: "food", Date: core.NewDate(2024, 2, 1),
	}); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	// Simulate a lost follow-up.
	if err := store.SetBudgetSpent(ctx, "alice", b.ID, core.Cents(0)); err != nil {
		t.Fatalf("SetBudgetSpent failed: %v", err)
	}

	w := NewBudgetWorker(svc, store)
	if err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	got, err := store.GetBudget(ctx, "alice", b.ID)
	if err != nil {
		t.Fatalf("GetBudget failed: %v", err)
	}
	if got.Spent != core.Cents(2500) {
		t.Fatalf("sweep must restore spent, got %v", got.Spent)
	}
}
