package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"budgetbuddy/internal/cache"
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/presenter"
	"budgetbuddy/internal/storage"
	"budgetbuddy/internal/storage/memory"
	"budgetbuddy/internal/storage/storagetest"
)

// gatedStore parks the next ListTransactions call until release is closed.
type gatedStore struct {
	*memory.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) ListTransactions(ctx context.Context, owner string, f storage.TransactionFilter) ([]core.Transaction, error) {
	if s.armed.CompareAndSwap(true, false) {
		list, err := s.Store.ListTransactions(ctx, owner, f)
		close(s.entered)
		<-s.release
		return list, err
	}
	return s.Store.ListTransactions(ctx, owner, f)
}

func TestDashboardReadBeforeMutationIsNotCached(t *testing.T) {
	store := &gatedStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	dashboards := cache.NewLRUCache[presenter.Dashboard](16, time.Minute)
	svc, err := NewLedgerService(store, Options{
		Dashboards: dashboards,
		Now:        func() time.Time { return time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewLedgerService failed: %v", err)
	}
	ctx := as(storagetest.Alice)

	store.armed.Store(true)
	stale := make(chan presenter.Dashboard, 1)
	go func() {
		d, err := svc.Dashboard(ctx, 3, "")
		if err != nil {
			t.Errorf("Dashboard failed: %v", err)
		}
		stale <- d
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard never read the store")
	}
	if _, err := svc.CreateTransaction(ctx, storagetest.Payday()); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	close(store.release)

	if d := <-stale; d.Summary.Income != "$0.00" {
		t.Fatalf("in-flight dashboard read before the mutation, got income %s", d.Summary.Income)
	}
	if dashboards.Size() != 0 {
		t.Fatalf("dashboard read before a mutation must not be cached, size %d", dashboards.Size())
	}

	d, err := svc.Dashboard(ctx, 3, "")
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if d.Summary.Income != "$2000.00" {
		t.Fatalf("income = %s, want $2000.00", d.Summary.Income)
	}
	if dashboards.Size() != 1 {
		t.Fatalf("fresh dashboard must be cached, size %d", dashboards.Size())
	}
}

func TestGenerationsGuardCaching(t *testing.T) {
	g := newGenerations()
	gen := g.current("alice")

	dropped := false
	g.advance("alice", func() { dropped = true })
	if !dropped {
		t.Fatal("advance must run drop")
	}
	if g.cacheIf("alice", gen, func() { t.Fatal("stale generation must not be cached") }) {
		t.Fatal("cacheIf reported success for a stale generation")
	}

	set := false
	if !g.cacheIf("alice", g.current("alice"), func() { set = true }) || !set {
		t.Fatal("current generation must be cached")
	}
	if g.current("bob") != 0 {
		t.Fatal("generations are per owner")
	}
}
