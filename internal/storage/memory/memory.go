// Package memory is an ephemeral storage.Store used for tests and
// throwaway runs. Records are lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	txs     map[string]core.Transaction
	budgets map[string]budgetRecord
	seq     int64
	last    time.Time
	now     func() time.Time
}

type budgetRecord struct {
	core.Budget
	seq int64
}

func New() *Store {
	return &Store{
		txs:     make(map[string]core.Transaction),
		budgets: make(map[string]budgetRecord),
		now:     time.Now,
	}
}

func (s *Store) CreateTransaction(_ context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.NewString()
	t.OwnerID = owner
	t.CreatedAt = s.stamp()
	s.txs[t.ID] = t
	return t, nil
}

func (s *Store) ListTransactions(_ context.Context, owner string, f storage.TransactionFilter) ([]core.Transaction, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Transaction{}
	for _, t := range s.txs {
		if t.OwnerID == owner && f.Match(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, owner, id string) (core.Transaction, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return core.Transaction{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupTransaction(owner, id)
}

func (s *Store) UpdateTransaction(_ context.Context, owner, id string, p core.TransactionPatch) (core.Transaction, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.lookupTransaction(owner, id)
	if err != nil {
		return core.Transaction{}, err
	}
	next := p.Apply(current)
	if err := next.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.txs[id] = next
	return next, nil
}

func (s *Store) DeleteTransaction(_ context.Context, owner, id string) error {
	if err := storage.RequireOwner(owner); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookupTransaction(owner, id); err != nil {
		return err
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) CreateBudget(_ context.Context, owner string, b core.Budget) (core.Budget, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return core.Budget{}, err
	}
	b.Spent = core.Money{}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgetByCategory(owner, b.Category); ok {
		return core.Budget{}, storage.DuplicateBudget(b.Category)
	}
	b.ID = uuid.NewString()
	b.OwnerID = owner
	s.putBudget(b)
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, owner string) ([]core.Budget, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]budgetRecord, 0)
	for _, r := range s.budgets {
		if r.OwnerID == owner {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]core.Budget, len(recs))
	for i, r := range recs {
		out[i] = r.Budget
	}
	return out, nil
}

func (s *Store) GetBudget(_ context.Context, owner, id string) (core.Budget, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return core.Budget{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupBudget(owner, id)
}

func (s *Store) UpdateBudget(_ context.Context, owner, id string, p core.BudgetPatch) (core.Budget, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.lookupBudget(owner, id)
	if err != nil {
		return core.Budget{}, err
	}
	next := p.Apply(current)
	if err := next.Validate(); err != nil {
		return core.Budget{}, err
	}
	rec := s.budgets[id]
	rec.Budget = next
	s.budgets[id] = rec
	return next, nil
}

func (s *Store) DeleteBudget(_ context.Context, owner, id string) error {
	if err := storage.RequireOwner(owner); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookupBudget(owner, id); err != nil {
		return err
	}
	delete(s.budgets, id)
	return nil
}

func (s *Store) UpsertBudget(_ context.Context, owner, category string, amount core.Money, period core.Period) (core.Budget, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return core.Budget{}, err
	}
	candidate := core.Budget{OwnerID: owner, Category: category, Amount: amount, Period: period}
	if err := candidate.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.budgetByCategory(owner, category); ok {
		rec.Amount = amount
		rec.Period = period
		s.budgets[rec.ID] = rec
		return rec.Budget, nil
	}
	candidate.ID = uuid.NewString()
	s.putBudget(candidate)
	return candidate, nil
}

func (s *Store) SetBudgetSpent(_ context.Context, owner, id string, spent core.Money) error {
	if err := storage.RequireOwner(owner); err != nil {
		return err
	}
	if spent.Cents < 0 {
		return core.NewValidationError("spent", "spent cannot be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookupBudget(owner, id); err != nil {
		return err
	}
	rec := s.budgets[id]
	rec.Spent = spent
	s.budgets[id] = rec
	return nil
}

func (s *Store) ReplaceAll(_ context.Context, owner string, txs []core.Transaction, budgets []core.Budget) error {
	if err := storage.RequireOwner(owner); err != nil {
		return err
	}
	if err := storage.ValidateImport(txs, budgets); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.txs {
		if t.OwnerID == owner {
			delete(s.txs, id)
		}
	}
	for id, b := range s.budgets {
		if b.OwnerID == owner {
			delete(s.budgets, id)
		}
	}

	used := make(map[string]bool, len(txs)+len(budgets))
	for _, t := range txs {
		t.ID = s.importID(t.ID, used)
		t.OwnerID = owner
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.stamp()
		}
		s.txs[t.ID] = t
	}
	for _, b := range budgets {
		b.ID = s.importID(b.ID, used)
		b.OwnerID = owner
		s.putBudget(b)
	}
	return nil
}

func (s *Store) BudgetOwners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := map[string]struct{}{}
	for _, b := range s.budgets {
		set[b.OwnerID] = struct{}{}
	}
	owners := make([]string, 0, len(set))
	for o := range set {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) lookupTransaction(owner, id string) (core.Transaction, error) {
	t, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if t.OwnerID != owner {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrForbidden)
	}
	return t, nil
}

func (s *Store) lookupBudget(owner, id string) (core.Budget, error) {
	b, ok := s.budgets[id]
	if !ok {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	if b.OwnerID != owner {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, core.ErrForbidden)
	}
	return b.Budget, nil
}

func (s *Store) budgetByCategory(owner, category string) (budgetRecord, bool) {
	for _, r := range s.budgets {
		if r.OwnerID == owner && r.Category == category {
			return r, true
		}
	}
	return budgetRecord{}, false
}

func (s *Store) putBudget(b core.Budget) {
	s.seq++
	s.budgets[b.ID] = budgetRecord{Budget: b, seq: s.seq}
}

func (s *Store) importID(id string, used map[string]bool) string {
	_, txTaken := s.txs[id]
	_, budgetTaken := s.budgets[id]
	if id != "" && !used[id] && !txTaken && !budgetTaken {
		used[id] = true
		return id
	}
	fresh := uuid.NewString()
	used[fresh] = true
	return fresh
}

// stamp returns a creation time strictly after the previous one so that
// records created in the same clock tick keep their insertion order.
func (s *Store) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}
