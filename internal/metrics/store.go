package metrics

import (
	"context"
	"time"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/storage"
)

// InstrumentStore decorates s so every call is counted and timed.
func InstrumentStore(s storage.Store, m *Metrics) storage.Store {
	if m == nil {
		return s
	}
	return &instrumentedStore{next: s, m: m}
}

type instrumentedStore struct {
	next storage.Store
	m    *Metrics
}

var _ storage.Store = (*instrumentedStore)(nil)

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.m.ObserveStore(op, time.Since(start), err)
}

func (s *instrumentedStore) CreateTransaction(ctx context.Context, owner string, t core.Transaction) (_ core.Transaction, err error) {
	defer func(start time.Time) { s.observe("create_transaction", start, err) }(time.Now())
	return s.next.CreateTransaction(ctx, owner, t)
}

func (s *instrumentedStore) ListTransactions(ctx context.Context, owner string, f storage.TransactionFilter) (_ []core.Transaction, err error) {
	defer func(start time.Time) { s.observe("list_transactions", start, err) }(time.Now())
	return s.next.ListTransactions(ctx, owner, f)
}

func (s *instrumentedStore) GetTransaction(ctx context.Context, owner, id string) (_ core.Transaction, err error) {
	defer func(start time.Time) { s.observe("get_transaction", start, err) }(time.Now())
	return s.next.GetTransaction(ctx, owner, id)
}

func (s *instrumentedStore) UpdateTransaction(ctx context.Context, owner, id string, p core.TransactionPatch) (_ core.Transaction, err error) {
	defer func(start time.Time) { s.observe("update_transaction", start, err) }(time.Now())
	return s.next.UpdateTransaction(ctx, owner, id, p)
}

func (s *instrumentedStore) DeleteTransaction(ctx context.Context, owner, id string) (err error) {
	defer func(start time.Time) { s.observe("delete_transaction", start, err) }(time.Now())
	return s.next.DeleteTransaction(ctx, owner, id)
}

func (s *instrumentedStore) CreateBudget(ctx context.Context, owner string, b core.Budget) (_ core.Budget, err error) {
	defer func(start time.Time) { s.observe("create_budget", start, err) }(time.Now())
	return s.next.CreateBudget(ctx, owner, b)
}

func (s *instrumentedStore) ListBudgets(ctx context.Context, owner string) (_ []core.Budget, err error) {
	defer func(start time.Time) { s.observe("list_budgets", start, err) }(time.Now())
	return s.next.ListBudgets(ctx, owner)
}

func (s *instrumentedStore) GetBudget(ctx context.Context, owner, id string) (_ core.Budget, err error) {
	defer func(start time.Time) { s.observe("get_budget", start, err) }(time.Now())
	return s.next.GetBudget(ctx, owner, id)
}

func (s *instrumentedStore) UpdateBudget(ctx context.Context, owner, id string, p core.BudgetPatch) (_ core.Budget, err error) {
	defer func(start time.Time) { s.observe("update_budget", start, err) }(time.Now())
	return s.next.UpdateBudget(ctx, owner, id, p)
}

func (s *instrumentedStore) DeleteBudget(ctx context.Context, owner, id string) (err error) {
	defer func(start time.Time) { s.observe("delete_budget", start, err) }(time.Now())
	return s.next.DeleteBudget(ctx, owner, id)
}

func (s *instrumentedStore) UpsertBudget(ctx context.Context, owner, category string, amount core.Money, period core.Period) (_ core.Budget, err error) {
	defer func(start time.Time) { s.observe("upsert_budget", start, err) }(time.Now())
	return s.next.UpsertBudget(ctx, owner, category, amount, period)
}

func (s *instrumentedStore) SetBudgetSpent(ctx context.Context, owner, id string, spent core.Money) (err error) {
	defer func(start time.Time) { s.observe("set_budget_spent", start, err) }(time.Now())
	return s.next.SetBudgetSpent(ctx, owner, id, spent)
}

func (s *instrumentedStore) ReplaceAll(ctx context.Context, owner string, txs []core.Transaction, budgets []core.Budget) (err error) {
	defer func(start time.Time) { s.observe("replace_all", start, err) }(time.Now())
	return s.next.ReplaceAll(ctx, owner, txs, budgets)
}

func (s *instrumentedStore) BudgetOwners(ctx context.Context) (_ []string, err error) {
	defer func(start time.Time) { s.observe("budget_owners", start, err) }(time.Now())
	return s.next.BudgetOwners(ctx)
}

func (s *instrumentedStore) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("ping", start, err) }(time.Now())
	return s.next.Ping(ctx)
}

func (s *instrumentedStore) Close() error { return s.next.Close() }

// EventPublisher matches (*amqp.Client).PublishLedgerChanged.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// InstrumentPublisher counts published events by op and result.
func InstrumentPublisher(p EventPublisher, m *Metrics) EventPublisher {
	if m == nil {
		return p
	}
	return &instrumentedPublisher{next: p, m: m}
}

type instrumentedPublisher struct {
	next EventPublisher
	m    *Metrics
}

func (p *instrumentedPublisher) PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	err := p.next.PublishLedgerChanged(ctx, msg)
	p.m.ObservePublish(string(msg.Op), err)
	return err
}
