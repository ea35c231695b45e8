// Package services holds the use cases of the ledger. Every call reads the
// owner from the request context once and passes it to the store
// explicitly.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/backup"
	"budgetbuddy/internal/cache"
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/presenter"
	"budgetbuddy/internal/session"
	"budgetbuddy/internal/storage"
)

const (
	DefaultTrendMonths = 12
	MaxTrendMonths     = 60
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// Options configures a LedgerService. Every field is optional.
type Options struct {
	Publisher       EventPublisher
	Dashboards      cache.Cache[presenter.Dashboard]
	Logger          *log.Logger
	DefaultCurrency string
	// Rates enables display conversion. Stored amounts are in core.DefaultCurrency.
	Rates core.Rates
	Now   func() time.Time
}

// LedgerService orchestrates transactions and budgets of the calling owner
// across the store, the dashboard cache and the change-event publisher.
type LedgerService struct {
	store           storage.Store
	publisher       EventPublisher
	dashboards      cache.Cache[presenter.Dashboard]
	logger          *log.Logger
	events          *log.StructuredLogger
	defaultCurrency string
	rates           core.Rates
	now             func() time.Time

	locks *keyedMutex
	gens  *generations
	group singleflight.Group
}

func NewLedgerService(store storage.Store, opts Options) (*LedgerService, error) {
	if store == nil {
		return nil, errors.New("ledger service requires a store")
	}
	currency := core.DefaultCurrency
	if opts.DefaultCurrency != "" {
		var err error
		if currency, err = core.NormalizeCurrency(opts.DefaultCurrency); err != nil {
			return nil, fmt.Errorf("default currency: %w", err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default(log.ComponentLedger)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &LedgerService{
		store:           store,
		publisher:       opts.Publisher,
		dashboards:      opts.Dashboards,
		logger:          logger,
		events:          log.NewStructuredLogger(logger),
		defaultCurrency: currency,
		rates:           opts.Rates,
		now:             now,
		locks:           newKeyedMutex(),
		gens:            newGenerations(),
	}
	if _, err := s.Formatter(currency); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultCurrency is the display currency used when a request names none.
func (s *LedgerService) DefaultCurrency() string { return s.defaultCurrency }

// Formatter returns a display formatter for currency, or for the default
// currency when empty.
func (s *LedgerService) Formatter(currency string) (presenter.Formatter, error) {
	if strings.TrimSpace(currency) == "" {
		currency = s.defaultCurrency
	}
	return presenter.NewFormatter(currency, core.DefaultCurrency, s.rates)
}

func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Name = strings.TrimSpace(t.Name)
	t.Category = strings.TrimSpace(t.Category)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, owner, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.afterMutation(ctx, owner, amqp.RecordTransaction, created.ID, amqp.OpCreate)
	return created, nil
}

// ListTransactions returns the owner's transactions narrowed by kind and
// ordered by key. Empty arguments mean all kinds, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, kind core.KindFilter, key core.SortKey) ([]core.Transaction, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if kind, err = core.ParseKindFilter(string(kind)); err != nil {
		return nil, err
	}
	if key, err = core.ParseSortKey(string(key)); err != nil {
		return nil, err
	}

	txs, err := s.store.ListTransactions(ctx, owner, storage.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return core.FilterAndSort(txs, kind, key), nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	return s.store.GetTransaction(ctx, owner, id)
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (core.Transaction, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	if p.IsEmpty() {
		return core.Transaction{}, core.NewValidationError("body", "nothing to update")
	}

	unlock := s.locks.Lock("transaction:" + id)
	updated, err := s.store.UpdateTransaction(ctx, owner, id, p)
	unlock()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	s.afterMutation(ctx, owner, amqp.RecordTransaction, id, amqp.OpUpdate)
	return updated, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock("transaction:" + id)
	err = s.store.DeleteTransaction(ctx, owner, id)
	unlock()
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	s.afterMutation(ctx, owner, amqp.RecordTransaction, id, amqp.OpDelete)
	return nil
}

// SetBudget creates or updates the owner's budget for category. An existing
// budget keeps its id and spent.
func (s *LedgerService) SetBudget(ctx context.Context, category string, amount core.Money, period core.Period) (core.Budget, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return core.Budget{}, err
	}
	category = strings.TrimSpace(category)
	candidate := core.Budget{OwnerID: owner, Category: category, Amount: amount, Period: period}
	if err := candidate.Validate(); err != nil {
		return core.Budget{}, err
	}

	unlock := s.locks.Lock("budget-category:" + owner + ":" + category)
	b, err := s.store.UpsertBudget(ctx, owner, category, amount, period)
	unlock()
	if err != nil {
		return core.Budget{}, fmt.Errorf("set budget %s: %w", category, err)
	}
	s.afterMutation(ctx, owner, amqp.RecordBudget, b.ID, amqp.OpUpdate)

	// Report the freshly derived spent rather than the stored value.
	if refreshed, err := s.store.GetBudget(ctx, owner, b.ID); err == nil {
		b = refreshed
	}
	return b, nil
}

// ListBudgets returns the owner's budgets with spent recomputed from the
// current transactions.
func (s *LedgerService) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	budgets, txs, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	return core.RecomputeBudgetSpent(budgets, txs), nil
}

// BudgetAverages returns the mean expense per category for the owner.
func (s *LedgerService) BudgetAverages(ctx context.Context) (map[string]core.Money, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, owner, storage.TransactionFilter{Kind: core.Expense})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return core.CategoryAverage(txs), nil
}

func (s *LedgerService) UpdateBudget(ctx context.Context, id string, p core.BudgetPatch) (core.Budget, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return core.Budget{}, err
	}
	if p.Amount == nil && p.Period == nil {
		return core.Budget{}, core.NewValidationError("body", "nothing to update")
	}

	unlock := s.locks.Lock("budget:" + id)
	b, err := s.store.UpdateBudget(ctx, owner, id, p)
	unlock()
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}
	s.afterMutation(ctx, owner, amqp.RecordBudget, id, amqp.OpUpdate)
	return b, nil
}

func (s *LedgerService) DeleteBudget(ctx context.Context, id string) error {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock("budget:" + id)
	err = s.store.DeleteBudget(ctx, owner, id)
	unlock()
	if err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	s.afterMutation(ctx, owner, amqp.RecordBudget, id, amqp.OpDelete)
	return nil
}

// RecomputeBudgets derives spent for every budget of owner and persists the
// values that changed. It takes the owner explicitly so the worker can call
// it outside a request.
func (s *LedgerService) RecomputeBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	if err := storage.RequireOwner(owner); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock("recompute:" + owner)
	defer unlock()

	budgets, txs, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	fresh := core.RecomputeBudgetSpent(budgets, txs)
	for i, b := range fresh {
		if b.Spent == budgets[i].Spent {
			continue
		}
		if err := s.store.SetBudgetSpent(ctx, owner, b.ID, b.Spent); err != nil {
			// Deleted concurrently; the next recompute will not see it.
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("persist spent for budget %s: %w", b.ID, err)
		}
	}
	return fresh, nil
}

// Dashboard assembles the owner's summary, charts, trend and budgets in
// currency. Results are cached per owner until the next mutation and
// concurrent computations for the same view are collapsed into one.
func (s *LedgerService) Dashboard(ctx context.Context, months int, currency string) (presenter.Dashboard, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return presenter.Dashboard{}, err
	}
	if months == 0 {
		months = DefaultTrendMonths
	}
	if months < 1 || months > MaxTrendMonths {
		return presenter.Dashboard{}, core.NewValidationError("months", fmt.Sprintf("months must be between 1 and %d", MaxTrendMonths))
	}
	format, err := s.Formatter(currency)
	if err != nil {
		return presenter.Dashboard{}, err
	}

	key := fmt.Sprintf("%s%d:%s", dashboardPrefix(owner), months, format.Currency())
	if s.dashboards != nil {
		if d, ok := s.dashboards.Get(key); ok {
			return d, nil
		}
	}

	// Callers arriving after a mutation must not join a computation that
	// read the data before it.
	gen := s.gens.current(owner)
	v, err, _ := s.group.Do(fmt.Sprintf("%s@%d", key, gen), func() (any, error) {
		budgets, txs, err := s.load(ctx, owner)
		if err != nil {
			return presenter.Dashboard{}, err
		}
		d := presenter.New(format, nil).Dashboard(txs, core.RecomputeBudgetSpent(budgets, txs), months, s.now())
		if s.dashboards != nil {
			s.gens.cacheIf(owner, gen, func() { s.dashboards.Set(key, d) })
		}
		return d, nil
	})
	if err != nil {
		return presenter.Dashboard{}, err
	}
	return v.(presenter.Dashboard), nil
}

// Export returns the owner's full data set with budgets recomputed.
func (s *LedgerService) Export(ctx context.Context, currency string) (backup.Document, error) {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return backup.Document{}, err
	}
	if strings.TrimSpace(currency) == "" {
		currency = s.defaultCurrency
	}
	code, err := core.NormalizeCurrency(currency)
	if err != nil {
		return backup.Document{}, err
	}
	budgets, txs, err := s.load(ctx, owner)
	if err != nil {
		return backup.Document{}, err
	}
	s.logger.InfoContext(ctx, "Ledger exported",
		log.FieldOwner, owner,
		"transactions", len(txs),
		"budgets", len(budgets))
	return backup.Document{
		Transactions: txs,
		Budgets:      core.RecomputeBudgetSpent(budgets, txs),
		Currency:     code,
	}, nil
}

// Import replaces all of the owner's data with doc. The caller must have
// confirmed the replacement explicitly.
func (s *LedgerService) Import(ctx context.Context, doc backup.Document, confirmed bool) error {
	owner, err := session.OwnerFrom(ctx)
	if err != nil {
		return err
	}
	if !confirmed {
		return core.NewValidationError("confirm", "import replaces all existing data and must be confirmed")
	}

	unlock := s.locks.Lock("import:" + owner)
	err = s.store.ReplaceAll(ctx, owner, doc.Transactions, doc.Budgets)
	unlock()
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	s.afterMutation(ctx, owner, amqp.RecordLedger, "", amqp.OpImport)
	return nil
}

func (s *LedgerService) load(ctx context.Context, owner string) ([]core.Budget, []core.Transaction, error) {
	budgets, err := s.store.ListBudgets(ctx, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("list budgets: %w", err)
	}
	txs, err := s.store.ListTransactions(ctx, owner, storage.TransactionFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("list transactions: %w", err)
	}
	return budgets, txs, nil
}

// afterMutation runs the follow-ups of a committed change. The change has
// already succeeded, so failures here are logged and never returned.
func (s *LedgerService) afterMutation(ctx context.Context, owner string, record amqp.Record, id string, op amqp.Op) {
	s.events.LogMutation(ctx, owner, string(record), id, string(op))

	if _, err := s.RecomputeBudgets(ctx, owner); err != nil {
		s.events.LogError(ctx, "Failed to refresh budget spent", err, log.OpRecompute,
			log.NewFields().WithOwner(owner))
	}

	s.gens.advance(owner, func() {
		if s.dashboards != nil {
			s.dashboards.DeletePrefix(dashboardPrefix(owner))
		}
	})

	if err := s.publish(ctx, amqp.NewLedgerChangedMessage(owner, record, id, op)); err != nil {
		s.events.LogError(ctx, "Failed to publish ledger change", err, log.OpPublish,
			log.NewFields().WithOwner(owner).WithRecord(string(record), id))
	}
}

func (s *LedgerService) publish(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "Event publisher not configured, skipping ledger change message")
		return nil
	}
	return s.publisher.PublishLedgerChanged(ctx, msg)
}

func dashboardPrefix(owner string) string {
	return "dashboard:" + owner + ":"
}
