package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"budgetbuddy/internal/core"
)

var _ Store = (*SQLiteRepository)(nil)

const (
	transactionColumns = "id, owner_id, name, amount_cents, kind, category, date, notes, created_at"
	budgetColumns      = "id, owner_id, category, amount_cents, period, spent_cents, created_at"

	// createdAtLayout is fixed width so created_at sorts chronologically as text.
	createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLiteRepository is the durable Store. It holds a single connection so
// statement groups are serialised; every read-check-write runs in one SQL
// transaction.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time

	stampMu sync.Mutex
	last    time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// stamp returns a creation time strictly after the previous one so that
// records created in the same clock tick keep their insertion order.
func (r *SQLiteRepository) stamp() time.Time {
	r.stampMu.Lock()
	defer r.stampMu.Unlock()
	t := r.now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Nanosecond)
	}
	r.last = t
	return t
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	if err := RequireOwner(owner); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.ID = uuid.NewString()
	t.OwnerID = owner
	t.CreatedAt = r.stamp()

	if err := insertTransaction(ctx, r.db, t); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"owner_id", owner,
		"kind", t.Kind,
		"category", t.Category,
		"amount_cents", t.Amount.Cents)

	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, owner string, f TransactionFilter) ([]core.Transaction, error) {
	if err := RequireOwner(owner); err != nil {
		return nil, err
	}

	where := []string{"owner_id = ?"}
	args := []any{owner}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE " +
		strings.Join(where, " AND ") + " ORDER BY created_at, id"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	if err := RequireOwner(owner); err != nil {
		return core.Transaction{}, err
	}
	return getTransaction(ctx, r.db, owner, id)
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, owner, id string, p core.TransactionPatch) (core.Transaction, error) {
	if err := RequireOwner(owner); err != nil {
		return core.Transaction{}, err
	}

	var updated core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getTransaction(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		next := p.Apply(current)
		if err := next.Validate(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE transactions SET name = ?, amount_cents = ?, kind = ?, category = ?, date = ?, notes = ?
			 WHERE id = ? AND owner_id = ?`,
			next.Name, next.Amount.Cents, string(next.Kind), next.Category, next.Date.String(), next.Notes,
			id, owner,
		)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction updated in SQLite", "id", id, "owner_id", owner)
	return updated, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, owner, id string) error {
	if err := RequireOwner(owner); err != nil {
		return err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTransaction(ctx, tx, owner, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ? AND owner_id = ?", id, owner); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id, "owner_id", owner)
	return nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, owner string, b core.Budget) (core.Budget, error) {
	if err := RequireOwner(owner); err != nil {
		return core.Budget{}, err
	}
	b.Spent = core.Money{}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	b.ID = uuid.NewString()
	b.OwnerID = owner

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, found, err := findBudgetByCategory(ctx, tx, owner, b.Category); err != nil {
			return err
		} else if found {
			return DuplicateBudget(b.Category)
		}
		return insertBudget(ctx, tx, b, r.stamp())
	})
	if err != nil {
		return core.Budget{}, err
	}

	slog.InfoContext(ctx, "Budget saved to SQLite", "id", b.ID, "owner_id", owner, "category", b.Category)
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	if err := RequireOwner(owner); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+budgetColumns+" FROM budgets WHERE owner_id = ? ORDER BY created_at, category", owner)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, owner, id string) (core.Budget, error) {
	if err := RequireOwner(owner); err != nil {
		return core.Budget{}, err
	}
	return getBudget(ctx, r.db, owner, id)
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, owner, id string, p core.BudgetPatch) (core.Budget, error) {
	if err := RequireOwner(owner); err != nil {
		return core.Budget{}, err
	}

	var updated core.Budget
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getBudget(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		next := p.Apply(current)
		if err := next.Validate(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE budgets SET amount_cents = ?, period = ? WHERE id = ? AND owner_id = ?",
			next.Amount.Cents, string(next.Period), id, owner,
		); err != nil {
			return fmt.Errorf("update budget: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return core.Budget{}, err
	}
	return updated, nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, owner, id string) error {
	if err := RequireOwner(owner); err != nil {
		return err
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getBudget(ctx, tx, owner, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM budgets WHERE id = ? AND owner_id = ?", id, owner); err != nil {
			return fmt.Errorf("delete budget: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, owner, category string, amount core.Money, period core.Period) (core.Budget, error) {
	if err := RequireOwner(owner); err != nil {
		return core.Budget{}, err
	}
	candidate := core.Budget{OwnerID: owner, Category: category, Amount: amount, Period: period}
	if err := candidate.Validate(); err != nil {
		return core.Budget{}, err
	}

	var result core.Budget
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := findBudgetByCategory(ctx, tx, owner, category)
		if err != nil {
			return err
		}
		if found {
			existing.Amount = amount
			existing.Period = period
			if _, err := tx.ExecContext(ctx,
				"UPDATE budgets SET amount_cents = ?, period = ? WHERE id = ?",
				amount.Cents, string(period), existing.ID,
			); err != nil {
				return fmt.Errorf("update budget: %w", err)
			}
			result = existing
			return nil
		}
		candidate.ID = uuid.NewString()
		result = candidate
		return insertBudget(ctx, tx, candidate, r.stamp())
	})
	if err != nil {
		return core.Budget{}, err
	}

	slog.InfoContext(ctx, "Budget upserted in SQLite",
		"id", result.ID,
		"owner_id", owner,
		"category", category,
		"amount_cents", amount.Cents)
	return result, nil
}

func (r *SQLiteRepository) SetBudgetSpent(ctx context.Context, owner, id string, spent core.Money) error {
	if err := RequireOwner(owner); err != nil {
		return err
	}
	if spent.Cents < 0 {
		return core.NewValidationError("spent", "spent cannot be negative")
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getBudget(ctx, tx, owner, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE budgets SET spent_cents = ? WHERE id = ? AND owner_id = ?", spent.Cents, id, owner,
		); err != nil {
			return fmt.Errorf("set budget spent: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) ReplaceAll(ctx context.Context, owner string, txs []core.Transaction, budgets []core.Budget) error {
	if err := RequireOwner(owner); err != nil {
		return err
	}
	if err := ValidateImport(txs, budgets); err != nil {
		return err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE owner_id = ?", owner); err != nil {
			return fmt.Errorf("clear transactions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM budgets WHERE owner_id = ?", owner); err != nil {
			return fmt.Errorf("clear budgets: %w", err)
		}

		used := make(map[string]bool, len(txs)+len(budgets))
		for _, t := range txs {
			id, err := importID(ctx, tx, "transactions", t.ID, used)
			if err != nil {
				return err
			}
			t.ID, t.OwnerID = id, owner
			if t.CreatedAt.IsZero() {
				t.CreatedAt = r.stamp()
			}
			if err := insertTransaction(ctx, tx, t); err != nil {
				return fmt.Errorf("import transaction: %w", err)
			}
		}
		for _, b := range budgets {
			id, err := importID(ctx, tx, "budgets", b.ID, used)
			if err != nil {
				return err
			}
			b.ID, b.OwnerID = id, owner
			if err := insertBudget(ctx, tx, b, r.stamp()); err != nil {
				return fmt.Errorf("import budget: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Owner data replaced in SQLite",
		"owner_id", owner,
		"transactions", len(txs),
		"budgets", len(budgets))
	return nil
}

func (r *SQLiteRepository) BudgetOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT owner_id FROM budgets ORDER BY owner_id")
	if err != nil {
		return nil, fmt.Errorf("list budget owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// importID keeps id unless it is empty, already used in this import or
// still taken by another owner's record.
func importID(ctx context.Context, q querier, table, id string, used map[string]bool) (string, error) {
	if id != "" && !used[id] {
		var n int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table+" WHERE id = ?", id).Scan(&n); err != nil {
			return "", fmt.Errorf("check %s id: %w", table, err)
		}
		if n == 0 {
			used[id] = true
			return id, nil
		}
	}
	fresh := uuid.NewString()
	used[fresh] = true
	return fresh, nil
}

func insertTransaction(ctx context.Context, q querier, t core.Transaction) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.OwnerID, t.Name, t.Amount.Cents, string(t.Kind), t.Category, t.Date.String(), t.Notes,
		t.CreatedAt.UTC().Format(createdAtLayout),
	)
	return err
}

func insertBudget(ctx context.Context, q querier, b core.Budget, createdAt time.Time) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO budgets ("+budgetColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		b.ID, b.OwnerID, b.Category, b.Amount.Cents, string(b.Period), b.Spent.Cents,
		createdAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	return nil
}

func getTransaction(ctx context.Context, q querier, owner, id string) (core.Transaction, error) {
	row := q.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	if t.OwnerID != owner {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrForbidden)
	}
	return t, nil
}

func getBudget(ctx context.Context, q querier, owner, id string) (core.Budget, error) {
	row := q.QueryRowContext(ctx, "SELECT "+budgetColumns+" FROM budgets WHERE id = ?", id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	if b.OwnerID != owner {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, core.ErrForbidden)
	}
	return b, nil
}

func findBudgetByCategory(ctx context.Context, q querier, owner, category string) (core.Budget, bool, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+budgetColumns+" FROM budgets WHERE owner_id = ? AND category = ?", owner, category)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, false, nil
	}
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("find budget: %w", err)
	}
	return b, true, nil
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                     core.Transaction
		kind, date, createdAt string
	)
	if err := s.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Amount.Cents, &kind, &t.Category, &date, &t.Notes, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	t.Date = d
	if createdAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("stored created_at %q: %w", createdAt, err)
		}
		t.CreatedAt = ts
	}
	return t, nil
}

func scanBudget(s rowScanner) (core.Budget, error) {
	var (
		b                 core.Budget
		period, createdAt string
	)
	if err := s.Scan(&b.ID, &b.OwnerID, &b.Category, &b.Amount.Cents, &period, &b.Spent.Cents, &createdAt); err != nil {
		return core.Budget{}, err
	}
	b.Period = core.Period(period)
	return b, nil
}
