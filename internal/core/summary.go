package core

import (
	"fmt"
	"sort"
	"time"
)

const (
	KindFilterAll     KindFilter = "all"
	KindFilterIncome  KindFilter = "income"
	KindFilterExpense KindFilter = "expense"
)

const (
	SortDateDesc   SortKey = "date-desc"
	SortDateAsc    SortKey = "date-asc"
	SortAmountDesc SortKey = "amount-desc"
	SortAmountAsc  SortKey = "amount-asc"
)

// Progress thresholds in percent.
const (
	warningThreshold = 70
	dangerThreshold  = 85
)

const (
	StatusOK      BudgetStatus = "ok"
	StatusWarning BudgetStatus = "warning"
	StatusDanger  BudgetStatus = "danger"
)

type (
	KindFilter   string
	SortKey      string
	BudgetStatus string

	// Summary totals magnitudes per kind. Balance = Income - Expenses.
	Summary struct {
		Income   Money `json:"income"`
		Expenses Money `json:"expenses"`
		Balance  Money `json:"balance"`
	}

	// CategoryAmount represents an amount aggregated by category name.
	CategoryAmount struct {
		Name   string `json:"name"`
		Amount Money  `json:"amount"`
	}

	// MonthTotals is one entry of a monthly trend.
	MonthTotals struct {
		Year     int   `json:"year"`
		Month    int   `json:"month"` // 1-12
		Income   Money `json:"income"`
		Expenses Money `json:"expenses"`
	}

	BudgetProgress struct {
		Percentage int          `json:"percentage"`
		Remaining  Money        `json:"remaining"`
		Status     BudgetStatus `json:"status"`
	}
)

func ParseKindFilter(s string) (KindFilter, error) {
	switch f := KindFilter(s); f {
	case "":
		return KindFilterAll, nil
	case KindFilterAll, KindFilterIncome, KindFilterExpense:
		return f, nil
	default:
		return "", NewValidationError("kind", fmt.Sprintf("invalid filter %q: must be all, income or expense", s))
	}
}

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortDateDesc, nil
	case SortDateDesc, SortDateAsc, SortAmountDesc, SortAmountAsc:
		return k, nil
	default:
		return "", NewValidationError("sort", fmt.Sprintf("invalid sort key %q", s))
	}
}

// Label formats the month as "Jan 2025".
func (m MonthTotals) Label() string {
	return time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
}

// Summarize totals income and expense magnitudes.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, t := range txs {
		switch t.Kind {
		case Income:
			s.Income.Cents += t.Amount.Cents
		case Expense:
			s.Expenses.Cents += t.Amount.Cents
		}
	}
	s.Balance = s.Income.Sub(s.Expenses)
	return s
}

// Combine adds two summaries; Summarize(a ++ b) == Summarize(a).Combine(Summarize(b)).
func (s Summary) Combine(o Summary) Summary {
	r := Summary{Income: s.Income.Add(o.Income), Expenses: s.Expenses.Add(o.Expenses)}
	r.Balance = r.Income.Sub(r.Expenses)
	return r
}

// YearToDate summarizes the transactions dated in now's calendar year up to now.
func YearToDate(txs []Transaction, now time.Time) Summary {
	today := DateOf(now)
	var in []Transaction
	for _, t := range txs {
		if t.Date.Year() == today.Year() && !t.Date.After(today.Time) {
			in = append(in, t)
		}
	}
	return Summarize(in)
}

// FilterAndSort returns a new slice narrowed to filter and ordered by key.
// The sort is stable: equal keys keep their input order.
func FilterAndSort(txs []Transaction, filter KindFilter, key SortKey) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if filter == KindFilterAll || filter == "" || string(t.Kind) == string(filter) {
			out = append(out, t)
		}
	}
	var less func(a, b Transaction) bool
	switch key {
	case SortDateAsc:
		less = func(a, b Transaction) bool { return a.Date.Before(b.Date.Time) }
	case SortAmountDesc:
		less = func(a, b Transaction) bool { return a.Amount.Cents > b.Amount.Cents }
	case SortAmountAsc:
		less = func(a, b Transaction) bool { return a.Amount.Cents < b.Amount.Cents }
	default:
		less = func(a, b Transaction) bool { return a.Date.After(b.Date.Time) }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// ByCategory sums magnitudes per category for transactions of kind.
func ByCategory(txs []Transaction, kind Kind) map[string]Money {
	out := make(map[string]Money)
	for _, t := range txs {
		if t.Kind != kind {
			continue
		}
		out[t.Category] = out[t.Category].Add(t.Amount)
	}
	return out
}

// SortedCategoryAmounts orders a ByCategory result by amount descending,
// then by name.
func SortedCategoryAmounts(m map[string]Money) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(m))
	for name, amt := range m {
		out = append(out, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// MonthlyTrend returns exactly monthCount entries, oldest first, ending with
// the calendar month of now. Months without transactions report zeros.
func MonthlyTrend(txs []Transaction, monthCount int, now time.Time) []MonthTotals {
	if monthCount <= 0 {
		return []MonthTotals{}
	}
	out := make([]MonthTotals, monthCount)
	index := make(map[[2]int]int, monthCount)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(monthCount - 1), 0)
	for i := range out {
		m := first.AddDate(0, i, 0)
		out[i] = MonthTotals{Year: m.Year(), Month: int(m.Month())}
		index[[2]int{m.Year(), int(m.Month())}] = i
	}
	for _, t := range txs {
		i, ok := index[[2]int{t.Date.Year(), int(t.Date.Month())}]
		if !ok {
			continue
		}
		switch t.Kind {
		case Income:
			out[i].Income = out[i].Income.Add(t.Amount)
		case Expense:
			out[i].Expenses = out[i].Expenses.Add(t.Amount)
		}
	}
	return out
}

// RecomputeBudgetSpent returns copies of budgets whose Spent equals the sum
// of expense magnitudes of the same owner and category. It does not persist.
func RecomputeBudgetSpent(budgets []Budget, txs []Transaction) []Budget {
	type key struct{ owner, category string }
	sums := make(map[key]int64)
	for _, t := range txs {
		if t.Kind != Expense {
			continue
		}
		sums[key{t.OwnerID, t.Category}] += t.Amount.Cents
	}
	out := make([]Budget, len(budgets))
	for i, b := range budgets {
		b.Spent = Money{Cents: sums[key{b.OwnerID, b.Category}]}
		out[i] = b
	}
	return out
}

// CategoryAverage returns the mean expense magnitude per category, in cents
// rounded half-up.
func CategoryAverage(txs []Transaction) map[string]Money {
	totals := make(map[string]int64)
	counts := make(map[string]int64)
	for _, t := range txs {
		if t.Kind != Expense {
			continue
		}
		totals[t.Category] += t.Amount.Cents
		counts[t.Category]++
	}
	out := make(map[string]Money, len(totals))
	for cat, total := range totals {
		n := counts[cat]
		if n == 0 {
			continue
		}
		out[cat] = Money{Cents: (total*2 + n) / (2 * n)}
	}
	return out
}

// Progress computes the display percentage of b, capped at 100.
// Spent itself is left uncapped.
func (b Budget) Progress() BudgetProgress {
	p := BudgetProgress{Remaining: b.Amount.Sub(b.Spent), Status: StatusOK}
	if b.Amount.Cents > 0 {
		pct := b.Spent.Cents * 100 / b.Amount.Cents
		if pct > 100 {
			pct = 100
		}
		p.Percentage = int(pct)
	}
	switch {
	case p.Percentage >= dangerThreshold:
		p.Status = StatusDanger
	case p.Percentage >= warningThreshold:
		p.Status = StatusWarning
	}
	return p
}
