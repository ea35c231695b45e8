package presenter

import (
	"time"

	"budgetbuddy/internal/core"
)

type (
	TransactionRow struct {
		ID            string  `json:"id"`
		Name          string  `json:"name"`
		Date          string  `json:"date"`
		Kind          string  `json:"kind"`
		Category      string  `json:"category"`
		CategoryLabel string  `json:"categoryLabel"`
		Notes         string  `json:"notes,omitempty"`
		Amount        string  `json:"amount"`
		Value         float64 `json:"value"`
		Color         string  `json:"color"`
	}

	ChartSeries struct {
		Labels []string  `json:"labels"`
		Values []float64 `json:"values"`
		Colors []string  `json:"colors"`
	}

	TrendSeries struct {
		Labels        []string  `json:"labels"`
		Income        []float64 `json:"income"`
		Expenses      []float64 `json:"expenses"`
		IncomeColor   string    `json:"incomeColor"`
		ExpensesColor string    `json:"expensesColor"`
	}

	SummaryView struct {
		Income          string `json:"income"`
		Expenses        string `json:"expenses"`
		Balance         string `json:"balance"`
		BalanceNegative bool   `json:"balanceNegative"`
	}

	BudgetView struct {
		ID            string            `json:"id"`
		Category      string            `json:"category"`
		CategoryLabel string            `json:"categoryLabel"`
		Period        string            `json:"period"`
		Amount        string            `json:"amount"`
		Spent         string            `json:"spent"`
		Remaining     string            `json:"remaining"`
		Percentage    int               `json:"percentage"`
		Status        core.BudgetStatus `json:"status"`
		Color         string            `json:"color"`
		Average       string            `json:"average,omitempty"`
	}

	Dashboard struct {
		Currency           string           `json:"currency"`
		Summary            SummaryView      `json:"summary"`
		YearToDate         SummaryView      `json:"yearToDate"`
		ExpensesByCategory ChartSeries      `json:"expensesByCategory"`
		IncomeByCategory   ChartSeries      `json:"incomeByCategory"`
		Trend              TrendSeries      `json:"trend"`
		Budgets            []BudgetView     `json:"budgets"`
		Recent             []TransactionRow `json:"recent"`
	}
)

// recentLimit caps the transaction rows embedded in a dashboard.
const recentLimit = 5

type Presenter struct {
	format  Formatter
	palette Palette
}

func New(format Formatter, palette Palette) *Presenter {
	if palette == nil {
		palette = DefaultPalette{}
	}
	return &Presenter{format: format, palette: palette}
}

func (p *Presenter) Formatter() Formatter { return p.format }

func (p *Presenter) Row(t core.Transaction) TransactionRow {
	return TransactionRow{
		ID:            t.ID,
		Name:          t.Name,
		Date:          t.Date.String(),
		Kind:          string(t.Kind),
		Category:      t.Category,
		CategoryLabel: core.CategoryLabel(t.Category),
		Notes:         t.Notes,
		Amount:        p.format.FormatSigned(t.Signed()),
		Value:         p.format.Value(core.Cents(t.Signed())),
		Color:         p.palette.KindColor(t.Kind),
	}
}

func (p *Presenter) Rows(txs []core.Transaction) []TransactionRow {
	rows := make([]TransactionRow, len(txs))
	for i, t := range txs {
		rows[i] = p.Row(t)
	}
	return rows
}

func (p *Presenter) Summary(s core.Summary) SummaryView {
	return SummaryView{
		Income:          p.format.Format(s.Income),
		Expenses:        p.format.Format(s.Expenses),
		Balance:         p.format.Format(s.Balance),
		BalanceNegative: s.Balance.Cents < 0,
	}
}

// CategoryChart orders a ByCategory result largest first.
func (p *Presenter) CategoryChart(byCategory map[string]core.Money) ChartSeries {
	sorted := core.SortedCategoryAmounts(byCategory)
	s := ChartSeries{
		Labels: make([]string, len(sorted)),
		Values: make([]float64, len(sorted)),
		Colors: make([]string, len(sorted)),
	}
	for i, ca := range sorted {
		s.Labels[i] = core.CategoryLabel(ca.Name)
		s.Values[i] = p.format.Value(ca.Amount)
		s.Colors[i] = p.palette.CategoryColor(ca.Name)
	}
	return s
}

func (p *Presenter) Trend(months []core.MonthTotals) TrendSeries {
	s := TrendSeries{
		Labels:        make([]string, len(months)),
		Income:        make([]float64, len(months)),
		Expenses:      make([]float64, len(months)),
		IncomeColor:   p.palette.KindColor(core.Income),
		ExpensesColor: p.palette.KindColor(core.Expense),
	}
	for i, m := range months {
		s.Labels[i] = m.Label()
		s.Income[i] = p.format.Value(m.Income)
		s.Expenses[i] = p.format.Value(m.Expenses)
	}
	return s
}

// Budget renders b with its progress. average may be zero.
func (p *Presenter) Budget(b core.Budget, average core.Money) BudgetView {
	prog := b.Progress()
	v := BudgetView{
		ID:            b.ID,
		Category:      b.Category,
		CategoryLabel: core.CategoryLabel(b.Category),
		Period:        string(b.Period),
		Amount:        p.format.Format(b.Amount),
		Spent:         p.format.Format(b.Spent),
		Remaining:     p.format.Format(prog.Remaining),
		Percentage:    prog.Percentage,
		Status:        prog.Status,
		Color:         p.palette.StatusColor(prog.Status),
	}
	if !average.IsZero() {
		v.Average = p.format.Format(average)
	}
	return v
}

func (p *Presenter) Budgets(budgets []core.Budget, averages map[string]core.Money) []BudgetView {
	out := make([]BudgetView, len(budgets))
	for i, b := range budgets {
		out[i] = p.Budget(b, averages[b.Category])
	}
	return out
}

// Dashboard assembles every view from the owner's full transaction set and
// budgets whose spent has already been recomputed.
func (p *Presenter) Dashboard(txs []core.Transaction, budgets []core.Budget, months int, now time.Time) Dashboard {
	recent := core.FilterAndSort(txs, core.KindFilterAll, core.SortDateDesc)
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	return Dashboard{
		Currency:           p.format.Currency(),
		Summary:            p.Summary(core.Summarize(txs)),
		YearToDate:         p.Summary(core.YearToDate(txs, now)),
		ExpensesByCategory: p.CategoryChart(core.ByCategory(txs, core.Expense)),
		IncomeByCategory:   p.CategoryChart(core.ByCategory(txs, core.Income)),
		Trend:              p.Trend(core.MonthlyTrend(txs, months, now)),
		Budgets:            p.Budgets(budgets, core.CategoryAverage(txs)),
		Recent:             p.Rows(recent),
	}
}
