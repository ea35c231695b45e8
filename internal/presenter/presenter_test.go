package presenter

import (
	"errors"
	"testing"
	"time"

	"budgetbuddy/internal/core"
)

func mustFormatter(t *testing.T, currency string, rates core.Rates) Formatter {
	t.Helper()
	f, err := NewFormatter(currency, "USD", rates)
	if err != nil {
		t.Fatalf("NewFormatter(%q) failed: %v", currency, err)
	}
	return f
}

func TestFormatter(t *testing.T) {
	usd := mustFormatter(t, "usd", nil)
	eur := mustFormatter(t, "EUR", core.DefaultRates())
	eurNoRates := mustFormatter(t, "EUR", nil)

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"usd", usd.Format(core.Cents(450)), "$4.50"},
		{"negative", usd.Format(core.Cents(-199550)), "-$1995.50"},
		{"signed expense", usd.FormatSigned(-450), "-$4.50"},
		{"signed income", usd.FormatSigned(200000), "+$2000.00"},
		{"converted", eur.Format(core.Cents(10000)), "€92.00"},
		{"symbol only", eurNoRates.Format(core.Cents(10000)), "€100.00"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}

	if _, err := NewFormatter("XYZ", "USD", nil); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := NewFormatter("EUR", "USD", core.Rates{}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for missing rate, got %v", err)
	}
}

func TestPalette(t *testing.T) {
	p := DefaultPalette{}
	if p.CategoryColor("food") == "" || p.CategoryColor("food") != p.CategoryColor("food") {
		t.Fatalf("category colour must be stable")
	}
	if p.CategoryColor("unknown-thing") == "" {
		t.Fatalf("unknown categories still get a colour")
	}
	if p.StatusColor(core.StatusDanger) != expenseColor || p.StatusColor(core.StatusWarning) != warningColor {
		t.Fatalf("unexpected status colours")
	}
}

func TestPresenterViews(t *testing.T) {
	p := New(mustFormatter(t, "USD", nil), nil)
	txs := []core.Transaction{
		{ID: "1", Name: "Coffee", Amount: core.Cents(450), Kind: core.Expense, Category: "food", Date: core.NewDate(2024, 1, 10)},
		{ID: "2", Name: "Payday", Amount: core.Cents(200000), Kind: core.Income, Category: "salary", Date: core.NewDate(2024, 1, 15)},
		{ID: "3", Name: "Train", Amount: core.Cents(2000), Kind: core.Expense, Category: "travel", Date: core.NewDate(2024, 1, 12)},
	}

	row := p.Row(txs[0])
	if row.Amount != "-$4.50" || row.Value != -4.5 || row.CategoryLabel != "Food & Dining" || row.Color != expenseColor {
		t.Fatalf("unexpected row %+v", row)
	}

	sum := p.Summary(core.Summarize(txs[:2]))
	if sum.Income != "$2000.00" || sum.Expenses != "$4.50" || sum.Balance != "$1995.50" || sum.BalanceNegative {
		t.Fatalf("unexpected summary %+v", sum)
	}

	chart := p.CategoryChart(core.ByCategory(txs, core.Expense))
	if len(chart.Labels) != 2 || chart.Labels[0] != "Travel" || chart.Values[0] != 20 || len(chart.Colors) != 2 {
		t.Fatalf("unexpected chart %+v", chart)
	}

	now := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	d := p.Dashboard(txs, []core.Budget{
		{ID: "b", Category: "food", Amount: core.Cents(10000), Period: core.Monthly, Spent: core.Cents(12000)},
	}, 3, now)
	if d.Currency != "USD" || len(d.Trend.Labels) != 3 || d.Trend.Labels[2] != "Jan 2024" {
		t.Fatalf("unexpected dashboard %+v", d)
	}
	if d.Trend.Income[2] != 2000 || d.Trend.Expenses[2] != 24.5 {
		t.Fatalf("unexpected trend %+v", d.Trend)
	}
	if len(d.Recent) != 3 || d.Recent[0].ID != "2" {
		t.Fatalf("recent rows must be newest first, got %+v", d.Recent)
	}
	b := d.Budgets[0]
	if b.Percentage != 100 || b.Status != core.StatusDanger || b.Spent != "$120.00" || b.Remaining != "-$20.00" || b.Average != "$4.50" {
		t.Fatalf("unexpected budget view %+v", b)
	}
}

func TestPresenterEmptyInput(t *testing.T) {
	p := New(mustFormatter(t, "GBP", nil), DefaultPalette{})
	d := p.Dashboard(nil, nil, 3, time.Now())
	if d.Summary.Balance != "£0.00" || len(d.Trend.Labels) != 3 || len(d.Budgets) != 0 || len(d.Recent) != 0 {
		t.Fatalf("unexpected empty dashboard %+v", d)
	}
	for _, v := range d.Trend.Income {
		if v != 0 {
			t.Fatalf("expected zero trend, got %v", d.Trend.Income)
		}
	}
}
