// Package presenter turns aggregation output into view models: display
// rows, chart series and formatted summary strings. It owns no invariants.
package presenter

import (
	"fmt"
	"strings"

	"budgetbuddy/internal/core"
)

// Formatter renders money in a display currency. Amounts are stored in the
// base currency and converted only when a rate table is configured.
type Formatter struct {
	currency string
	base     string
	rates    core.Rates
}

// NewFormatter validates currency and base. A nil rates table disables
// conversion; the symbol still follows currency.
func NewFormatter(currency, base string, rates core.Rates) (Formatter, error) {
	cur, err := core.NormalizeCurrency(currency)
	if err != nil {
		return Formatter{}, err
	}
	b, err := core.NormalizeCurrency(base)
	if err != nil {
		return Formatter{}, err
	}
	if rates != nil {
		for _, code := range []string{cur, b} {
			if _, ok := rates[code]; !ok {
				return Formatter{}, core.NewValidationError("currency", fmt.Sprintf("no conversion rate for %s", code))
			}
		}
	}
	return Formatter{currency: cur, base: b, rates: rates}, nil
}

func (f Formatter) Currency() string { return f.currency }

func (f Formatter) Symbol() string { return core.CurrencySymbol(f.currency) }

// Convert expresses m in the display currency.
func (f Formatter) Convert(m core.Money) core.Money {
	if f.rates == nil {
		return m
	}
	out, err := f.rates.Convert(m, f.base, f.currency)
	if err != nil {
		return m
	}
	return out
}

// Format renders the magnitude of m with the currency symbol, e.g. "$4.50".
// Negative values get a leading minus.
func (f Formatter) Format(m core.Money) string {
	c := f.Convert(m)
	sign := ""
	if c.Cents < 0 {
		sign = "-"
		c.Cents = -c.Cents
	}
	return sign + f.Symbol() + c.String()
}

// FormatSigned renders a display-signed amount, e.g. "+$2000.00" or "-$4.50".
func (f Formatter) FormatSigned(cents int64) string {
	if cents < 0 {
		return f.Format(core.Cents(cents))
	}
	return "+" + f.Format(core.Cents(cents))
}

// Value returns the converted amount in major units for chart consumption.
func (f Formatter) Value(m core.Money) float64 {
	return f.Convert(m).Units()
}

var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#EC4899", "#06B6D4", "#F97316", "#84CC16", "#6366F1",
	"#14B8A6", "#D946EF", "#F43F5E", "#0EA5E9", "#22D3EE",
}

const (
	incomeColor  = "#10B981"
	expenseColor = "#EF4444"
	warningColor = "#F59E0B"
)

// Palette maps categories, kinds and budget states to colours.
type Palette interface {
	CategoryColor(category string) string
	KindColor(kind core.Kind) string
	StatusColor(status core.BudgetStatus) string
}

// DefaultPalette assigns each taxonomy entry a fixed colour by position.
type DefaultPalette struct{}

var _ Palette = DefaultPalette{}

func (DefaultPalette) CategoryColor(category string) string {
	for i, c := range core.Categories("") {
		if c.Key == category {
			return defaultColors[i%len(defaultColors)]
		}
	}
	var h int
	for _, r := range strings.ToLower(category) {
		h = (h*31 + int(r)) % len(defaultColors)
	}
	return defaultColors[h]
}

func (DefaultPalette) KindColor(kind core.Kind) string {
	if kind == core.Income {
		return incomeColor
	}
	return expenseColor
}

func (DefaultPalette) StatusColor(status core.BudgetStatus) string {
	switch status {
	case core.StatusDanger:
		return expenseColor
	case core.StatusWarning:
		return warningColor
	default:
		return incomeColor
	}
}
