package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
}

// Rates maps a currency code to its value relative to a common base.
type Rates map[string]decimal.Decimal

// DefaultRates are expressed relative to USD.
func DefaultRates() Rates {
	return Rates{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.92"),
		"GBP": decimal.RequireFromString("0.80"),
		"JPY": decimal.RequireFromString("134.50"),
		"INR": decimal.RequireFromString("82.50"),
	}
}

// NormalizeCurrency upper-cases code and checks it against the symbol table.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := currencySymbols[c]; !ok {
		return "", NewValidationError("currency", fmt.Sprintf("unsupported currency %q", code))
	}
	return c, nil
}

// CurrencySymbol returns the symbol for code, or the code itself when unknown.
func CurrencySymbol(code string) string {
	if s, ok := currencySymbols[strings.ToUpper(code)]; ok {
		return s
	}
	return code
}

func SupportedCurrencies() []string {
	return []string{"USD", "EUR", "GBP", "JPY", "INR"}
}

// Convert returns m expressed in target, rounded half-up to cents.
// Identical codes return m unchanged.
func (r Rates) Convert(m Money, from, to string) (Money, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return m, nil
	}
	fr, ok := r[from]
	if !ok || fr.IsZero() {
		return Money{}, NewValidationError("currency", fmt.Sprintf("no rate for %q", from))
	}
	tr, ok := r[to]
	if !ok {
		return Money{}, NewValidationError("currency", fmt.Sprintf("no rate for %q", to))
	}
	v := decimal.NewFromInt(m.Cents).Mul(tr).Div(fr).Round(0)
	return Money{Cents: v.IntPart()}, nil
}
