package core

import (
	"errors"
	"strings"
	"testing"
)

func TestCurrencySymbol(t *testing.T) {
	cases := map[string]string{"USD": "$", "eur": "€", "GBP": "£", "JPY": "¥", "INR": "₹", "CHF": "CHF"}
	for code, want := range cases {
		if got := CurrencySymbol(code); got != want {
			t.Errorf("CurrencySymbol(%q) = %q, want %q", code, got, want)
		}
	}
	if _, err := NormalizeCurrency("chf"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if c, err := NormalizeCurrency(" eur "); err != nil || c != "EUR" {
		t.Fatalf("NormalizeCurrency = %q, %v", c, err)
	}
}

func TestRatesConvert(t *testing.T) {
	r := DefaultRates()
	cases := []struct {
		from, to string
		in, want int64
	}{
		{"USD", "USD", 1234, 1234},
		{"USD", "EUR", 10000, 9200},
		{"EUR", "USD", 9200, 10000},
		{"USD", "JPY", 100, 13450},
		{"GBP", "INR", 100, 10313}, // 100 * 82.50 / 0.80 = 10312.5
	}
	for _, tc := range cases {
		got, err := r.Convert(Cents(tc.in), tc.from, tc.to)
		if err != nil || got.Cents != tc.want {
			t.Errorf("%s->%s %d: got %d err=%v, want %d", tc.from, tc.to, tc.in, got.Cents, err, tc.want)
		}
	}
	if _, err := r.Convert(Cents(1), "USD", "XYZ"); err == nil {
		t.Fatalf("expected error for unknown currency")
	}
}

func TestValidateCategorySuggestion(t *testing.T) {
	err := ValidateCategory(Expense, "fod")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), `did you mean "food"`) {
		t.Fatalf("expected suggestion, got %q", err.Error())
	}
	if s := SuggestCategory(Income, "salery"); s != "salary" {
		t.Fatalf("SuggestCategory = %q", s)
	}
	if s := SuggestCategory(Expense, "zzzzzzzzzzzzzz"); s != "" {
		t.Fatalf("expected no suggestion, got %q", s)
	}
	if err := ValidateCategory(Income, "other-income"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestCategories(t *testing.T) {
	if n := len(Categories(Income)); n != 5 {
		t.Fatalf("income categories = %d", n)
	}
	if n := len(Categories(Expense)); n != 12 {
		t.Fatalf("expense categories = %d", n)
	}
	if n := len(Categories("")); n != 17 {
		t.Fatalf("all categories = %d", n)
	}
	if CategoryLabel("food") != "Food & Dining" || CategoryLabel("nope") != "nope" {
		t.Fatalf("unexpected labels")
	}
}
