package core

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Category is an entry of the fixed taxonomy.
type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

var incomeCategories = []Category{
	{Key: "salary", Label: "Salary", Kind: Income},
	{Key: "freelance", Label: "Freelance", Kind: Income},
	{Key: "investment", Label: "Investment", Kind: Income},
	{Key: "gift", Label: "Gift", Kind: Income},
	{Key: "other-income", Label: "Other Income", Kind: Income},
}

var expenseCategories = []Category{
	{Key: "food", Label: "Food & Dining", Kind: Expense},
	{Key: "transportation", Label: "Transportation", Kind: Expense},
	{Key: "housing", Label: "Housing & Rent", Kind: Expense},
	{Key: "utilities", Label: "Utilities", Kind: Expense},
	{Key: "entertainment", Label: "Entertainment", Kind: Expense},
	{Key: "shopping", Label: "Shopping", Kind: Expense},
	{Key: "health", Label: "Health & Medical", Kind: Expense},
	{Key: "education", Label: "Education", Kind: Expense},
	{Key: "personal", Label: "Personal Care", Kind: Expense},
	{Key: "travel", Label: "Travel", Kind: Expense},
	{Key: "debt", Label: "Debt Payment", Kind: Expense},
	{Key: "other-expense", Label: "Other Expense", Kind: Expense},
}

var categoryIndex = func() map[string]Category {
	m := make(map[string]Category, len(incomeCategories)+len(expenseCategories))
	for _, c := range incomeCategories {
		m[c.Key] = c
	}
	for _, c := range expenseCategories {
		m[c.Key] = c
	}
	return m
}()

// Categories returns the taxonomy for a kind in display order.
// An empty kind returns income categories followed by expense categories.
func Categories(kind Kind) []Category {
	switch kind {
	case Income:
		return append([]Category(nil), incomeCategories...)
	case Expense:
		return append([]Category(nil), expenseCategories...)
	default:
		out := make([]Category, 0, len(categoryIndex))
		out = append(out, incomeCategories...)
		return append(out, expenseCategories...)
	}
}

// CategoryLabel returns the display label, falling back to the key itself.
func CategoryLabel(key string) string {
	if c, ok := categoryIndex[key]; ok {
		return c.Label
	}
	return key
}

// ValidateCategory checks that key belongs to kind's taxonomy.
func ValidateCategory(kind Kind, key string) error {
	if strings.TrimSpace(key) == "" {
		return NewValidationError("category", "category is required")
	}
	c, ok := categoryIndex[key]
	if ok && c.Kind == kind {
		return nil
	}
	if ok {
		return NewValidationError("category", fmt.Sprintf("category %q is not valid for %s", key, kind))
	}
	msg := fmt.Sprintf("unknown category %q", key)
	if s := SuggestCategory(kind, key); s != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", s)
	}
	return NewValidationError("category", msg)
}

// SuggestCategory returns the closest category key of kind, or "" when
// nothing is reasonably close.
func SuggestCategory(kind Kind, input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}
	best, bestDist := "", -1
	for _, c := range Categories(kind) {
		d := levenshtein.ComputeDistance(input, c.Key)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c.Key, d
		}
	}
	if bestDist < 0 || bestDist > len(best)/2 {
		return ""
	}
	return best
}
