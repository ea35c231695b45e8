// Package backup encodes and decodes the portable export document
// {transactions, budgets, currency}.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"budgetbuddy/internal/core"
)

// maxDocumentSize bounds what Decode will read.
const maxDocumentSize = 10 << 20

type Document struct {
	Transactions []core.Transaction `json:"transactions"`
	Budgets      []core.Budget      `json:"budgets"`
	Currency     string             `json:"currency"`
}

// FileName returns the conventional export file name for the day of now.
func FileName(now time.Time) string {
	return fmt.Sprintf("budgetbuddy_export_%s.json", now.Format(core.DateLayout))
}

// Encode writes doc as two-space indented JSON. Nil slices encode as [].
func Encode(w io.Writer, doc Document) error {
	if doc.Transactions == nil {
		doc.Transactions = []core.Transaction{}
	}
	if doc.Budgets == nil {
		doc.Budgets = []core.Budget{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// Decode reads and validates a document. Missing or non-array
// transactions/budgets and any invalid record fail with a validation error.
// A missing currency falls back to core.DefaultCurrency.
func Decode(r io.Reader) (Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return Document{}, fmt.Errorf("read backup: %w", err)
	}
	if len(data) > maxDocumentSize {
		return Document{}, core.NewValidationError("file", "backup document too large")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, core.NewValidationError("file", "not a valid JSON object")
	}
	for _, field := range []string{"transactions", "budgets"} {
		v, ok := raw[field]
		if !ok || !isArray(v) {
			return Document{}, core.NewValidationError(field, "missing or not an array")
		}
	}

	var doc Document
	if err := json.Unmarshal(raw["transactions"], &doc.Transactions); err != nil {
		return Document{}, recordError("transactions", err)
	}
	if err := json.Unmarshal(raw["budgets"], &doc.Budgets); err != nil {
		return Document{}, recordError("budgets", err)
	}

	doc.Currency = core.DefaultCurrency
	if v, ok := raw["currency"]; ok {
		var code string
		if err := json.Unmarshal(v, &code); err != nil {
			return Document{}, core.NewValidationError("currency", "must be a string")
		}
		if code != "" {
			if doc.Currency, err = core.NormalizeCurrency(code); err != nil {
				return Document{}, err
			}
		}
	}

	for i, t := range doc.Transactions {
		if err := t.Validate(); err != nil {
			return Document{}, fmt.Errorf("transactions[%d]: %w", i, err)
		}
	}
	seen := make(map[string]bool, len(doc.Budgets))
	for i, b := range doc.Budgets {
		if err := b.Validate(); err != nil {
			return Document{}, fmt.Errorf("budgets[%d]: %w", i, err)
		}
		if seen[b.Category] {
			return Document{}, core.NewValidationError("budgets", fmt.Sprintf("duplicate budget for %s", b.Category))
		}
		seen[b.Category] = true
	}
	return doc, nil
}

func isArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}

// recordError keeps validation errors raised while decoding a field and
// wraps everything else as one.
func recordError(field string, err error) error {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%s: %w", field, err)
	}
	return core.NewValidationError(field, err.Error())
}
