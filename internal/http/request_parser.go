// Package http exposes the ledger as a JSON API.
//
// This file holds request decoding helpers shared by the handlers.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"budgetbuddy/internal/core"
)

// transactionRequest is the create payload. Id, owner and creation time
// are assigned by the store and cannot be supplied.
type transactionRequest struct {
	Name     string     `json:"name"`
	Amount   core.Money `json:"amount"`
	Kind     string     `json:"kind"`
	Category string     `json:"category"`
	Date     core.Date  `json:"date"`
	Notes    string     `json:"notes"`
}

func (req transactionRequest) toTransaction() (core.Transaction, error) {
	kind, err := core.ParseKind(req.Kind)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Name:     sanitizeInput(req.Name),
		Amount:   req.Amount,
		Kind:     kind,
		Category: sanitizeInput(req.Category),
		Date:     req.Date,
		Notes:    sanitizeInput(req.Notes),
	}, nil
}

type transactionPatchRequest struct {
	Name     *string     `json:"name"`
	Amount   *core.Money `json:"amount"`
	Kind     *string     `json:"kind"`
	Category *string     `json:"category"`
	Date     *core.Date  `json:"date"`
	Notes    *string     `json:"notes"`
}

func (req transactionPatchRequest) toPatch() (core.TransactionPatch, error) {
	p := core.TransactionPatch{
		Name:     sanitizePtr(req.Name),
		Amount:   req.Amount,
		Category: sanitizePtr(req.Category),
		Date:     req.Date,
		Notes:    sanitizePtr(req.Notes),
	}
	if req.Kind != nil {
		kind, err := core.ParseKind(*req.Kind)
		if err != nil {
			return core.TransactionPatch{}, err
		}
		p.Kind = &kind
	}
	return p, nil
}

type budgetRequest struct {
	Category string     `json:"category"`
	Amount   core.Money `json:"amount"`
	Period   string     `json:"period"`
}

type budgetPatchRequest struct {
	Amount *core.Money `json:"amount"`
	Period *string     `json:"period"`
}

func (req budgetPatchRequest) toPatch() (core.BudgetPatch, error) {
	p := core.BudgetPatch{Amount: req.Amount}
	if req.Period != nil {
		period, err := core.ParsePeriod(*req.Period)
		if err != nil {
			return core.BudgetPatch{}, err
		}
		p.Period = &period
	}
	return p, nil
}

// decodeJSON reads one JSON object into dst. Unknown fields, trailing data
// and oversized bodies are validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var verr *core.ValidationError
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &verr):
			return err
		case errors.As(err, &maxErr):
			return core.NewValidationError("body", fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return core.NewValidationError("body", "request body is empty")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return core.NewValidationError("body", "malformed JSON")
		case errors.As(err, &typeErr):
			return core.NewValidationError(typeErr.Field, fmt.Sprintf("must be a %s", typeErr.Type))
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return core.NewValidationError(field, "unknown field")
		default:
			return core.NewValidationError("body", err.Error())
		}
	}
	if dec.More() {
		return core.NewValidationError("body", "request body must hold a single JSON object")
	}
	return nil
}

// parseMonths reads the trend length; absent means the service default.
func parseMonths(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("months"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, core.NewValidationError("months", fmt.Sprintf("invalid months %q", v))
	}
	return n, nil
}

func parseConfirm(query url.Values) bool {
	ok, err := strconv.ParseBool(strings.TrimSpace(query.Get("confirm")))
	return err == nil && ok
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
