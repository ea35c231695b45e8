package http

import (
	"net/http"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/presenter"
)

type budgetListResponse struct {
	Budgets []core.Budget          `json:"budgets"`
	Views   []presenter.BudgetView `json:"views"`
}

// handleListBudgets serves GET /api/budgets?currency= with spent derived
// from the current transactions and the per-category average expense.
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	format, err := s.ledger.Formatter(r.URL.Query().Get("currency"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	budgets, err := s.ledger.ListBudgets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	averages, err := s.ledger.BudgetAverages(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, budgetListResponse{
		Budgets: nonNil(budgets),
		Views:   nonNil(presenter.New(format, nil).Budgets(budgets, averages)),
	})
}

// handleSetBudget serves PUT /api/budgets: one budget per category, the
// existing one is updated in place.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	period, err := core.ParsePeriod(req.Period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.ledger.SetBudget(r.Context(), sanitizeInput(req.Category), req.Amount, period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetPatchRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.ledger.UpdateBudget(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteBudget(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
