package http

import (
	"net/http"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/presenter"
)

type transactionListResponse struct {
	Transactions []core.Transaction         `json:"transactions"`
	Rows         []presenter.TransactionRow `json:"rows"`
	Summary      presenter.SummaryView      `json:"summary"`
	Count        int                        `json:"count"`
}

// handleListTransactions serves GET /api/transactions?kind=&sort=&currency=.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := s.ledger.Formatter(q.Get("currency"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	txs, err := s.ledger.ListTransactions(r.Context(), core.KindFilter(q.Get("kind")), core.SortKey(q.Get("sort")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := presenter.New(format, nil)
	writeJSON(w, http.StatusOK, transactionListResponse{
		Transactions: nonNil(txs),
		Rows:         nonNil(p.Rows(txs)),
		Summary:      p.Summary(core.Summarize(txs)),
		Count:        len(txs),
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := req.toTransaction()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/transactions/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionPatchRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.ledger.UpdateTransaction(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
