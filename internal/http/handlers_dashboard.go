package http

import (
	"bytes"
	"net/http"
	"strconv"

	"budgetbuddy/internal/backup"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/session"
)

// handleDashboard serves GET /api/dashboard?months=&currency=.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	months, err := parseMonths(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	d, err := s.ledger.Dashboard(r.Context(), months, q.Get("currency"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleExport streams the owner's data as a downloadable JSON document.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ledger.Export(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Encode fully before writing headers so a failure still yields a clean 500.
	var buf bytes.Buffer
	if err := backup.Encode(&buf, doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+backup.FileName(s.now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type importResponse struct {
	Transactions int    `json:"transactions"`
	Budgets      int    `json:"budgets"`
	Currency     string `json:"currency"`
}

// handleImport serves POST /api/import?confirm=true. The body is an export
// document; the owner's data is replaced only when confirm is set.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	doc, err := backup.Decode(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Import(r.Context(), doc, parseConfirm(r.URL.Query())); err != nil {
		s.writeError(w, r, err)
		return
	}

	owner, _ := session.OwnerFrom(r.Context())
	log.FromContext(r.Context()).InfoContext(r.Context(), "Ledger imported",
		log.FieldOwner, owner,
		"transactions", len(doc.Transactions),
		"budgets", len(doc.Budgets))
	writeJSON(w, http.StatusOK, importResponse{
		Transactions: len(doc.Transactions),
		Budgets:      len(doc.Budgets),
		Currency:     doc.Currency,
	})
}
