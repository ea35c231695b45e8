package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetbuddy/internal/backup"
	"budgetbuddy/internal/cache"
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/metrics"
	"budgetbuddy/internal/presenter"
	"budgetbuddy/internal/services"
	"budgetbuddy/internal/session"
	"budgetbuddy/internal/storage/memory"
)

const testSecret = "http-test-secret-0123456789"

type testServer struct {
	srv     *Server
	tokens  *session.JWTManager
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, rateLimit int) testServer {
	t.Helper()
	quiet := log.New(log.Config{Output: io.Discard})
	store := memory.New()
	ledger, err := services.NewLedgerService(store, services.Options{
		Dashboards: cache.NewLRUCache[presenter.Dashboard](16, time.Minute),
		Logger:     quiet,
		Now:        func() time.Time { return time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewLedgerService failed: %v", err)
	}

	tokens := session.NewJWTManager(testSecret, "budgetbuddy", time.Hour)
	m := metrics.New()
	srv, err := NewServer(Config{Addr: ":0", RateLimitPerMinute: rateLimit}, Deps{
		Ledger:   ledger,
		Verifier: tokens,
		Ready:    store,
		Metrics:  m,
		Logger:   quiet,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return testServer{srv: srv, tokens: tokens, metrics: m}
}

func (ts testServer) do(t *testing.T, owner, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if owner != "" {
		token, err := ts.tokens.Generate(owner)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, 60)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := ts.do(t, "", http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rec.Code)
		}
	}
	if rec := ts.do(t, "", http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rec.Code)
	}
}

func TestAPIRequiresSession(t *testing.T) {
	ts := newTestServer(t, 60)
	rec := ts.do(t, "", http.MethodGet, "/api/transactions", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if body.Error.Kind != core.KindUnauthenticated {
		t.Fatalf("kind = %q", body.Error.Kind)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t, 60)

	rec := ts.do(t, "alice", http.MethodPost, "/api/transactions", map[string]any{
		"name": "Coffee", "amount": 4.50, "kind": "expense", "category": "food", "date": "2024-01-10",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	coffee := decode[core.Transaction](t, rec)
	if coffee.ID == "" || coffee.Amount.Cents != 450 || coffee.OwnerID != "alice" {
		t.Fatalf("unexpected created record: %+v", coffee)
	}
	if got := rec.Header().Get("Location"); got != "/api/transactions/"+coffee.ID {
		t.Errorf("Location = %q", got)
	}

	rec = ts.do(t, "alice", http.MethodPost, "/api/transactions", map[string]any{
		"name": "Payday", "amount": "2000", "kind": "income", "category": "salary", "date": "2024-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, "alice", http.MethodGet, "/api/transactions?sort=amount-asc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	list := decode[transactionListResponse](t, rec)
	if list.Count != 2 || list.Transactions[0].Name != "Coffee" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list.Summary.Income != "$2000.00" || list.Summary.Expenses != "$4.50" || list.Summary.Balance != "$1995.50" {
		t.Fatalf("unexpected summary: %+v", list.Summary)
	}

	rec = ts.do(t, "alice", http.MethodGet, "/api/transactions?kind=income", nil)
	if list := decode[transactionListResponse](t, rec); list.Count != 1 || list.Rows[0].Name != "Payday" {
		t.Fatalf("income filter: %+v", list)
	}

	rec = ts.do(t, "alice", http.MethodPatch, "/api/transactions/"+coffee.ID, map[string]any{"amount": "5.25"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[core.Transaction](t, rec); got.Amount.Cents != 525 || got.Name != "Coffee" {
		t.Fatalf("patched record: %+v", got)
	}

	if rec := ts.do(t, "bob", http.MethodGet, "/api/transactions/"+coffee.ID, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign get status=%d", rec.Code)
	}
	if rec := ts.do(t, "bob", http.MethodDelete, "/api/transactions/"+coffee.ID, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete status=%d", rec.Code)
	}

	if rec := ts.do(t, "alice", http.MethodDelete, "/api/transactions/"+coffee.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
	rec = ts.do(t, "alice", http.MethodGet, "/api/transactions/"+coffee.ID, nil)
	if rec.Code != http.StatusNotFound || decode[errorBody](t, rec).Error.Kind != core.KindNotFound {
		t.Fatalf("get after delete status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	ts := newTestServer(t, 1000)
	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"malformed json", `{"name":`, "body"},
		{"empty body", "", "body"},
		{"unknown field", `{"name":"x","owner":"mallory"}`, "owner"},
		{"zero amount", map[string]any{"name": "x", "amount": 0, "kind": "expense", "category": "food", "date": "2024-01-10"}, "amount"},
		{"missing kind", map[string]any{"name": "x", "amount": 1, "category": "food", "date": "2024-01-10"}, "kind"},
		{"bad date", map[string]any{"name": "x", "amount": 1, "kind": "expense", "category": "food", "date": "10/01/2024"}, "date"},
		{"wrong category for kind", map[string]any{"name": "x", "amount": 1, "kind": "income", "category": "food", "date": "2024-01-10"}, "category"},
		{"missing name", map[string]any{"name": "  ", "amount": 1, "kind": "expense", "category": "food", "date": "2024-01-10"}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, "alice", http.MethodPost, "/api/transactions", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
			body := decode[errorBody](t, rec)
			if body.Error.Kind != core.KindValidation || body.Error.Field != tt.field {
				t.Fatalf("error = %+v, want field %q", body.Error, tt.field)
			}
		})
	}

	rec := ts.do(t, "alice", http.MethodGet, "/api/transactions", nil)
	if list := decode[transactionListResponse](t, rec); list.Count != 0 {
		t.Fatalf("rejected input created %d records", list.Count)
	}
}

func TestBudgetsFollowTransactions(t *testing.T) {
	ts := newTestServer(t, 1000)

	rec := ts.do(t, "alice", http.MethodPut, "/api/budgets", map[string]any{"category": "food", "amount": 100, "period": "monthly"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set budget status=%d body=%s", rec.Code, rec.Body.String())
	}
	budget := decode[core.Budget](t, rec)

	for _, amount := range []string{"30", "90"} {
		rec := ts.do(t, "alice", http.MethodPost, "/api/transactions", map[string]any{
			"name": "Groceries", "amount": amount, "kind": "expense", "category": "food", "date": "2024-01-12",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create status=%d", rec.Code)
		}
	}

	rec = ts.do(t, "alice", http.MethodGet, "/api/budgets", nil)
	list := decode[budgetListResponse](t, rec)
	if len(list.Budgets) != 1 || list.Budgets[0].Spent.Cents != 12000 {
		t.Fatalf("budgets = %+v", list.Budgets)
	}
	view := list.Views[0]
	if view.Percentage != 100 || view.Status != core.StatusDanger || view.Average != "$60.00" {
		t.Fatalf("view = %+v", view)
	}

	rec = ts.do(t, "alice", http.MethodPut, "/api/budgets", map[string]any{"category": "food", "amount": 200, "period": "yearly"})
	if got := decode[core.Budget](t, rec); got.ID != budget.ID || got.Spent.Cents != 12000 || got.Period != core.Yearly {
		t.Fatalf("upsert = %+v", got)
	}

	rec = ts.do(t, "alice", http.MethodPatch, "/api/budgets/"+budget.ID, map[string]any{"period": "fortnightly"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad period status=%d", rec.Code)
	}
	rec = ts.do(t, "alice", http.MethodPatch, "/api/budgets/"+budget.ID, map[string]any{"amount": 150})
	if got := decode[core.Budget](t, rec); rec.Code != http.StatusOK || got.Amount.Cents != 15000 {
		t.Fatalf("patch status=%d budget=%+v", rec.Code, got)
	}

	if rec := ts.do(t, "bob", http.MethodDelete, "/api/budgets/"+budget.ID, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete status=%d", rec.Code)
	}
	if rec := ts.do(t, "alice", http.MethodDelete, "/api/budgets/"+budget.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, 1000)
	ts.do(t, "alice", http.MethodPost, "/api/transactions", map[string]any{
		"name": "Payday", "amount": 2000, "kind": "income", "category": "salary", "date": "2024-01-15",
	})

	rec := ts.do(t, "alice", http.MethodGet, "/api/dashboard?months=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	d := decode[presenter.Dashboard](t, rec)
	if d.Summary.Income != "$2000.00" || len(d.Trend.Labels) != 3 {
		t.Fatalf("dashboard = %+v", d)
	}

	for _, q := range []string{"months=abc", "months=0", "months=61", "currency=XYZ"} {
		rec := ts.do(t, "alice", http.MethodGet, "/api/dashboard?"+q, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status=%d", q, rec.Code)
		}
	}
}

func TestExportImport(t *testing.T) {
	ts := newTestServer(t, 1000)
	ts.srv.now = func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) }

	ts.do(t, "alice", http.MethodPost, "/api/transactions", map[string]any{
		"name": "Coffee", "amount": 4.5, "kind": "expense", "category": "food", "date": "2024-01-10",
	})
	ts.do(t, "alice", http.MethodPut, "/api/budgets", map[string]any{"category": "food", "amount": 50, "period": "monthly"})

	rec := ts.do(t, "alice", http.MethodGet, "/api/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status=%d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="budgetbuddy_export_2024-03-05.json"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	exported := rec.Body.String()
	doc, err := backup.Decode(strings.NewReader(exported))
	if err != nil {
		t.Fatalf("exported document does not decode: %v", err)
	}
	if len(doc.Transactions) != 1 || len(doc.Budgets) != 1 || doc.Budgets[0].Spent.Cents != 450 {
		t.Fatalf("exported doc = %+v", doc)
	}

	rec = ts.do(t, "bob", http.MethodPost, "/api/import", exported)
	if rec.Code != http.StatusUnprocessableEntity || decode[errorBody](t, rec).Error.Field != "confirm" {
		t.Fatalf("unconfirmed import status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := ts.do(t, "bob", http.MethodPost, "/api/import?confirm=true", `{"transactions": {}}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed import status=%d", rec.Code)
	}

	rec = ts.do(t, "bob", http.MethodPost, "/api/import?confirm=true", exported)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[importResponse](t, rec); got.Transactions != 1 || got.Budgets != 1 {
		t.Fatalf("import response = %+v", got)
	}
	rec = ts.do(t, "bob", http.MethodGet, "/api/transactions", nil)
	list := decode[transactionListResponse](t, rec)
	if list.Count != 1 || list.Transactions[0].OwnerID != "bob" {
		t.Fatalf("bob's ledger after import: %+v", list.Transactions)
	}
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t, 60)
	rec := ts.do(t, "alice", http.MethodGet, "/api/categories", nil)
	got := decode[categoriesResponse](t, rec)
	if len(got.Income) == 0 || len(got.Expense) == 0 || got.Expense[0].Label == "" {
		t.Fatalf("categories = %+v", got)
	}
}

func TestMutatingRoutesAreRateLimited(t *testing.T) {
	ts := newTestServer(t, 2)
	body := map[string]any{"name": "x", "amount": 1, "kind": "expense", "category": "food", "date": "2024-01-10"}
	for i := 0; i < 2; i++ {
		if rec := ts.do(t, "alice", http.MethodPost, "/api/transactions", body); rec.Code != http.StatusCreated {
			t.Fatalf("request %d status=%d", i, rec.Code)
		}
	}
	rec := ts.do(t, "alice", http.MethodPost, "/api/transactions", body)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("status=%d Retry-After=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if rec := ts.do(t, "alice", http.MethodGet, "/api/transactions", nil); rec.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, status=%d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, 60)
	if rec := ts.do(t, "alice", http.MethodPut, "/api/transactions", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"unauthenticated", core.ErrUnauthenticated, http.StatusUnauthorized, core.KindUnauthenticated},
		{"forbidden wrapped", errors.Join(errors.New("ctx"), core.ErrForbidden), http.StatusForbidden, core.KindForbidden},
		{"not found", core.ErrNotFound, http.StatusNotFound, core.KindNotFound},
		{"validation", core.NewValidationError("amount", "too small"), http.StatusUnprocessableEntity, core.KindValidation},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, core.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			if status != tt.status || body.Error.Kind != tt.kind {
				t.Fatalf("got %d/%q, want %d/%q", status, body.Error.Kind, tt.status, tt.kind)
			}
			if tt.kind == core.KindInternal && strings.Contains(body.Error.Message, "disk") {
				t.Fatal("internal error details leaked")
			}
		})
	}
}

func TestNewServerRequiresDeps(t *testing.T) {
	if _, err := NewServer(Config{}, Deps{}); err == nil {
		t.Fatal("expected error without ledger")
	}
}
