package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/session"
)

func TestMiddleware(t *testing.T) {
	manager := session.NewJWTManager("test-secret-key-0123456789", "budgetbuddy", time.Hour)
	valid, err := manager.Generate("alice")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	other := session.NewJWTManager("another-secret-key-012345", "budgetbuddy", time.Hour)
	forged, err := other.Generate("mallory")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var gotErr error
	h := Middleware(manager, func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := session.OwnerFrom(r.Context())
		if err != nil {
			t.Errorf("owner missing downstream: %v", err)
		}
		w.Write([]byte(owner))
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, "alice"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "alice"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"forged signature", "Bearer " + forged, http.StatusUnauthorized, ""},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotErr = nil
			r := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if !errors.Is(gotErr, core.ErrUnauthenticated) {
					t.Errorf("error %v must wrap ErrUnauthenticated", gotErr)
				}
				if rec.Header().Get("WWW-Authenticate") == "" {
					t.Error("WWW-Authenticate header missing")
				}
			}
		})
	}
}

func TestMiddlewareDefaultError(t *testing.T) {
	h := Middleware(session.NewJWTManager("test-secret-key-0123456789", "", time.Hour), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run")
		}),
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
