// Package auth establishes the session owner from a bearer token.
package auth

import (
	"fmt"
	"net/http"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/session"
)

// Middleware verifies the Authorization header and stores the owner in the
// request context. Failures wrap core.ErrUnauthenticated and are written by
// onError, or as a bare 401 when onError is nil.
func Middleware(verifier session.Verifier, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := authenticate(verifier, r)
			if err != nil {
				log.FromContext(r.Context()).WarnContext(r.Context(), "Authentication failed",
					log.FieldPath, r.URL.Path,
					log.FieldError, err.Error())
				w.Header().Set("WWW-Authenticate", `Bearer realm="budgetbuddy"`)
				onError(w, r, err)
				return
			}

			ctx := session.WithOwner(r.Context(), owner)
			ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldOwner, owner))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(verifier session.Verifier, r *http.Request) (string, error) {
	token, err := session.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	owner, err := verifier.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	if owner == "" {
		return "", fmt.Errorf("%w: token names no owner", core.ErrUnauthenticated)
	}
	return owner, nil
}
