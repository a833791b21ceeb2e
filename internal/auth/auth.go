// Package auth maps pre-shared bearer tokens to account/user scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/config"
)

// Authenticator resolves a bearer token to its scope. A nil or empty
// authenticator rejects everything; auth is never optional because every
// operation needs an account scope.
type Authenticator struct {
	tokens []config.TokenScope
}

// New builds an authenticator from configured token scopes.
func New(tokens []config.TokenScope) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Resolve returns the scope bound to the token. Comparison is constant
// time per configured token.
func (a *Authenticator) Resolve(token string) (activity.Scope, bool) {
	if a == nil || token == "" {
		return activity.Scope{}, false
	}
	for _, ts := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(ts.Token)) == 1 {
			return activity.Scope{AccountID: ts.AccountID, UserID: ts.UserID}, true
		}
	}
	return activity.Scope{}, false
}

type scopeKey struct{}

// WithScope stores the authenticated scope on the context.
func WithScope(ctx context.Context, scope activity.Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the authenticated scope from the context.
func ScopeFrom(ctx context.Context) (activity.Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(activity.Scope)
	return scope, ok
}

// BearerToken extracts the token from an Authorization header. Supports a
// token query parameter as a fallback for EventSource clients, which cannot
// set headers.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

// Middleware rejects requests without a resolvable token and stashes the
// scope on the request context. Exempt paths pass through unauthenticated.
func (a *Authenticator) Middleware(next http.Handler, exempt ...string) http.Handler {
	exemptSet := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		exemptSet[p] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := exemptSet[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		scope, ok := a.Resolve(BearerToken(r))
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid or missing token"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
	})
}
