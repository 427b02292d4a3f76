// Package middleware holds the HTTP middleware for the AgentDeck API:
// request logging, tracing, and the authentication gate built on the
// auth provider chain.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/agentdeck/agentdeck/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// GetIdentity returns the authenticated caller, or nil.
func GetIdentity(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

// GetUserID returns the authenticated user's id, or "".
func GetUserID(ctx context.Context) string {
	if id := GetIdentity(ctx); id != nil {
		return id.UserID
	}
	return ""
}

// WithIdentity stores an identity on the context, for tests.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Authenticate runs the provider chain and rejects requests it cannot
// identify. Invalid and missing credentials both get 401 with a JSON
// error envelope.
func Authenticate(chain *auth.ProviderChain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := chain.Authenticate(r.Context(), r)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}
			if identity == nil {
				unauthorized(w, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
