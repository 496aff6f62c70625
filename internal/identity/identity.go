// Package identity extracts the caller identity from inbound requests.
// Authentication itself lives in front of this service; requests arrive with
// a trusted X-User-ID header.
package identity

import (
	"context"
	"net/http"
)

// Header carries the authenticated user id.
const Header = "X-User-ID"

type contextKey struct{}

// Middleware requires the identity header and stores it in the request
// context. Requests without it are rejected before any handler runs.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(Header)
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"X-User-ID header is required"}`))
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the user id stored by Middleware, or "" if absent.
func FromContext(ctx context.Context) string {
	userID, _ := ctx.Value(contextKey{}).(string)
	return userID
}
