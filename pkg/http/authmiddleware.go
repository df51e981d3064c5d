// Package http provides HTTP middleware for the query builder API.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/txn2/mcp-query-builder/pkg/auth"
)

// TokenFromRequest returns the Bearer token from the Authorization header,
// falling back to the X-API-Key header.
func TokenFromRequest(r *http.Request) string {
	return TokenFromHeader(r.Header)
}

// TokenFromHeader is TokenFromRequest for a bare header set, such as the
// one the MCP SDK attaches to streamable HTTP requests.
func TokenFromHeader(h http.Header) string {
	if after, ok := strings.CutPrefix(h.Get("Authorization"), "Bearer "); ok && after != "" {
		return after
	}
	return h.Get("X-API-Key")
}

// AuthMiddleware extracts authentication tokens from HTTP headers and adds
// them to the request context without authenticating them.
func AuthMiddleware(requireAuth bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)

			if requireAuth && token == "" {
				unauthorized(w, "missing authentication token")
				return
			}

			if token != "" {
				r = r.WithContext(auth.WithToken(r.Context(), token))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate returns middleware that resolves the request token with a
// and attaches the resulting user to the request context. Requests that
// cannot be authenticated are rejected with 401 before reaching next.
func Authenticate(a auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return AuthMiddleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uc, err := a.Authenticate(r.Context())
			if err != nil || uc == nil {
				slog.Debug("request authentication failed", "path", r.URL.Path, "error", err)
				unauthorized(w, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUserContext(r.Context(), uc)))
		}))
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
