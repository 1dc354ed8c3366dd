// Package api implements the agent's local REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware guards the agent API with a shared token. When enabled is
// false every request passes. Otherwise a request needs
// "Authorization: Bearer <token>"; event streams may pass the token as the
// access_token query parameter instead, since browsers' EventSource cannot
// set headers.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(requestToken(r)), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="onyx-agent"`)
				writeJSON(w, http.StatusUnauthorized, errResponse{Code: "unauthorized", Error: "missing or invalid agent token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
