// Package middleware provides the gateway's admission chain: bearer-token
// auth, a per-peer sliding-window rate limit, and request observation.
package middleware

import (
	"net/http"
	"strings"

	"github.com/Hardik94/shabdabhav/internal/apierr"
)

// Auth gates requests on the configured token set. An empty set disables
// authentication entirely.
func Auth(tokens []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		allowed[tok] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(allowed) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" || !allowed[token] {
			apierr.WriteJSON(w, apierr.New(apierr.Unauthorized, "Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
