package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fixdesk/hub/internal/api/response"
)

// Auth returns middleware that requires "Authorization: Bearer <apiKey>".
// An empty apiKey disables the check so the browser front end can call the API directly.
func Auth(apiKey string) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	expected := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.RespondUnauthorized(w, "Missing Authorization header")
				return
			}

			// Expected format: "Bearer <api-key>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				response.RespondUnauthorized(w, "Invalid Authorization header format. Expected: Bearer <api-key>")
				return
			}

			if subtle.ConstantTimeCompare([]byte(parts[1]), expected) != 1 {
				response.RespondUnauthorized(w, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
