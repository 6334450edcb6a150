package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the content management endpoints. The feed and profile
// surface stays open; only writes that shape everyone's ranking require the
// token.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userIDHeader identifies the requesting user. The platform gateway
// authenticates users upstream and injects this header.
const userIDHeader = "X-User-ID"

func requestUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userIDHeader))
}
