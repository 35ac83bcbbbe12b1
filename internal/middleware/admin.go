package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminAuth tags the request context as admin when the bearer token matches
// the configured admin API token. It never rejects: admin identity only
// widens what downstream gates allow, regular requests pass through as-is.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				auth := r.Header.Get("Authorization")
				if presented, ok := strings.CutPrefix(auth, "Bearer "); ok {
					if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
						ctx := context.WithValue(r.Context(), isAdminKey, true)
						r = r.WithContext(ctx)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsAdmin reports whether the request context carries admin identity.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(isAdminKey).(bool)
	return v
}
