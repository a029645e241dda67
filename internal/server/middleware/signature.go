package middleware

import (
	"crypto/subtle"
	"net/http"
)

// WebhookSecret returns middleware that gates webhook endpoints on a shared
// secret carried in the X-Webhook-Secret header. The comparison is constant
// time. If secret is empty, the middleware passes all requests through
// (disabled).
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-Webhook-Secret")
			if provided == "" {
				writeUnauthorized(w, "missing webhook secret")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				writeUnauthorized(w, "invalid webhook secret")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
