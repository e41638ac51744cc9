package middleware

import (
	"net/http"
)

// SecurityHeaders marks every response as an uncacheable JSON API response.
// Session status must always come from the latest committed write, so no
// intermediary may serve a stored copy.
type SecurityHeaders struct {
	isProduction bool
}

func NewSecurityHeaders(isProduction bool) *SecurityHeaders {
	return &SecurityHeaders{isProduction: isProduction}
}

func (m *SecurityHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")

		if m.isProduction {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
