package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/vairify/vaicheck-server-go/internal/audit"
	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/httputil"
	"github.com/vairify/vaicheck-server-go/internal/redis"
)

// WindowLimiter is satisfied by redis.RateLimiter.
type WindowLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

// IPRateLimit throttles join and biometric submissions per client address
// across all server instances.
type IPRateLimit struct {
	limiter WindowLimiter
	limit   int
	window  time.Duration
	scope   string
}

func NewIPRateLimit(limiter WindowLimiter, limit int, window time.Duration, scope string) *IPRateLimit {
	return &IPRateLimit{
		limiter: limiter,
		limit:   limit,
		window:  window,
		scope:   scope,
	}
}

func (m *IPRateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, resetAt := m.limiter.CheckLimit(r.Context(), redis.IPLimitKey(m.scope, r.RemoteAddr), m.limit, m.window)
		if !allowed {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceeded,
				UserID:  GetParticipant(r.Context()),
				Details: map[string]interface{}{"scope": m.scope},
			})
			w.Header().Set("Retry-After", retryAfter(resetAt))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
