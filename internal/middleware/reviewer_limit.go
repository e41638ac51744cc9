package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	reviewerMaxAttempts   = 5
	reviewerWindow        = time.Minute
	reviewerCleanupPeriod = 5 * time.Minute
)

type reviewerAttempt struct {
	count       int
	windowStart time.Time
}

// ReviewerAttemptLimiter is a fixed window on reviewer endpoints per client
// address, mounted in front of ReviewerAuth to slow down token guessing.
type ReviewerAttemptLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*reviewerAttempt
	lastCleanup time.Time
}

func NewReviewerAttemptLimiter() *ReviewerAttemptLimiter {
	return &ReviewerAttemptLimiter{
		attempts:    make(map[string]*reviewerAttempt),
		lastCleanup: time.Now(),
	}
}

func (l *ReviewerAttemptLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= reviewerCleanupPeriod {
		l.lastCleanup = now
		for key, a := range l.attempts {
			if now.Sub(a.windowStart) > reviewerWindow {
				delete(l.attempts, key)
			}
		}
	}

	a, ok := l.attempts[ip]
	if !ok || now.Sub(a.windowStart) > reviewerWindow {
		l.attempts[ip] = &reviewerAttempt{count: 1, windowStart: now}
		return true
	}
	if a.count >= reviewerMaxAttempts {
		return false
	}
	a.count++
	return true
}

func (l *ReviewerAttemptLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r.RemoteAddr, time.Now()) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many reviewer requests. Please try again later.",
				"code":  "RATE_LIMIT_EXCEEDED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
