package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/httputil"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
)

type rateLimitEntry struct {
	hits       []time.Time
	lastAccess time.Time
}

// RateLimiter is an in-process sliding window keyed by participant. Status
// polling is frequent and cheap to reject locally, so it does not go through
// redis.
type RateLimiter struct {
	mu          sync.Mutex
	store       map[string]*rateLimitEntry
	window      time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

func NewRateLimiter(window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		store:       make(map[string]*rateLimitEntry),
		window:      window,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, entry := range rl.store {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(rl.store, key)
		}
	}

	// Still over budget: shed an arbitrary fifth.
	if len(rl.store) > maxEntries {
		drop := len(rl.store) / 5
		for key := range rl.store {
			if drop == 0 {
				break
			}
			delete(rl.store, key)
			drop--
		}
	}
}

// Check records a hit for key and reports whether it fits under limit.
func (rl *RateLimiter) Check(key string, limit int) (allowed bool, remaining int, resetAt time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	entry, ok := rl.store[key]
	if !ok {
		entry = &rateLimitEntry{}
		rl.store[key] = entry
	}
	entry.lastAccess = now

	windowStart := now.Add(-rl.window)
	kept := entry.hits[:0]
	for _, ts := range entry.hits {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	entry.hits = kept

	resetAt = now.Add(rl.window)
	if len(entry.hits) > 0 {
		resetAt = entry.hits[0].Add(rl.window)
	}
	if len(entry.hits) >= limit {
		return false, 0, resetAt
	}

	entry.hits = append(entry.hits, now)
	return true, limit - len(entry.hits), resetAt
}

// ParticipantRateLimit throttles each authenticated participant. It must be
// mounted after ParticipantAuth.
type ParticipantRateLimit struct {
	limiter *RateLimiter
	limit   int
}

func NewParticipantRateLimit(limiter *RateLimiter, limit int) *ParticipantRateLimit {
	return &ParticipantRateLimit{limiter: limiter, limit: limit}
}

func (m *ParticipantRateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		participant := GetParticipant(r.Context())
		if participant == "" || m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := m.limiter.Check(participant, m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			log.Warn().Str("participant", participant).Msg("status poll rate limit exceeded")
			w.Header().Set("Retry-After", retryAfter(resetAt))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfter(resetAt time.Time) string {
	seconds := int(time.Until(resetAt).Seconds()) + 1
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
