package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/response"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter hands out one token bucket per key.
type UserRateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	r        rate.Limit
	b        int
	idleTTL  time.Duration
	now      func() time.Time
}

func NewUserRateLimiter(r rate.Limit, b int) *UserRateLimiter {
	return &UserRateLimiter{
		limiters: make(map[string]*limiterEntry),
		r:        r,
		b:        b,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

func (l *UserRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, exists := l.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Prune drops buckets idle for longer than the idle TTL.
func (l *UserRateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	pruned := 0
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			pruned++
		}
	}
	return pruned
}

// RateLimitByUser limits authenticated callers by user id. Requests without
// an identity are passed through; AuthRequired rejects them.
func RateLimitByUser(limiter *UserRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := ActorFromContext(r.Context())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.GetLimiter(actor.UserID).Allow() {
				response.TooManyRequests(w, "Too many requests, please slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
