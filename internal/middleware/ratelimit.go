package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// idleLimiter is how long a client's limiter survives without requests
const idleLimiter = 10 * time.Minute

// RateLimiter keeps one token bucket per client key
type RateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	limiters    map[string]*limiterEntry
	lastCleanup time.Time
	now         func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewRateLimiter allows perSecond requests per client with bursts of burst
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:       rate.Limit(perSecond),
		burst:       burst,
		limiters:    make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow takes a token for key
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > idleLimiter {
		for k, e := range rl.limiters {
			if now.Sub(e.lastUsed) > idleLimiter {
				delete(rl.limiters, k)
			}
		}
		rl.lastCleanup = now
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastUsed = now
	return entry.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked keys
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(keyFunc func(*http.Request) string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(keyFunc(r)) {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(float64(rl.limit), 'f', -1, 64))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller by forwarded address or remote host
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
