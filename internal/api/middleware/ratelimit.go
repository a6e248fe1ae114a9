package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/api/problem"
	"golang.org/x/time/rate"
)

const (
	limiterTTL      = 15 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// RateLimiter throttles requests per client IP with a token bucket that
// refills perMinute tokens a minute and allows a burst of perMinute.
type RateLimiter struct {
	perMinute int
	env       string

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	now      func() time.Time

	stopOnce    sync.Once
	stopCleanup chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter starts a limiter. perMinute <= 0 disables limiting. Call
// Stop to end the background cleanup.
func NewRateLimiter(perMinute int, env string) *RateLimiter {
	l := &RateLimiter{
		perMinute:   perMinute,
		env:         env,
		limiters:    make(map[string]*limiterEntry),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if perMinute > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := l.limiter(clientKey(r))
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		if !limiter.Allow() {
			retryAfter := time.Minute / time.Duration(l.perMinute)
			w.Header().Set("Retry-After", strconv.Itoa(int(max(retryAfter, time.Second).Seconds())))
			problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", nil, l.env,
				problem.WithDetail("batch rate limit exceeded; retry later"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	if l.perMinute <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.limiters[key]; ok {
		entry.lastSeen = l.now()
		return entry.limiter
	}

	interval := time.Minute / time.Duration(l.perMinute)
	limiter := rate.NewLimiter(rate.Every(interval), l.perMinute)
	l.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: l.now()}
	return limiter
}

func (l *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup drops limiters idle for longer than limiterTTL.
func (l *RateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(l.limiters, key)
		}
	}
}

// Stop ends the background cleanup. It is safe to call more than once.
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

// clientKey is the remote IP of the connection. Forwarding headers are not
// trusted.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
