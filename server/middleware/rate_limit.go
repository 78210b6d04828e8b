package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-key rate limiting.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*limiterEntry
	every  rate.Limit
	burst  int
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter allowing every events per second
// with the given burst. Zero values fall back to 10/s with a burst of 20.
func NewRateLimiter(every rate.Limit, burst int) *RateLimiter {
	if every <= 0 {
		every = rate.Every(time.Second / 10)
	}
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		limits: make(map[string]*limiterEntry),
		every:  every,
		burst:  burst,
		now:    time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, ok := rl.limits[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(rl.every, rl.burst)
	rl.limits[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

// Cleanup drops limiters not used for longer than idle and returns how many
// were removed. A dropped key starts again with a full burst.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, entry := range rl.limits {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limits, key)
			removed++
		}
	}
	return removed
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Cleanup(idle); n > 0 {
				slog.Debug("rate limiter cleanup", slog.Int("removed", n))
			}
		}
	}
}

// KeyFunc picks the limiter key for a request.
type KeyFunc func(c echo.Context) string

// Middleware rejects requests over the limit with 429. An empty key falls
// back to the client IP.
func (rl *RateLimiter) Middleware(keyFn KeyFunc, onLimit echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ""
			if keyFn != nil {
				key = keyFn(c)
			}
			if key == "" {
				key = "ip:" + c.RealIP()
			}
			if !rl.Allow(key) {
				if onLimit != nil {
					return onLimit(c)
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
