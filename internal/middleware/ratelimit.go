package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"ecoportal/internal/pkg/metrics"
	"ecoportal/internal/pkg/response"
)

// FixedWindowLimiter allows limit requests per key in each window. The
// window starts with the first request from a key.
type FixedWindowLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	windows   map[string]*fixedWindow
	lastSweep time.Time
	now       func() time.Time
}

type fixedWindow struct {
	start time.Time
	count int
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

// Allow counts one request for key and reports whether it fits in the
// current window, how many remain and when the window resets.
func (l *FixedWindowLimiter) Allow(key string) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &fixedWindow{start: now}
		l.windows[key] = w
	}
	reset := w.start.Add(l.window)
	if w.count >= l.limit {
		return false, 0, reset
	}
	w.count++
	return true, l.limit - w.count, reset
}

// sweep drops expired windows at most once per window length, so idle
// clients do not accumulate.
func (l *FixedWindowLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}

// RateLimit rejects requests from a client IP once its window is used up.
func RateLimit(name string, l *FixedWindowLimiter, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, reset := l.Allow(c.ClientIP())

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			metrics.IncRateLimited(name)
			h.Set("Retry-After", strconv.Itoa(int(time.Until(reset).Seconds())+1))
			response.Abort(c, http.StatusTooManyRequests, message)
			return
		}
		c.Next()
	}
}
