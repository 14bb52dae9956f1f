package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ── Fixed-window limiter ─────────────────────────────────────────────────────

// windowEntry tracks requests per key within the current window.
type windowEntry struct {
	count     int
	windowEnd time.Time
}

type windowLimiter struct {
	name    string
	limit   int
	window  time.Duration
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

func newWindowLimiter(name string, limit int, window time.Duration) *windowLimiter {
	l := &windowLimiter{
		name:    name,
		limit:   limit,
		window:  window,
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
	limitersMu.Lock()
	limiters = append(limiters, l)
	limitersMu.Unlock()
	return l
}

// allow counts one request for key and reports whether it is within the limit,
// plus the end of the current window.
func (l *windowLimiter) allow(key string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.windowEnd) {
		e = &windowEntry{windowEnd: now.Add(l.window)}
		l.entries[key] = e
	}
	e.count++
	return e.count <= l.limit, e.windowEnd
}

func (l *windowLimiter) purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	purged := 0
	for k, e := range l.entries {
		if now.After(e.windowEnd) {
			delete(l.entries, k)
			purged++
		}
	}
	return purged
}

func (l *windowLimiter) middleware(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, windowEnd := l.allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", windowEnd.UTC().Format(http.TimeFormat))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New(message))
			return
		}
		c.Next()
	}
}

// RateLimiter returns a general-purpose per-IP limiter for the API.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	return newWindowLimiter("api", limit, window).middleware("too many requests, try again shortly")
}

// CallbackRateLimiter guards the public gateway callback. The gateway posts
// from a handful of addresses, so the ceiling is per IP and generous.
func CallbackRateLimiter(limit int) gin.HandlerFunc {
	return newWindowLimiter("callback", limit, time.Minute).middleware("too many callbacks")
}

// ── Purge goroutine ───────────────────────────────────────────────────────────
// Periodically removes expired entries so IPs that never return do not
// accumulate.

const purgeInterval = 5 * time.Minute

var (
	limiters   []*windowLimiter
	limitersMu sync.Mutex
)

func init() {
	go purgeExpiredEntries()
}

func purgeExpiredEntries() {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for range ticker.C {
		limitersMu.Lock()
		current := append([]*windowLimiter(nil), limiters...)
		limitersMu.Unlock()

		for _, l := range current {
			if n := l.purge(); n > 0 {
				log.Debug().Str("limiter", l.name).Int("entries_purged", n).Msg("rate limiter purged")
			}
		}
	}
}
