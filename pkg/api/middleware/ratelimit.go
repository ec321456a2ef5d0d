package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures a KeyedLimiter.
type RateLimitConfig struct {
	RequestsPerSecond float64       // Token replenishment rate per key
	BurstSize         int           // Bucket capacity per key
	IdleExpiration    time.Duration // Keys unseen this long are forgotten
	MaxKeys           int           // Tracked keys; new keys beyond this are refused
}

// DefaultRateLimitConfig returns per-client defaults for the whole API.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		IdleExpiration:    10 * time.Minute,
		MaxKeys:           100000,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter holds one token bucket per key: a client address or a
// reporting device id.
type KeyedLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	entries map[string]*limiterEntry
	now     func() time.Time
}

// NewKeyedLimiter creates a limiter. Zero fields take DefaultRateLimitConfig
// values.
func NewKeyedLimiter(config RateLimitConfig) *KeyedLimiter {
	d := DefaultRateLimitConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = d.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = d.BurstSize
	}
	if config.IdleExpiration <= 0 {
		config.IdleExpiration = d.IdleExpiration
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = d.MaxKeys
	}
	return &KeyedLimiter{config: config, entries: make(map[string]*limiterEntry), now: time.Now}
}

// WithClock replaces the time source, for tests.
func (l *KeyedLimiter) WithClock(now func() time.Time) *KeyedLimiter {
	l.now = now
	return l
}

// Allow spends one token from key's bucket.
func (l *KeyedLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= l.config.MaxKeys {
			l.prune(now)
			if len(l.entries) >= l.config.MaxKeys {
				return false
			}
		}
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Prune forgets idle keys and returns how many remain.
func (l *KeyedLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.entries)
}

func (l *KeyedLimiter) prune(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.config.IdleExpiration {
			delete(l.entries, k)
		}
	}
}

// RetryAfter is the whole number of seconds until one token refills.
func (l *KeyedLimiter) RetryAfter() int {
	secs := int(1 / l.config.RequestsPerSecond)
	return max(secs, 1)
}

// RateLimit creates middleware that refuses requests once key(r) has
// spent its bucket. onLimit, if set, runs for every refused request.
func RateLimit(l *KeyedLimiter, key func(*http.Request) string, onLimit func(*http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow(key(r)) {
				next.ServeHTTP(w, r)
				return
			}
			if onLimit != nil {
				onLimit(r)
			}
			w.Header().Set("Retry-After", strconv.Itoa(l.RetryAfter()))
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
}
