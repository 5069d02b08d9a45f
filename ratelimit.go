package dispatch

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the RateLimit filter.
type RateLimitConfig struct {
	Rate            float64                      // requests per second
	Burst           int                          // max burst
	KeyFunc         func(r *http.Request) string // default: remote IP
	CleanupInterval time.Duration                // how often to prune idle limiters (default: 1m)
	MaxIdle         time.Duration                // remove limiters idle longer than this (default: 5m)
}

// ErrRateLimited is returned by the RateLimit filter (429 Too Many Requests).
var ErrRateLimited = Error(http.StatusTooManyRequests, "rate limit exceeded")

// RateLimit returns a request filter that applies per-key rate limiting.
// Requests over the limit fail with ErrRateLimited and a Retry-After header.
func RateLimit(cfg RateLimitConfig) RequestFilter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = remoteHost
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5 * time.Minute
	}

	retryAfter := "1"
	if cfg.Rate > 0 && cfg.Rate < 1 {
		retryAfter = strconv.FormatFloat(1/cfg.Rate, 'f', 0, 64)
	}

	l := &limiterSet{cfg: cfg, limiters: make(map[string]*limiterEntry)}

	return RequestFilterFunc(func(rc *RequestContext, _ any) (bool, error) {
		if l.get(cfg.KeyFunc(rc.Request), time.Now()).Allow() {
			return false, nil
		}
		rc.ResponseWriter().Header().Set("Retry-After", retryAfter)
		return false, ErrRateLimited
	})
}

type limiterSet struct {
	cfg         RateLimitConfig
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	lastCleanup time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (l *limiterSet) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Lazy cleanup of expired limiters.
	if now.Sub(l.lastCleanup) >= l.cfg.CleanupInterval {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.cfg.MaxIdle {
				delete(l.limiters, k)
			}
		}
		l.lastCleanup = now
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
