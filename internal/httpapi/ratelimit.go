package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	IPPerMinute int
	IPBurst     int
}

// RateLimiter keeps one token bucket per client IP. Idle buckets expire.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *cache.Cache
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	perMinute := cfg.IPPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := cfg.IPBurst
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		buckets: cache.New(5*time.Minute, 10*time.Minute),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip != "" && !l.allow(ip) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string) bool {
	return l.bucket(key).Allow()
}

func (l *RateLimiter) bucket(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		l.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(key, limiter, cache.DefaultExpiration); err != nil {
		// lost the race with a concurrent request for the same key
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
