package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	ratestore "github.com/yasserelgammal/rate-limiter/store"
)

// rateLimiter is a token bucket per client IP.
type rateLimiter struct {
	bucket *limiter.TokenBucket
	store  any // memory store with a cleanup goroutine

	closeOnce sync.Once
	closed    bool
}

func newRateLimiter(rate, burst int) (*rateLimiter, error) {
	if burst < rate {
		burst = rate
	}
	buckets := ratestore.NewMemoryStore(time.Minute)
	bucket, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(rate),
			Duration: time.Second,
			Burst:    int64(burst),
		},
		buckets,
	)
	l := &rateLimiter{bucket: bucket, store: buckets}
	if err != nil {
		l.close()
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	return l, nil
}

// close stops the store's cleanup goroutine. It is safe to call twice.
func (l *rateLimiter) close() {
	l.closeOnce.Do(func() {
		switch c := l.store.(type) {
		case interface{ Close() error }:
			c.Close()
		case interface{ Close() }:
			c.Close()
		case interface{ Stop() }:
			c.Stop()
		}
		l.closed = true
	})
}

// middleware limits /api/ requests. Other routes pass through.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") && !l.bucket.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
