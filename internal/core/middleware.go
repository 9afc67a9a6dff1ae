package core

import (
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestLogger logs HTTP requests with timing information.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			log.Printf(
				"%s %s %d %s %s",
				r.Method,
				r.URL.Path,
				ww.Status(),
				time.Since(start),
				r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// RequestID attaches a request identifier, generating one when the client
// did not supply it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// Recovery middleware recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimiter provides token-bucket rate limiting per client IP.
type RateLimiter struct {
	buckets   map[string]*bucket
	burst     int
	perSecond int
	mu        sync.Mutex
	lastSwept time.Time
	bucketTTL time.Duration
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// NewRateLimiter creates a rate limiter allowing perSecond sustained
// requests with the given burst per client IP.
func NewRateLimiter(burst, perSecond int) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		burst:     burst,
		perSecond: perSecond,
		lastSwept: time.Now(),
		bucketTTL: 5 * time.Minute,
	}
}

// Limit returns middleware that rate limits requests by IP.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		rl.mu.Lock()
		now := time.Now()
		if now.Sub(rl.lastSwept) > rl.bucketTTL {
			for k, b := range rl.buckets {
				if now.Sub(b.ts) > rl.bucketTTL {
					delete(rl.buckets, k)
				}
			}
			rl.lastSwept = now
		}

		b, ok := rl.buckets[ip]
		if !ok {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(rl.perSecond), rl.burst)}
			rl.buckets[ip] = b
		}
		b.ts = now
		allowed := b.lim.Allow()
		rl.mu.Unlock()

		if !allowed {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
