package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"satoshicheckout/internal/logging"
	"satoshicheckout/internal/metrics"
)

// Logger wraps a handler with request logging and latency metrics.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		elapsed := time.Since(start)

		metrics.HTTPRequestDuration.WithLabelValues(r.Method, strconv.Itoa(wrapped.status)).Observe(elapsed.Seconds())

		// Checkout pages poll status every few seconds.
		if isStatusPoll(r.URL.Path) {
			return
		}
		logging.HTTP.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, elapsed)
	})
}

func isStatusPoll(path string) bool {
	if path == "/api/status" {
		return true
	}
	return strings.HasPrefix(path, "/api/invoices/") && strings.HasSuffix(path, "/status")
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	AllowedOrigins []string // empty allows all (development)
}

// CORS adds CORS headers, restricted to AllowedOrigins when set.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowAll := len(cfg.AllowedOrigins) == 0

	allowedSet := make(map[string]bool)
	for _, origin := range cfg.AllowedOrigins {
		allowedSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" && allowedSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerSecond is the general per-IP limit.
	RequestsPerSecond float64
	BurstSize         int
	// InvoiceRequestsPerMinute is the per-IP limit for invoice creation.
	InvoiceRequestsPerMinute float64
	InvoiceBurstSize         int
}

// DefaultRateLimitConfig returns the production limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond:        10,
		BurstSize:                20,
		InvoiceRequestsPerMinute: 10,
		InvoiceBurstSize:         3,
	}
}

const (
	limiterTTL             = 10 * time.Minute
	limiterCleanupInterval = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix seconds
}

// ipRateLimiter keeps one token bucket per IP and forgets idle ones.
type ipRateLimiter struct {
	limiters sync.Map // map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func newIPRateLimiter(r float64, burst int) *ipRateLimiter {
	return newIPRateLimiterWithTTL(r, burst, limiterTTL)
}

func newIPRateLimiterWithTTL(r float64, burst int, ttl time.Duration) *ipRateLimiter {
	rl := &ipRateLimiter{
		rate:  rate.Limit(r),
		burst: burst,
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *ipRateLimiter) getLimiter(ip string) *rate.Limiter {
	now := time.Now().Unix()
	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*limiterEntry)
		e.lastSeen.Store(now)
		return e.limiter
	}

	e := &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
	e.lastSeen.Store(now)
	v, _ := rl.limiters.LoadOrStore(ip, e)
	return v.(*limiterEntry).limiter
}

func (rl *ipRateLimiter) cleanupLoop() {
	interval := limiterCleanupInterval
	if rl.ttl < interval {
		interval = rl.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *ipRateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.ttl).Unix()
	rl.limiters.Range(func(key, v any) bool {
		if v.(*limiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *ipRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// RateLimiter applies per-IP limits, stricter for invoice creation.
type RateLimiter struct {
	general *ipRateLimiter
	invoice *ipRateLimiter
}

// NewRateLimiter creates a rate limiter. Call Stop when done.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		general: newIPRateLimiter(cfg.RequestsPerSecond, cfg.BurstSize),
		invoice: newIPRateLimiter(cfg.InvoiceRequestsPerMinute/60, cfg.InvoiceBurstSize),
	}
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)

		var limiter *rate.Limiter
		if r.Method == http.MethodPost && r.URL.Path == "/api/invoices" {
			limiter = rl.invoice.getLimiter(ip)
		} else {
			limiter = rl.general.getLimiter(ip)
		}

		if !limiter.Allow() {
			logging.HTTP.Printf("rate limit exceeded for %s on %s %s", ip, r.Method, r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop releases the limiters' background goroutines.
func (rl *RateLimiter) Stop() {
	rl.general.Stop()
	rl.invoice.Stop()
}

// extractIP returns the client IP, preferring proxy headers.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
