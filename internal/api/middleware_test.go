package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_AllowAll(t *testing.T) {
	corsHandler := CORS(CORSConfig{})(okHandler())

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()

	corsHandler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected *, got %q", got)
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	corsHandler := CORS(CORSConfig{
		AllowedOrigins: []string{"https://shop.example.com", "http://localhost:3000"},
	})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/status?orderId=x", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		rec := httptest.NewRecorder()

		corsHandler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
			t.Errorf("expected https://shop.example.com, got %q", got)
		}
		if got := rec.Header().Get("Vary"); got != "Origin" {
			t.Errorf("Vary = %q", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/status?orderId=x", nil)
		req.Header.Set("Origin", "https://evil.com")
		rec := httptest.NewRecorder()

		corsHandler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})

	t.Run("preflight request", func(t *testing.T) {
		called := false
		h := CORS(CORSConfig{AllowedOrigins: []string{"https://shop.example.com"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		req := httptest.NewRequest("OPTIONS", "/api/invoices", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 for preflight, got %d", rec.Code)
		}
		if called {
			t.Error("preflight should not reach the handler")
		}
	})
}

func TestLogger_RecordsStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418 to pass through, got %d", rec.Code)
	}
}

func TestIsStatusPoll(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/status", true},
		{"/api/invoices/inv_1/status", true},
		{"/api/invoices", false},
		{"/api/webhook/btcpay", false},
		{"/api/health", false},
	}

	for _, tc := range tests {
		if got := isStatusPoll(tc.path); got != tc.want {
			t.Errorf("isStatusPoll(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond:        1,
		BurstSize:                2,
		InvoiceRequestsPerMinute: 1,
		InvoiceBurstSize:         1,
	}

	rateLimiter := NewRateLimiter(cfg)
	defer rateLimiter.Stop()
	rateLimitedHandler := rateLimiter.Middleware(okHandler())

	t.Run("allows requests within limit", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		rateLimitedHandler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("blocks requests exceeding limit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			req := httptest.NewRequest("GET", "/api/health", nil)
			req.RemoteAddr = "10.0.0.1:12345"
			rec := httptest.NewRecorder()

			rateLimitedHandler.ServeHTTP(rec, req)

			if i < 2 && rec.Code != http.StatusOK {
				t.Errorf("request %d: expected 200, got %d", i, rec.Code)
			}
			if i >= 2 && rec.Code != http.StatusTooManyRequests {
				t.Errorf("request %d: expected 429, got %d", i, rec.Code)
			}
		}
	})

	t.Run("invoice creation has its own stricter bucket", func(t *testing.T) {
		ip := "10.0.0.2:1"
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest("POST", "/api/invoices", nil)
			req.RemoteAddr = ip
			rec := httptest.NewRecorder()
			rateLimitedHandler.ServeHTTP(rec, req)

			want := http.StatusOK
			if i == 1 {
				want = http.StatusTooManyRequests
			}
			if rec.Code != want {
				t.Errorf("invoice request %d: expected %d, got %d", i, want, rec.Code)
			}
		}

		// Status polls from the same IP still pass.
		req := httptest.NewRequest("GET", "/api/status?orderId=x", nil)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		rateLimitedHandler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status poll: expected 200, got %d", rec.Code)
		}
	})

	t.Run("uses X-Forwarded-For header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
		rec := httptest.NewRecorder()

		rateLimitedHandler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func countLimiters(rl *ipRateLimiter) int {
	n := 0
	rl.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newIPRateLimiterWithTTL(10, 5, time.Hour)
	defer rl.Stop()

	rl.getLimiter("192.168.1.1")
	rl.getLimiter("192.168.1.2")
	rl.getLimiter("192.168.1.3")
	if n := countLimiters(rl); n != 3 {
		t.Fatalf("expected 3 entries, got %d", n)
	}

	// Age two entries past the TTL.
	stale := time.Now().Add(-2 * time.Hour).Unix()
	for _, ip := range []string{"192.168.1.1", "192.168.1.2"} {
		v, _ := rl.limiters.Load(ip)
		v.(*limiterEntry).lastSeen.Store(stale)
	}

	rl.cleanup()

	if n := countLimiters(rl); n != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", n)
	}
	if _, ok := rl.limiters.Load("192.168.1.3"); !ok {
		t.Error("active entry should be preserved")
	}
}

func TestRateLimiterSharesBucketPerIP(t *testing.T) {
	rl := newIPRateLimiterWithTTL(1, 1, time.Hour)
	defer rl.Stop()

	if rl.getLimiter("192.168.1.1") != rl.getLimiter("192.168.1.1") {
		t.Error("same IP should reuse its limiter")
	}
}

func TestRateLimiterStop(t *testing.T) {
	rl := newIPRateLimiterWithTTL(10, 5, 10*time.Millisecond)

	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	if cfg.RequestsPerSecond <= 0 {
		t.Error("RequestsPerSecond should be positive")
	}
	if cfg.BurstSize <= 0 {
		t.Error("BurstSize should be positive")
	}
	if cfg.InvoiceRequestsPerMinute <= 0 {
		t.Error("InvoiceRequestsPerMinute should be positive")
	}
	if cfg.InvoiceBurstSize <= 0 {
		t.Error("InvoiceBurstSize should be positive")
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"remote addr only", "192.168.1.1:12345", "", "", "192.168.1.1"},
		{"X-Forwarded-For single", "127.0.0.1:80", "203.0.113.50", "", "203.0.113.50"},
		{"X-Forwarded-For chain", "127.0.0.1:80", "203.0.113.50, 70.41.3.18", "", "203.0.113.50"},
		{"X-Real-IP", "127.0.0.1:80", "", "203.0.113.100", "203.0.113.100"},
		{"X-Forwarded-For takes precedence", "127.0.0.1:80", "1.2.3.4", "5.6.7.8", "1.2.3.4"},
		{"IPv6", "[::1]:8080", "", "", "::1"},
		{"no port", "192.168.1.7", "", "", "192.168.1.7"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				req.Header.Set("X-Real-IP", tc.xri)
			}

			if got := extractIP(req); got != tc.want {
				t.Errorf("extractIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
