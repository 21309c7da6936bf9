package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLimiterBurst(t *testing.T) {
	limiter, err := New(Config{RequestsPerSecond: 1, BurstSize: 3, Enabled: true})
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !limiter.Allow("client") {
			t.Errorf("Request %d should be allowed", i)
		}
	}
	if limiter.Allow("client") {
		t.Error("Request should be denied after burst exhausted")
	}
	if !limiter.Allow("other") {
		t.Error("Other keys should have their own bucket")
	}
}

func TestLimiterDisabled(t *testing.T) {
	limiter, err := New(Config{RequestsPerSecond: 1, BurstSize: 1})
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}
	for i := 0; i < 10; i++ {
		if !limiter.Allow("client") {
			t.Fatal("Disabled limiter should allow everything")
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Enabled: true}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.RequestsPerSecond != 10 || cfg.BurstSize != 10 {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	bad := Config{Enabled: true, RequestsPerSecond: -1}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative rate")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	limiter, err := New(Config{RequestsPerSecond: 1, BurstSize: 1, Enabled: true})
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}
	handler := HTTPMiddleware(limiter, IPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/worker/render", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Error("missing Retry-After header")
	}
}

func TestIPKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr with port", nil, "192.168.1.5:1234", "192.168.1.5"},
		{"ipv6 remote addr", nil, "[::1]:8080", "::1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.1:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "10.0.0.1:1", "5.6.7.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := IPKey(req); got != tt.want {
				t.Errorf("IPKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
