package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "rid-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "rid-123" {
		t.Fatalf("expected provided id to win, got %q", seen)
	}
	if rec.Header().Get("X-Request-Id") != "rid-123" {
		t.Fatal("request id not echoed in response")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "" || seen == "rid-123" {
		t.Fatalf("expected a generated id, got %q", seen)
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Fatal("generated id not echoed in response")
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing frame options header")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must short-circuit")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/token", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatal("local origin not allowed")
	}
}

func TestCORSRejectsForeignOrigin(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin must not be reflected")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:34567"
	if got := clientIP(req); got != "10.0.0.9" {
		t.Fatalf("expected 10.0.0.9, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(2, 1)

	if !l.Allow("198.51.100.1") || !l.Allow("198.51.100.1") {
		t.Fatal("burst should be allowed")
	}
	if l.Allow("198.51.100.1") {
		t.Fatal("third immediate request should be limited")
	}
	// Distinct addresses keep their own budget.
	if !l.Allow("198.51.100.2") {
		t.Fatal("fresh address should have a full bucket")
	}
}

func TestIPLimiterEvictsIdleBuckets(t *testing.T) {
	l := newIPLimiter(2, 1)
	l.Allow("198.51.100.1")

	// Age the bucket past the idle window and the eviction schedule.
	l.mu.Lock()
	l.buckets["198.51.100.1"].ts = time.Now().Add(-10 * time.Minute)
	l.lastEvict = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()

	l.Allow("198.51.100.2")

	l.mu.Lock()
	_, stale := l.buckets["198.51.100.1"]
	_, fresh := l.buckets["198.51.100.2"]
	l.mu.Unlock()
	if stale {
		t.Fatal("idle bucket was not evicted")
	}
	if !fresh {
		t.Fatal("active bucket must survive eviction")
	}
}

func TestAuthEndpointRateLimit(t *testing.T) {
	f := newAPIFixture(t)

	limited := false
	for i := 0; i < 15; i++ {
		rec := f.do(t, http.MethodPost, "/token", tokenRequest{
			Email: "alice@example.com", Secret: "wrong", ClientID: "app1",
		}, "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	if !limited {
		t.Fatal("credential endpoint was never rate limited")
	}
}
