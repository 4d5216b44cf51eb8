package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, 2)
	handler := rl.Middleware()(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/results?sid=s", http.NoBody)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := range 2 {
		if code := send("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: got %d, want %d", i, code, http.StatusOK)
		}
	}

	req := httptest.NewRequest("GET", "/results?sid=s", http.NoBody)
	req.RemoteAddr = "10.0.0.1:5678"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("over burst: got %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After: got %q, want 1", rr.Header().Get("Retry-After"))
	}

	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("other client: got %d, want %d", code, http.StatusOK)
	}
}

func TestRateLimiter_KeysOnUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, 1)
	handler := BearerAuthMiddleware(map[string]string{"k1": "alice", "k2": "bob"})(
		rl.Middleware()(okHandler()),
	)

	send := func(key string) int {
		req := httptest.NewRequest("GET", "/session", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+key)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("k1"); code != http.StatusOK {
		t.Fatalf("alice first: got %d", code)
	}
	if code := send("k1"); code != http.StatusTooManyRequests {
		t.Errorf("alice second: got %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := send("k2"); code != http.StatusOK {
		t.Errorf("bob from same address: got %d, want %d", code, http.StatusOK)
	}
}

func TestRateLimiter_ExemptPaths(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, 1)
	handler := rl.Middleware()(okHandler())

	for range 3 {
		req := httptest.NewRequest("GET", "/health", http.NoBody)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("health: got %d, want %d", rr.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.getLimiter("ip:a")
	now = now.Add(limiterIdleTTL + time.Second)
	rl.getLimiter("ip:b")
	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.limiters["ip:a"]; ok {
		t.Error("idle limiter was not evicted")
	}
	if _, ok := rl.limiters["ip:b"]; !ok {
		t.Error("active limiter was evicted")
	}
}
