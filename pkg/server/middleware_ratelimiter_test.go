package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiterMiddleware_TooManyRequests(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Second), 1)
	t.Cleanup(rl.Stop)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 Too Many Requests, got %d", rec2.Code)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// another client has its own budget
	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "5.6.7.8:1234"
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, other)
	if rec3.Code != http.StatusOK {
		t.Fatalf("expected 200 OK for a second client, got %d", rec3.Code)
	}
}

func TestRateLimiterEvictOldest(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Minute), 1)
	rl.maxClients = 2
	t.Cleanup(rl.Stop)

	rl.limiterFor("1.1.1.1")
	time.Sleep(time.Millisecond)
	rl.limiterFor("2.2.2.2")
	time.Sleep(time.Millisecond)
	rl.limiterFor("3.3.3.3") // evicts 1.1.1.1

	rl.mu.RLock()
	_, ok1 := rl.clients["1.1.1.1"]
	_, ok2 := rl.clients["2.2.2.2"]
	_, ok3 := rl.clients["3.3.3.3"]
	count := len(rl.clients)
	rl.mu.RUnlock()

	if ok1 {
		t.Error("oldest client was not evicted")
	}
	if !ok2 || !ok3 {
		t.Error("expected newer clients to remain")
	}
	if count != 2 {
		t.Errorf("expected 2 clients, got %d", count)
	}
	rl.Stop()
}
