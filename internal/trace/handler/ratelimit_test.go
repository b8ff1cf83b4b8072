package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agrotrace/agrotrace/internal/trace/handler"
)

func rateLimitedRouter(rl *handler.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/ledger", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func getStatus(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_blocksAfterBurst(t *testing.T) {
	rl := handler.NewRateLimiter(handler.RateLimitConfig{RPS: 1, Burst: 2})
	r := rateLimitedRouter(rl)

	for i := 0; i < 2; i++ {
		if code := getStatus(r, "/api/v1/ledger"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, code)
		}
	}
	if code := getStatus(r, "/api/v1/ledger"); code != http.StatusTooManyRequests {
		t.Fatalf("over-budget request: status = %d, want 429", code)
	}
}

func TestRateLimiter_exemptPathsBypassLimit(t *testing.T) {
	rl := handler.NewRateLimiter(handler.RateLimitConfig{
		RPS:         1,
		Burst:       1,
		ExemptPaths: []string{"/healthz"},
	})
	r := rateLimitedRouter(rl)

	// Exhaust the client's budget.
	getStatus(r, "/api/v1/ledger")
	if code := getStatus(r, "/api/v1/ledger"); code != http.StatusTooManyRequests {
		t.Fatalf("over-budget request: status = %d, want 429", code)
	}

	// Probes keep passing regardless.
	for i := 0; i < 5; i++ {
		if code := getStatus(r, "/healthz"); code != http.StatusOK {
			t.Fatalf("exempt request %d: status = %d, want 200", i+1, code)
		}
	}
}

func TestRateLimiter_evictsIdleClients(t *testing.T) {
	rl := handler.NewRateLimiter(handler.RateLimitConfig{
		RPS:             1,
		Burst:           1,
		CleanupInterval: 10 * time.Millisecond,
		StaleAfter:      time.Millisecond,
	})
	r := rateLimitedRouter(rl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rl.Run(ctx)

	// Exhaust the bucket, then idle past StaleAfter so the cleanup loop
	// drops it.
	getStatus(r, "/api/v1/ledger")
	if code := getStatus(r, "/api/v1/ledger"); code != http.StatusTooManyRequests {
		t.Fatalf("over-budget request: status = %d, want 429", code)
	}

	time.Sleep(100 * time.Millisecond)

	// A fresh bucket has a full burst again. At 1 rps the old bucket could
	// not have refilled within 100ms, so a 200 here proves eviction.
	if code := getStatus(r, "/api/v1/ledger"); code != http.StatusOK {
		t.Fatalf("post-eviction request: status = %d, want 200", code)
	}
}
