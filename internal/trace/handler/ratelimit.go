package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// RPS is the steady-state requests per second per client IP.
	RPS int
	// Burst is the maximum burst size. Zero defaults to 2*RPS.
	Burst int
	// CleanupInterval is how often idle client buckets are evicted.
	CleanupInterval time.Duration
	// StaleAfter is how long a client may be idle before its bucket is
	// dropped. Must exceed CleanupInterval to be meaningful.
	StaleAfter time.Duration
	// ExemptPaths are request paths that bypass limiting entirely. Probes
	// like /healthz and /metrics scrapes should not consume event budget.
	ExemptPaths []string
}

// RateLimiter enforces a token bucket per client IP. Buckets for idle
// clients are evicted by a cleanup loop driven through Run.
type RateLimiter struct {
	cfg    RateLimitConfig
	exempt map[string]struct{}

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter from cfg, applying defaults for
// unset fields.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RPS * 2
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * cfg.CleanupInterval
	}

	exempt := make(map[string]struct{}, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = struct{}{}
	}

	return &RateLimiter{
		cfg:     cfg,
		exempt:  exempt,
		buckets: make(map[string]*clientBucket),
	}
}

// Run evicts idle client buckets until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictStale(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// evictStale drops buckets idle longer than StaleAfter and reports how many
// were removed.
func (rl *RateLimiter) evictStale(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.cfg.StaleAfter {
			delete(rl.buckets, ip)
			evicted++
		}
	}
	return evicted
}

// bucketFor returns the bucket for ip, creating it on first sight.
func (rl *RateLimiter) bucketFor(ip string) *clientBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b
}

// Middleware returns the gin middleware enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		if !rl.bucketFor(c.ClientIP()).limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
