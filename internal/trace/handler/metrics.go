package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	atRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrotrace_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	atRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agrotrace_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	atBlocksMintedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrotrace_blocks_minted_total",
		Help: "Total ledger blocks minted, by event type.",
	}, []string{"event_type"})

	atMintFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrotrace_mint_failures_total",
		Help: "Total failed mint attempts, by failure kind.",
	}, []string{"kind"})

	atResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrotrace_genealogy_resolutions_total",
		Help: "Total genealogy resolutions, by cache outcome.",
	}, []string{"cache"})

	atLedgerBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agrotrace_ledger_blocks",
		Help: "Number of blocks on the ledger at the last integrity check.",
	})

	atLedgerIntact = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agrotrace_ledger_intact",
		Help: "1 when the last chain verification passed, 0 otherwise.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		atRequestsTotal.WithLabelValues(method, path, status).Inc()
		atRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordBlockMinted records a successful mint.
func RecordBlockMinted(eventType string) {
	atBlocksMintedTotal.WithLabelValues(eventType).Inc()
}

// RecordMintFailure records a failed mint by failure kind.
func RecordMintFailure(kind string) {
	atMintFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordResolution records a genealogy resolution and whether it was served
// from cache.
func RecordResolution(cached bool) {
	if cached {
		atResolutionsTotal.WithLabelValues("hit").Inc()
	} else {
		atResolutionsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordChainVerification records the outcome of a chain integrity check.
func RecordChainVerification(ok bool, blocks int) {
	atLedgerBlocks.Set(float64(blocks))
	if ok {
		atLedgerIntact.Set(1)
	} else {
		atLedgerIntact.Set(0)
	}
}
