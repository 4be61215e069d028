// Package metrics holds the Prometheus collectors for the HTTP layer and
// the upload pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoportal_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecoportal_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoportal_uploads_total",
			Help: "Upload attempts by entry point and outcome",
		},
		[]string{"rule", "outcome"},
	)

	uploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoportal_upload_bytes_total",
			Help: "Bytes committed to storage by category",
		},
		[]string{"category"},
	)

	uploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecoportal_upload_duration_seconds",
			Help:    "Time spent in the upload pipeline after the body was received",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rule"},
	)

	storedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecoportal_upload_stored_bytes",
			Help: "Bytes stored under the upload directory at the last scan",
		},
	)

	deletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoportal_upload_deletes_total",
			Help: "Artifact delete requests by outcome",
		},
		[]string{"outcome"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoportal_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)
)

// ObserveUpload records one pipeline run.
func ObserveUpload(rule, outcome string, elapsed time.Duration) {
	uploadsTotal.WithLabelValues(rule, outcome).Inc()
	uploadDuration.WithLabelValues(rule).Observe(elapsed.Seconds())
}

func AddCommittedBytes(category string, n int64) {
	uploadBytesTotal.WithLabelValues(category).Add(float64(n))
}

func SetStoredBytes(n int64) {
	storedBytes.Set(float64(n))
}

func ObserveDelete(outcome string) {
	deletesTotal.WithLabelValues(outcome).Inc()
}

func IncRateLimited(limiter string) {
	rateLimited.WithLabelValues(limiter).Inc()
}

// Middleware records request counts and latency. The route pattern is used
// as the path label to keep cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
