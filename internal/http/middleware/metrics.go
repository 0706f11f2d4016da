package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records request latency and counts per route. Instruments come
// from the global meter provider, so nothing is exported until one is set.
func Metrics(meter metric.Meter) gin.HandlerFunc {
	latency, _ := meter.Int64Histogram(
		"http.server.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("The latency of HTTP requests."),
	)
	requests, _ := meter.Int64Counter(
		"http.server.requests_total",
		metric.WithDescription("The total number of HTTP requests."),
	)
	failures, _ := meter.Int64Counter(
		"http.server.error_requests_total",
		metric.WithDescription("Requests answered with a 4xx or 5xx status."),
	)

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", c.Request.Method),
			attribute.Int("http.status_code", c.Writer.Status()),
		)
		ctx := c.Request.Context()
		latency.Record(ctx, time.Since(start).Milliseconds(), attrs)
		requests.Add(ctx, 1, attrs)
		if c.Writer.Status() >= 400 {
			failures.Add(ctx, 1, attrs)
		}
	}
}
