// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the HTTP Surface
// =============================================================================

var (
	// httpRequestDuration measures request latency by route template.
	// Labels: route (gin route pattern), method, status
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "planstore",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route", "method", "status"})

	// httpRequestsInFlight tracks requests currently being served.
	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "planstore",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "HTTP requests currently being served",
	})

	// httpResponseBytes measures response body sizes.
	// Labels: route
	httpResponseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "planstore",
		Subsystem: "http",
		Name:      "response_bytes",
		Help:      "HTTP response body size in bytes",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"route"})
)

// =============================================================================
// Gin Middleware
// =============================================================================

// HTTPMetrics creates a middleware that records request duration, bytes
// written, and in-flight count for every route. Requests that match no
// route are labeled "unmatched" so a scanner probing random paths cannot
// grow the label space.
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		c.Next()

		httpRequestsInFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestDuration.WithLabelValues(route, c.Request.Method, status).
			Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			httpResponseBytes.WithLabelValues(route).Observe(float64(size))
		}
	}
}
