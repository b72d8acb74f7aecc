// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the per-client limiter map. When the map
// grows past this, it is dropped wholesale; briefly forgiving every
// client is preferable to unbounded memory.
const maxTrackedClients = 10000

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate allowed per client IP.
	RequestsPerSecond float64

	// Burst is the number of requests a client may send at once before
	// the sustained rate applies.
	Burst int
}

// DefaultRateLimitConfig returns limits suitable for a single-node
// deployment.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		Burst:             100,
	}
}

// clientLimiters tracks one token bucket per client IP.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newClientLimiters(cfg RateLimitConfig) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
	}
}

// get returns the limiter for a client, creating it on first sight.
func (cl *clientLimiters) get(clientIP string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if len(cl.limiters) > maxTrackedClients {
		cl.limiters = make(map[string]*rate.Limiter)
	}

	lim, ok := cl.limiters[clientIP]
	if !ok {
		lim = rate.NewLimiter(cl.rps, cl.burst)
		cl.limiters[clientIP] = lim
	}
	return lim
}

// RateLimit creates a middleware that throttles clients by IP using a
// token bucket. Requests over the limit are rejected with 429 rather
// than queued, so a misbehaving client cannot tie up server connections.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	cl := newClientLimiters(cfg)

	return func(c *gin.Context) {
		if !cl.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
