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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// metricsRouter builds a router with the metrics middleware and one
// parameterized route.
func metricsRouter() *gin.Engine {
	router := gin.New()
	router.Use(HTTPMetrics())
	router.GET("/things/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	return router
}

func TestHTTPMetrics_RecordsRouteTemplate(t *testing.T) {
	router := metricsRouter()

	before := testutil.CollectAndCount(httpRequestDuration)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/things/42", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	// The route label must be the template, not the concrete path, or
	// cardinality grows with every distinct id.
	after := testutil.CollectAndCount(httpRequestDuration)
	if after <= before {
		t.Errorf("expected new duration series, had %d now %d", before, after)
	}

	count := testutil.CollectAndCount(httpRequestDuration, "planstore_http_request_duration_seconds")
	if count == 0 {
		t.Error("expected planstore_http_request_duration_seconds series")
	}
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	router := metricsRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/no/such/path", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	// A second probe to a different unknown path must not mint a new
	// label; both collapse to "unmatched".
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/another/unknown", nil))

	if got := testutil.CollectAndCount(httpRequestDuration); got == 0 {
		t.Error("expected unmatched requests to be recorded")
	}
}

func TestHTTPMetrics_InFlightReturnsToZero(t *testing.T) {
	router := metricsRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/things/1", nil))

	if got := testutil.ToFloat64(httpRequestsInFlight); got != 0 {
		t.Errorf("in-flight gauge = %v after request completed, want 0", got)
	}
}
