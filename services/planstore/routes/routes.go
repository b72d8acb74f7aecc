// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/auth"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/handlers"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/middleware"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/observability"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/store"
)

// SetupRoutes registers every planstore endpoint on the router.
//
// The health and metrics endpoints stay outside the v1 group so probes
// and scrapers never need credentials. Everything under /v1 passes the
// rate limiter and then the auth middleware; a zero rate config disables
// the limiter. The metrics route is only registered when telemetry
// initialized a Prometheus exporter.
func SetupRoutes(router *gin.Engine, plans *store.PlanStore, provider auth.AuthProvider,
	logger *logging.Logger, rateCfg middleware.RateLimitConfig) {

	router.GET("/healthz", handlers.HealthCheck)
	if h := observability.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	if rateCfg.RequestsPerSecond > 0 {
		v1.Use(middleware.RateLimit(rateCfg))
	}
	v1.Use(middleware.AuthMiddleware(provider))
	{
		v1.POST("/plan", handlers.CreatePlan(plans, logger))
		v1.GET("/plan/:planId", handlers.GetPlan(plans, logger))
		v1.PATCH("/plan/:planId", handlers.PatchPlan(plans, logger))
		v1.DELETE("/plan/:planId", handlers.DeletePlan(plans, logger))
	}
}
