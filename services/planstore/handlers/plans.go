// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP handlers for the planstore API.
//
// Handlers stay thin: they decode and validate payloads, delegate to the
// plan store, and translate its errors onto HTTP status codes. Plan
// bodies are decoded through the document package rather than gin's
// binding so numeric literals keep their exact textual form; binding
// through float64 would silently change the bytes that ETags are
// computed over.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/datatypes"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/document"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/middleware"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/store"
)

// maxBodyBytes caps request bodies. Plan documents are a few KB; anything
// near this limit is not a plan.
const maxBodyBytes = 1 << 20

// =============================================================================
// Plan Handlers
// =============================================================================

// CreatePlan stores a new plan document.
//
// Responds 201 with a Location header, the plan's strong ETag, and the
// new objectId. A plan that already exists is a 409; schema violations
// are 400.
func CreatePlan(plans *store.PlanStore, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := readPlanBody(c)
		if !ok {
			return
		}
		if err := datatypes.ValidatePlan(doc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := plans.Create(c.Request.Context(), doc)
		if err != nil {
			abortWithStoreError(c, logger, "create", err)
			return
		}

		c.Header("ETag", result.ETag)
		c.Header("Location", "/v1/plan/"+result.PlanID)
		c.JSON(http.StatusCreated, datatypes.CreateResponse{ObjectID: result.PlanID})
	}
}

// GetPlan returns a stored plan with its validators.
//
// Supports conditional reads: an If-None-Match header that matches the
// current ETag short-circuits to 304 with no body.
func GetPlan(plans *store.PlanStore, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		planID := c.Param("planId")

		doc, meta, err := plans.Get(c.Request.Context(), planID)
		if err != nil {
			abortWithStoreError(c, logger, "get", err)
			return
		}
		if doc == nil || meta == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
			return
		}

		c.Header("ETag", meta.ETag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && document.ETagMatchWeak(inm, meta.ETag) {
			c.Status(http.StatusNotModified)
			return
		}

		c.Header("Last-Modified", meta.LastModified.UTC().Format(http.TimeFormat))
		c.JSON(http.StatusOK, doc)
	}
}

// PatchPlan merges a partial document into a stored plan.
//
// The If-Match header is mandatory; the store rejects its absence with
// 428 whether or not the plan exists. When the precondition holds, the
// would-be merged document is validated before the write so a patch
// cannot null away fields the schema requires.
func PatchPlan(plans *store.PlanStore, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		planID := c.Param("planId")
		ifMatch := c.GetHeader("If-Match")

		patch, ok := readPatchBody(c)
		if !ok {
			return
		}

		// Preview the merge for schema validation. The If-Match token
		// pins the base content, so if the store later commits at all it
		// commits exactly the document validated here.
		if patchMap, isMap := patch.(map[string]any); isMap && ifMatch != "" {
			current, meta, err := plans.Get(c.Request.Context(), planID)
			if err == nil && current != nil && meta != nil && document.ETagMatch(ifMatch, meta.ETag) {
				if merged, isObj := document.Merge(current, patchMap).(map[string]any); isObj {
					if err := datatypes.ValidatePlan(merged); err != nil {
						c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
						return
					}
				}
			}
		}

		result, err := plans.Patch(c.Request.Context(), planID, patch, ifMatch)
		if err != nil {
			abortWithStoreError(c, logger, "patch", err)
			return
		}

		c.Header("ETag", result.ETag)
		c.Header("Last-Modified", result.LastModified.UTC().Format(http.TimeFormat))
		c.JSON(http.StatusOK, result.Document)
	}
}

// DeletePlan removes a plan and all its member records.
//
// Follows the same precondition discipline as PatchPlan. Success is a
// bare 204.
func DeletePlan(plans *store.PlanStore, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		planID := c.Param("planId")
		ifMatch := c.GetHeader("If-Match")

		if err := plans.Delete(c.Request.Context(), planID, ifMatch); err != nil {
			abortWithStoreError(c, logger, "delete", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// =============================================================================
// Body Decoding
// =============================================================================

// readPlanBody decodes a request body as a JSON object, preserving
// numeric literals. Writes the error response itself and returns ok=false
// on failure.
func readPlanBody(c *gin.Context) (map[string]any, bool) {
	raw, ok := readBody(c)
	if !ok {
		return nil, false
	}
	doc, err := document.Decode(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return nil, false
	}
	return doc, true
}

// readPatchBody decodes a patch body as any JSON value. Shape errors are
// the store's call, not ours; a patch that is not an object comes back
// from the store as a bad request.
func readPatchBody(c *gin.Context) (any, bool) {
	raw, ok := readBody(c)
	if !ok {
		return nil, false
	}
	patch, err := document.DecodeValue(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is not valid JSON"})
		return nil, false
	}
	return patch, true
}

func readBody(c *gin.Context) ([]byte, bool) {
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	raw, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		}
		return nil, false
	}
	return raw, true
}

// =============================================================================
// Error Translation
// =============================================================================

// statusForStoreError maps store failures onto HTTP status codes.
func statusForStoreError(err error) int {
	switch {
	case errors.Is(err, store.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, store.ErrPreconditionRequired):
		return http.StatusPreconditionRequired
	default:
		return http.StatusInternalServerError
	}
}

// abortWithStoreError writes the JSON error response for a failed store
// operation. Internal failures are logged with detail but reported to the
// caller generically.
func abortWithStoreError(c *gin.Context, logger *logging.Logger, operation string, err error) {
	status := statusForStoreError(err)
	if status == http.StatusInternalServerError {
		logger.Error("plan operation failed",
			"operation", operation,
			"planId", c.Param("planId"),
			"requestId", middleware.GetRequestID(c),
			"error", err.Error())
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
