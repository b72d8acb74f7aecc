// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Plan Operations
// =============================================================================

var (
	// planOperations counts plan operations by outcome.
	// Labels: operation (create, get, patch, delete), status
	planOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planstore",
		Subsystem: "plan",
		Name:      "operations_total",
		Help:      "Plan operations by outcome",
	}, []string{"operation", "status"})

	// casRetries counts write transactions that lost a commit race and
	// were retried.
	casRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "planstore",
		Subsystem: "plan",
		Name:      "cas_retry_total",
		Help:      "Write transactions retried after a commit conflict",
	})
)

// recordOperation maps an operation result onto a status label. The
// label set is fixed so a bad client cannot grow metric cardinality.
func recordOperation(operation string, err error) {
	planOperations.WithLabelValues(operation, statusLabel(err)).Inc()
}

// recordGet distinguishes a miss from a hit; absence is not an error for
// reads, so statusLabel alone cannot tell the two apart.
func recordGet(doc map[string]any, err error) {
	switch {
	case err != nil:
		planOperations.WithLabelValues("get", "error").Inc()
	case doc == nil:
		planOperations.WithLabelValues("get", "miss").Inc()
	default:
		planOperations.WithLabelValues("get", "ok").Inc()
	}
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, ErrPreconditionRequired):
		return "precondition_required"
	default:
		return "error"
	}
}
