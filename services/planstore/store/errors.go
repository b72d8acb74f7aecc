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

import "errors"

// Sentinel failures returned by plan mutations. The HTTP layer maps them
// to status codes; none is fatal to the process.
var (
	// ErrBadRequest reports a structurally invalid document or patch.
	ErrBadRequest = errors.New("invalid plan document")

	// ErrConflict reports a create against an objectId that already has
	// a root record.
	ErrConflict = errors.New("plan already exists")

	// ErrNotFound reports a mutation against an absent plan.
	ErrNotFound = errors.New("plan not found")

	// ErrPreconditionFailed reports a stale If-Match token, or a write
	// that lost its commit race more times than the retry budget allows.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrPreconditionRequired reports a mutation submitted without the
	// If-Match token that mutations must carry.
	ErrPreconditionRequired = errors.New("precondition required")
)
