// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index feeds committed plan mutations into a search index.
//
// The store emits change events synchronously after each commit; this
// package buffers them on a bounded queue and applies them to the index
// from a background worker. The coupling is deliberately loose: a full
// queue drops events, an unreachable index logs and moves on, and nothing
// here can roll back a store write. The search index is eventually
// consistent with the store.
package index

import "context"

// Indexer applies plan changes to a search backend.
type Indexer interface {
	// IndexPlan replaces the indexed representation of a plan with the
	// given document. Used for both creates and patches.
	IndexPlan(ctx context.Context, planID string, doc map[string]any) error

	// DeletePlan removes every indexed object belonging to the plan.
	DeletePlan(ctx context.Context, planID string) error
}

// NopIndexer discards all changes. Used when search is disabled.
type NopIndexer struct{}

// IndexPlan implements Indexer.
func (NopIndexer) IndexPlan(context.Context, string, map[string]any) error { return nil }

// DeletePlan implements Indexer.
func (NopIndexer) DeletePlan(context.Context, string) error { return nil }
