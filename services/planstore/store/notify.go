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

// ChangeOp identifies the mutation behind a change notification.
type ChangeOp string

const (
	// OpIndex is emitted after a plan is created.
	OpIndex ChangeOp = "index"

	// OpUpdate is emitted after a plan is patched.
	OpUpdate ChangeOp = "update"

	// OpDelete is emitted after a plan is deleted.
	OpDelete ChangeOp = "delete"
)

// ChangeEvent describes a committed mutation for downstream consumers.
// Document carries the full plan for index and update events and is nil
// for deletes.
type ChangeEvent struct {
	Op       ChangeOp
	PlanID   string
	Document map[string]any
}

// Notifier receives change events after a mutation commits. Delivery is
// best effort: implementations must not block the calling request, and a
// dropped event never rolls back the committed write. The search index is
// eventually consistent with the store, not transactionally.
type Notifier interface {
	Notify(event ChangeEvent)
}

// NopNotifier discards all events.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ChangeEvent) {}
