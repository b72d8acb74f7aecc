// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines the transactional key-value boundary the plan
// store writes through, with a BadgerDB implementation for deployments and
// an in-memory implementation for tests.
//
// The store handle is injected into consumers at construction time; nothing
// in this repository holds a process-wide database singleton.
package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Txn.Get for absent keys.
var ErrKeyNotFound = errors.New("storage: key not found")

// ErrTxnConflict is returned by Update when the transaction lost a race
// with a concurrent commit touching the same keys. The work inside the
// transaction was discarded; callers may retry the whole read-modify-write
// cycle.
var ErrTxnConflict = errors.New("storage: transaction conflict")

// Txn is the operation set available inside a transaction. Implementations
// are not safe for concurrent use; a Txn must stay on the goroutine that
// received it and must not outlive its callback.
type Txn interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Set stages a write of key to value.
	Set(key string, value []byte) error

	// Delete stages removal of key. Deleting an absent key is not an
	// error.
	Delete(key string) error
}

// KeyValue is a transactional key-value store. View runs a read-only
// snapshot; Update runs a read-write transaction committed atomically when
// the callback returns nil. Update reports ErrTxnConflict when optimistic
// concurrency control rejects the commit.
//
// Implementations are safe for concurrent use.
type KeyValue interface {
	View(ctx context.Context, fn func(txn Txn) error) error
	Update(ctx context.Context, fn func(txn Txn) error) error
	Close() error
}
