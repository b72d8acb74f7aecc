// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("storage: store is closed")

// errReadOnlyTxn is returned when a View callback attempts a write.
var errReadOnlyTxn = errors.New("storage: read-only transaction")

// MemoryStore implements KeyValue on a plain map. Update transactions are
// serialized by a mutex, so genuine commit conflicts cannot occur; tests
// that need to exercise conflict handling inject one through CommitHook.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool

	// CommitHook, when set, runs after the Update callback succeeds and
	// before buffered writes are applied. Returning an error aborts the
	// commit with that error.
	CommitHook func() error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// memTxn buffers writes so a failed callback leaves the store untouched.
type memTxn struct {
	store    *MemoryStore
	readOnly bool
	writes   map[string][]byte
	deletes  map[string]struct{}
}

func (t *memTxn) Get(key string) ([]byte, error) {
	if !t.readOnly {
		if value, ok := t.writes[key]; ok {
			return append([]byte(nil), value...), nil
		}
		if _, ok := t.deletes[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
	}
	value, ok := t.store.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return append([]byte(nil), value...), nil
}

func (t *memTxn) Set(key string, value []byte) error {
	if t.readOnly {
		return errReadOnlyTxn
	}
	t.writes[key] = append([]byte(nil), value...)
	delete(t.deletes, key)
	return nil
}

func (t *memTxn) Delete(key string) error {
	if t.readOnly {
		return errReadOnlyTxn
	}
	t.deletes[key] = struct{}{}
	delete(t.writes, key)
	return nil
}

// View runs fn against a read-only snapshot.
func (s *MemoryStore) View(ctx context.Context, fn func(txn Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	return fn(&memTxn{store: s, readOnly: true})
}

// Update runs fn with buffered writes and applies them atomically when fn
// and the CommitHook (if any) both return nil.
func (s *MemoryStore) Update(ctx context.Context, fn func(txn Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	txn := &memTxn{
		store:   s,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
	if err := fn(txn); err != nil {
		return err
	}
	if s.CommitHook != nil {
		if err := s.CommitHook(); err != nil {
			return err
		}
	}

	for key, value := range txn.writes {
		s.data[key] = value
	}
	for key := range txn.deletes {
		delete(s.data, key)
	}
	return nil
}

// Len reports the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close marks the store closed. Further transactions fail with
// ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ KeyValue = (*MemoryStore)(nil)
