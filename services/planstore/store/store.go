// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store composes the document codecs into plan-level
// create/get/patch/delete operations against a transactional key-value
// store.
//
// Every mutation is optimistic: it reads the current state, computes the
// new record set, and commits only if nothing it read changed underneath
// it. Commit races are retried a bounded number of times with jittered
// backoff; caller-visible precondition failures are never retried.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/document"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/storage"
)

var tracer = otel.Tracer("planstore.store")

// indexPrefix namespaces per-plan membership records away from entity
// records.
const indexPrefix = "planindex:"

func indexKey(planID string) string {
	return indexPrefix + planID
}

// membership is the stored per-plan index: the key of every record
// belonging to the plan, in decomposition order with the root first.
// Reads fetch exactly these keys instead of scanning the store, and the
// ordering preserves linkedPlanServices order across reconstruction.
type membership struct {
	Keys []string `json:"keys"`
}

// PlanStore persists hierarchical plan documents as flat per-entity
// records plus a membership index, guarded by compare-and-swap writes.
//
// Thread Safety: safe for concurrent use. Operations against the same
// plan are linearized by the storage layer's transaction conflict
// detection; operations on different plans are independent.
type PlanStore struct {
	kv       storage.KeyValue
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// New constructs a PlanStore on the given storage handle. The handle is
// injected so tests can substitute an in-memory store; nothing here holds
// a process-wide connection. A nil notifier disables change events.
func New(kv storage.KeyValue, notifier Notifier, logger *logging.Logger) *PlanStore {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PlanStore{
		kv:       kv,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Result reports the outcome of a successful create or patch.
type Result struct {
	PlanID       string
	ETag         string
	Document     map[string]any
	CreatedAt    time.Time
	LastModified time.Time
}

// Create persists a new plan document. The document must carry a root
// objectId and decompose cleanly into typed records; the existence check
// runs inside the write transaction so two racing creates of the same id
// cannot both pass it.
func (s *PlanStore) Create(ctx context.Context, doc map[string]any) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "PlanStore.Create")
	defer func() {
		endSpan(span, err)
		recordOperation("create", err)
	}()

	planID := document.ObjectID(doc)
	if planID == "" {
		return nil, fmt.Errorf("%w: document has no objectId", ErrBadRequest)
	}
	span.SetAttributes(attribute.String("plan_id", planID))

	etag, err := document.ComputeETag(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	now := s.now().UTC()
	meta := document.Metadata{ETag: etag, CreatedAt: now, LastModified: now}

	records, err := document.Decompose(doc, meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	rootKey := document.RecordKey(document.TypePlan, planID)
	err = s.commit(ctx, func(txn storage.Txn) error {
		_, err := txn.Get(rootKey)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrConflict, planID)
		}
		if !errors.Is(err, storage.ErrKeyNotFound) {
			return err
		}
		return writeRecords(txn, planID, records)
	})
	if errors.Is(err, errCASExhausted) {
		err = fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ChangeEvent{Op: OpIndex, PlanID: planID, Document: doc})
	s.logger.Info("plan created",
		"planId", planID,
		"etag", etag,
		"records", len(records))
	return &Result{
		PlanID:       planID,
		ETag:         etag,
		Document:     doc,
		CreatedAt:    now,
		LastModified: now,
	}, nil
}

// Get reconstructs a plan from its stored records. A nil document with a
// nil error means the plan does not exist; absence is not an error at
// this layer.
func (s *PlanStore) Get(ctx context.Context, planID string) (doc map[string]any, meta *document.Metadata, err error) {
	ctx, span := tracer.Start(ctx, "PlanStore.Get",
		trace.WithAttributes(attribute.String("plan_id", planID)))
	defer func() {
		endSpan(span, err)
		recordGet(doc, err)
	}()

	err = s.kv.View(ctx, func(txn storage.Txn) error {
		records, _, err := s.readPlan(txn, planID)
		if err != nil || records == nil {
			return err
		}
		doc, meta = document.Reconstruct(records)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return doc, meta, nil
}

// Patch merges a partial update into an existing plan and rewrites its
// record set. The ifMatch token is required and compared strongly against
// the stored ETag before any merge happens. Entities that fall out of the
// document, for example through a null overwrite, have their records
// deleted in the same transaction.
func (s *PlanStore) Patch(ctx context.Context, planID string, patch any, ifMatch string) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "PlanStore.Patch",
		trace.WithAttributes(attribute.String("plan_id", planID)))
	defer func() {
		endSpan(span, err)
		recordOperation("patch", err)
	}()

	if ifMatch == "" {
		return nil, fmt.Errorf("%w: patch requires an If-Match token", ErrPreconditionRequired)
	}
	patchMap, ok := patch.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: patch body must be a JSON object", ErrBadRequest)
	}
	if id := document.ObjectID(patchMap); id != "" && id != planID {
		return nil, fmt.Errorf("%w: patch objectId %q does not match plan %q", ErrBadRequest, id, planID)
	}
	if t := document.ObjectType(patchMap); t != "" && t != document.TypePlan {
		return nil, fmt.Errorf("%w: patch objectType must be %q", ErrBadRequest, document.TypePlan)
	}

	var result *Result
	err = s.commit(ctx, func(txn storage.Txn) error {
		records, idx, err := s.readPlan(txn, planID)
		if err != nil {
			return err
		}
		if records == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, planID)
		}
		current, meta := document.Reconstruct(records)
		if current == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, planID)
		}
		if meta == nil {
			return fmt.Errorf("plan %s root record has no version metadata", planID)
		}
		if !document.ETagMatch(ifMatch, meta.ETag) {
			return fmt.Errorf("%w: plan %s is at %s", ErrPreconditionFailed, planID, meta.ETag)
		}

		merged, ok := document.Merge(current, patchMap).(map[string]any)
		if !ok {
			return fmt.Errorf("%w: merge did not produce an object", ErrBadRequest)
		}
		etag, err := document.ComputeETag(merged)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}

		now := s.now().UTC()
		newMeta := document.Metadata{ETag: etag, CreatedAt: meta.CreatedAt, LastModified: now}
		newRecords, err := document.Decompose(merged, newMeta)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}

		if err := deleteStale(txn, idx.Keys, newRecords); err != nil {
			return err
		}
		if err := writeRecords(txn, planID, newRecords); err != nil {
			return err
		}

		result = &Result{
			PlanID:       planID,
			ETag:         etag,
			Document:     merged,
			CreatedAt:    newMeta.CreatedAt,
			LastModified: now,
		}
		return nil
	})
	if errors.Is(err, errCASExhausted) {
		err = fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ChangeEvent{Op: OpUpdate, PlanID: planID, Document: result.Document})
	s.logger.Info("plan patched",
		"planId", planID,
		"etag", result.ETag)
	return result, nil
}

// Delete removes the plan root, every member record, and the membership
// index in one transaction. Requires an ifMatch token under the same
// precondition rules as Patch.
func (s *PlanStore) Delete(ctx context.Context, planID string, ifMatch string) (err error) {
	ctx, span := tracer.Start(ctx, "PlanStore.Delete",
		trace.WithAttributes(attribute.String("plan_id", planID)))
	defer func() {
		endSpan(span, err)
		recordOperation("delete", err)
	}()

	if ifMatch == "" {
		return fmt.Errorf("%w: delete requires an If-Match token", ErrPreconditionRequired)
	}

	err = s.commit(ctx, func(txn storage.Txn) error {
		records, idx, err := s.readPlan(txn, planID)
		if err != nil {
			return err
		}
		if records == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, planID)
		}
		doc, meta := document.Reconstruct(records)
		if doc == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, planID)
		}
		if meta == nil {
			return fmt.Errorf("plan %s root record has no version metadata", planID)
		}
		if !document.ETagMatch(ifMatch, meta.ETag) {
			return fmt.Errorf("%w: plan %s is at %s", ErrPreconditionFailed, planID, meta.ETag)
		}

		for _, key := range idx.Keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete record %s: %w", key, err)
			}
		}
		return txn.Delete(indexKey(planID))
	})
	if errors.Is(err, errCASExhausted) {
		err = fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
	}
	if err != nil {
		return err
	}

	s.notifier.Notify(ChangeEvent{Op: OpDelete, PlanID: planID})
	s.logger.Info("plan deleted", "planId", planID)
	return nil
}

// readPlan loads a plan's records through its membership index. Returns
// nil records with a nil error when the plan is absent. Member records
// that are missing or undecodable are skipped so one corrupt record
// cannot take the whole plan offline.
func (s *PlanStore) readPlan(txn storage.Txn, planID string) ([]*document.Record, *membership, error) {
	raw, err := txn.Get(indexKey(planID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var idx membership
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, nil, fmt.Errorf("decode membership index for %s: %w", planID, err)
	}

	records := make([]*document.Record, 0, len(idx.Keys))
	for _, key := range idx.Keys {
		value, err := txn.Get(key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Warn("membership index references missing record",
				"planId", planID,
				"key", key)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		rec, err := document.DecodeRecord(value)
		if err != nil {
			s.logger.Warn("skipping undecodable record",
				"planId", planID,
				"key", key,
				"error", err.Error())
			continue
		}
		records = append(records, rec)
	}
	return records, &idx, nil
}

// writeRecords stores every record plus the membership index for the
// plan.
func writeRecords(txn storage.Txn, planID string, records []*document.Record) error {
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		raw, err := document.EncodeRecord(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(rec.Key(), raw); err != nil {
			return fmt.Errorf("write record %s: %w", rec.Key(), err)
		}
		keys = append(keys, rec.Key())
	}

	idx, err := json.Marshal(membership{Keys: keys})
	if err != nil {
		return fmt.Errorf("encode membership index for %s: %w", planID, err)
	}
	if err := txn.Set(indexKey(planID), idx); err != nil {
		return fmt.Errorf("write membership index for %s: %w", planID, err)
	}
	return nil
}

// endSpan closes an operation span, marking it failed when err is
// non-nil.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// deleteStale removes records whose keys fall out of the plan after a
// merge.
func deleteStale(txn storage.Txn, oldKeys []string, newRecords []*document.Record) error {
	keep := make(map[string]bool, len(newRecords))
	for _, rec := range newRecords {
		keep[rec.Key()] = true
	}
	for _, key := range oldKeys {
		if keep[key] {
			continue
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete stale record %s: %w", key, err)
		}
	}
	return nil
}
