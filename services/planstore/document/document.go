// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document implements the object-graph model for plan documents.
//
// A plan is a nested JSON document: a root "plan" object with a fixed tree
// of typed children (cost shares, plan services, services). For storage the
// tree is decomposed into one flat record per entity, keyed by
// "objectType:objectId", and rebuilt on read. The package also owns the
// canonical serialization used to derive strong ETags and the deep-merge
// algorithm used by partial updates.
//
// All functions treat documents as immutable: decomposition, reconstruction
// and merging never modify their inputs.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Entity type names as they appear in the objectType field.
const (
	TypePlan            = "plan"
	TypePlanService     = "planservice"
	TypeService         = "service"
	TypeMemberCostShare = "membercostshare"
)

// Well-known document fields.
const (
	FieldObjectID   = "objectId"
	FieldObjectType = "objectType"
)

// Metadata is the version information carried by the root record only.
// Children never version independently; any nested change rewrites the
// whole plan and advances the root's ETag.
type Metadata struct {
	ETag         string    `json:"etag"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// Record is the stored form of one entity. The root record embeds Metadata;
// child records leave it nil.
type Record struct {
	// Data holds the entity's own fields with child entities stripped out.
	Data map[string]any `json:"data"`

	// ParentID is the objectId of the enclosing entity, empty on the root.
	ParentID string `json:"parentId,omitempty"`

	// ObjectType mirrors the data's objectType field for key construction
	// and relationship lookup without parsing Data.
	ObjectType string `json:"objectType"`

	*Metadata
}

// IsRoot reports whether the record is the plan root.
func (r *Record) IsRoot() bool {
	return r.ParentID == ""
}

// ObjectID returns the record's objectId, or "" when Data is malformed.
func (r *Record) ObjectID() string {
	id, _ := r.Data[FieldObjectID].(string)
	return id
}

// Key returns the store key "objectType:objectId" for this record.
func (r *Record) Key() string {
	return RecordKey(r.ObjectType, r.ObjectID())
}

// RecordKey builds the store key for an entity.
func RecordKey(objectType, objectID string) string {
	return objectType + ":" + objectID
}

// EncodeRecord serializes a record for storage.
func EncodeRecord(r *Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.Key(), err)
	}
	return data, nil
}

// DecodeRecord parses a stored record. Numbers inside Data are decoded as
// json.Number so re-serialization and ETag computation are byte-stable.
func DecodeRecord(raw []byte) (*Record, error) {
	var r Record
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}

// Decode parses a JSON document into its map form. Numbers become
// json.Number, which keeps 0.5 and 0.50 distinct and avoids float64
// round-tripping artifacts in the canonical serialization.
func Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// DecodeValue parses arbitrary JSON (object, array, scalar, null) with the
// same number handling as Decode. Used for patch bodies, which are allowed
// to be any JSON value.
func DecodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// ObjectID extracts the objectId field from a document, or "" when absent
// or not a string.
func ObjectID(doc map[string]any) string {
	id, _ := doc[FieldObjectID].(string)
	return id
}

// ObjectType extracts the objectType field from a document, or "" when
// absent or not a string.
func ObjectType(doc map[string]any) string {
	t, _ := doc[FieldObjectType].(string)
	return t
}
