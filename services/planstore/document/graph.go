// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"fmt"
	"sort"
)

// edge identifies a parent/child relationship by the two objectType names.
type edge struct {
	child  string
	parent string
}

// relation describes how a child attaches to its parent on reconstruction:
// the field name it lives under and whether that field is an array.
type relation struct {
	field   string
	isArray bool
}

// relationTable is the complete tree shape of a plan, in the order children
// are visited during decomposition. A membercostshare plays two roles,
// distinguished only by its parent's type, which is why entries are keyed
// on the (child, parent) pair rather than the child type alone.
var relationTable = []struct {
	edge
	relation
}{
	{edge{child: TypeMemberCostShare, parent: TypePlan}, relation{field: "planCostShares"}},
	{edge{child: TypePlanService, parent: TypePlan}, relation{field: "linkedPlanServices", isArray: true}},
	{edge{child: TypeService, parent: TypePlanService}, relation{field: "linkedService"}},
	{edge{child: TypeMemberCostShare, parent: TypePlanService}, relation{field: "planserviceCostShares"}},
}

// relations indexes relationTable for (child, parent) lookup.
var relations = func() map[edge]relation {
	m := make(map[edge]relation, len(relationTable))
	for _, entry := range relationTable {
		m[entry.edge] = entry.relation
	}
	return m
}()

// Relation resolves the field placement for a child type under a parent
// type. The second return is false for pairs outside the plan tree shape.
func Relation(childType, parentType string) (field string, isArray bool, ok bool) {
	rel, ok := relations[edge{child: childType, parent: parentType}]
	return rel.field, rel.isArray, ok
}

// ObjectRef identifies one entity discovered during traversal.
type ObjectRef struct {
	// ID is the entity's objectId.
	ID string

	// Type is the entity's objectType.
	Type string

	// ParentID is the objectId of the nearest enclosing entity carrying
	// an objectId, empty for the root.
	ParentID string
}

// Key returns the store key for the referenced entity.
func (r ObjectRef) Key() string {
	return RecordKey(r.Type, r.ID)
}

// ExtractObjectIDs walks a document depth-first and collects a reference
// for every object carrying an objectId, the root included. Children are
// visited after their parent, object fields in sorted key order and array
// elements in positional order, so the result order is stable for a given
// document.
func ExtractObjectIDs(doc map[string]any) []ObjectRef {
	var refs []ObjectRef
	collectRefs(doc, "", &refs)
	return refs
}

func collectRefs(v any, parentID string, refs *[]ObjectRef) {
	switch val := v.(type) {
	case map[string]any:
		nextParent := parentID
		if id := ObjectID(val); id != "" {
			*refs = append(*refs, ObjectRef{
				ID:       id,
				Type:     ObjectType(val),
				ParentID: parentID,
			})
			nextParent = id
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectRefs(val[k], nextParent, refs)
		}
	case []any:
		for _, item := range val {
			collectRefs(item, parentID, refs)
		}
	}
}

// Flatten returns a copy of an entity's own fields with child entities
// stripped: any nested object carrying an objectId becomes a separate
// record, as does any array whose elements carry objectIds. Scalars and
// plain arrays stay with the entity.
func Flatten(entity map[string]any) map[string]any {
	flat := make(map[string]any, len(entity))
	for k, v := range entity {
		switch val := v.(type) {
		case map[string]any:
			if ObjectID(val) != "" {
				continue
			}
			flat[k] = deepCopy(val)
		case []any:
			if isEntityArray(val) {
				continue
			}
			flat[k] = deepCopy(val)
		default:
			flat[k] = v
		}
	}
	return flat
}

// isEntityArray reports whether an array holds child entities. A single
// objectId-bearing element is enough: plan arrays are homogeneous, and a
// mixed array would otherwise silently lose the entity elements.
func isEntityArray(items []any) bool {
	for _, item := range items {
		if m, ok := item.(map[string]any); ok && ObjectID(m) != "" {
			return true
		}
	}
	return false
}

// Decompose splits a nested plan document into flat records, one per
// entity, in depth-first order with the root first. The root record
// carries the supplied metadata.
//
// # Description
//
// Every object bearing an objectId becomes a Record whose Data is the
// Flatten of that object and whose ParentID names the enclosing entity.
// The traversal validates as it goes: each entity needs a non-empty
// objectId and objectType, keys must be unique within the document, and
// each child/parent type pair must exist in the plan tree shape.
//
// # Inputs
//
//	doc - The full nested document. Not modified.
//	meta - Version metadata stamped onto the root record.
//
// # Outputs
//
//	[]*Record - Records in depth-first order, root at index 0.
//	error - Non-nil when the document violates the tree shape.
func Decompose(doc map[string]any, meta Metadata) ([]*Record, error) {
	if ObjectID(doc) == "" {
		return nil, fmt.Errorf("document missing %s", FieldObjectID)
	}
	if ObjectType(doc) != TypePlan {
		return nil, fmt.Errorf("root %s must be %q, got %q", FieldObjectType, TypePlan, ObjectType(doc))
	}

	var records []*Record
	seen := make(map[string]bool)
	if err := decomposeEntity(doc, "", "", &records, seen); err != nil {
		return nil, err
	}
	records[0].Metadata = &meta
	return records, nil
}

func decomposeEntity(entity map[string]any, parentID, parentType string, records *[]*Record, seen map[string]bool) error {
	id := ObjectID(entity)
	objType := ObjectType(entity)
	if id == "" || objType == "" {
		return fmt.Errorf("entity under %q missing %s or %s", parentID, FieldObjectID, FieldObjectType)
	}
	if parentType != "" {
		if _, _, ok := Relation(objType, parentType); !ok {
			return fmt.Errorf("type %q cannot nest under %q", objType, parentType)
		}
	}

	key := RecordKey(objType, id)
	if seen[key] {
		return fmt.Errorf("duplicate entity key %s", key)
	}
	seen[key] = true

	*records = append(*records, &Record{
		Data:       Flatten(entity),
		ParentID:   parentID,
		ObjectType: objType,
	})

	// Visit children in relationTable order so record order is stable for
	// a given document. Array elements keep positional order. Values
	// without an objectId are plain data, already kept by Flatten.
	claimed := make(map[string]bool, 2)
	for _, entry := range relationTable {
		if entry.parent != objType {
			continue
		}
		rel := entry.relation
		claimed[rel.field] = true

		v, present := entity[rel.field]
		if !present || v == nil {
			continue
		}
		if rel.isArray {
			if m, ok := v.(map[string]any); ok && ObjectID(m) != "" {
				return fmt.Errorf("field %q of %s must be an array", rel.field, key)
			}
			items, ok := v.([]any)
			if !ok || !isEntityArray(items) {
				continue
			}
			for i, item := range items {
				child, ok := item.(map[string]any)
				if !ok || ObjectID(child) == "" {
					return fmt.Errorf("field %q[%d] of %s mixes entities with plain values", rel.field, i, key)
				}
				if err := decomposeEntity(child, id, objType, records, seen); err != nil {
					return err
				}
			}
		} else {
			if items, ok := v.([]any); ok && isEntityArray(items) {
				return fmt.Errorf("field %q of %s must be a single object", rel.field, key)
			}
			child, ok := v.(map[string]any)
			if !ok || ObjectID(child) == "" {
				continue
			}
			if err := decomposeEntity(child, id, objType, records, seen); err != nil {
				return err
			}
		}
	}

	// Flatten strips every objectId-bearing value; anything stripped from
	// a field the tree shape does not name would be lost on read, so
	// reject it here instead.
	for k, v := range entity {
		if claimed[k] {
			continue
		}
		if m, ok := v.(map[string]any); ok && ObjectID(m) != "" {
			return fmt.Errorf("unexpected entity under field %q of %s", k, key)
		}
		if items, ok := v.([]any); ok && isEntityArray(items) {
			return fmt.Errorf("unexpected entity array under field %q of %s", k, key)
		}
	}
	return nil
}

// Reconstruct rebuilds the nested document from its flat records.
//
// # Description
//
// Builds a parent index and reassembles depth-first from the root record.
// Records are attached under the field named by the relations table;
// array children append in the order the records were supplied, which the
// store keeps equal to original decomposition order. Malformed records
// (nil data, missing objectId, a type pair outside the tree shape) are
// skipped so one corrupt child cannot take down reads of the whole plan.
//
// # Inputs
//
//	records - The plan's records in stored order. Not modified.
//
// # Outputs
//
//	map[string]any - The nested document, nil when no root record exists.
//	*Metadata - The root's version metadata, nil when no root exists.
func Reconstruct(records []*Record) (map[string]any, *Metadata) {
	var root *Record
	children := make(map[string][]*Record)

	for _, r := range records {
		if r == nil || r.Data == nil || r.ObjectID() == "" {
			continue
		}
		if r.IsRoot() {
			if root == nil {
				root = r
			}
			continue
		}
		children[r.ParentID] = append(children[r.ParentID], r)
	}
	if root == nil {
		return nil, nil
	}

	visited := make(map[string]bool)
	doc := assemble(root, children, visited)

	meta := root.Metadata
	if meta != nil {
		copied := *meta
		meta = &copied
	}
	return doc, meta
}

func assemble(r *Record, children map[string][]*Record, visited map[string]bool) map[string]any {
	key := r.Key()
	if visited[key] {
		return nil
	}
	visited[key] = true

	doc := deepCopyMap(r.Data)
	for _, child := range children[r.ObjectID()] {
		field, isArray, ok := Relation(child.ObjectType, r.ObjectType)
		if !ok {
			continue
		}
		childDoc := assemble(child, children, visited)
		if childDoc == nil {
			continue
		}
		if isArray {
			existing, _ := doc[field].([]any)
			doc[field] = append(existing, childDoc)
		} else {
			doc[field] = childDoc
		}
	}
	return doc
}
