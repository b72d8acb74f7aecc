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

// Merge deep-merges a patch into a target document and returns the result.
// Neither input is modified.
//
// # Description
//
// The rules follow merge-patch semantics with one extension for entity
// arrays:
//
//   - A non-object patch replaces the target entirely. That includes
//     null, which overwrites the existing value.
//   - An object patch merges key by key: keys absent from the patch keep
//     their target value, keys present recurse.
//   - An array whose elements all carry objectIds merges by objectId:
//     a patch item matching an existing item deep-merges into it, fields
//     the patch item omits survive, unmatched patch items append. Order
//     is existing items first, then appended ones.
//   - Any other array replaces the target array wholesale.
//
// The by-id rule is what lets a caller patch a single linkedPlanServices
// entry, changing one copay three levels deep, without resending the rest
// of the array.
func Merge(target, patch any) any {
	patchMap, ok := patch.(map[string]any)
	if !ok {
		return deepCopy(patch)
	}
	targetMap, ok := target.(map[string]any)
	if !ok {
		return deepCopy(patch)
	}
	return mergeMaps(targetMap, patchMap)
}

func mergeMaps(target, patch map[string]any) map[string]any {
	result := make(map[string]any, len(target)+len(patch))
	for k, v := range target {
		result[k] = deepCopy(v)
	}
	for k, patchVal := range patch {
		targetVal, exists := result[k]
		if !exists {
			result[k] = deepCopy(patchVal)
			continue
		}

		patchItems, patchIsArray := patchVal.([]any)
		targetItems, targetIsArray := targetVal.([]any)
		if patchIsArray && targetIsArray && identifiable(patchItems) && identifiable(targetItems) {
			result[k] = mergeEntityArrays(targetItems, patchItems)
			continue
		}

		result[k] = Merge(targetVal, patchVal)
	}
	return result
}

// mergeEntityArrays merges two arrays of objectId-bearing items by id.
// target was already deep-copied by the caller.
func mergeEntityArrays(target, patch []any) []any {
	index := make(map[string]int, len(target))
	for i, item := range target {
		m := item.(map[string]any)
		index[ObjectID(m)] = i
	}

	for _, item := range patch {
		m := item.(map[string]any)
		if i, ok := index[ObjectID(m)]; ok {
			target[i] = Merge(target[i], m)
		} else {
			target = append(target, deepCopy(m))
		}
	}
	return target
}

// identifiable reports whether every element of an array is an object with
// a non-empty string objectId. Arrays failing this are not mergeable by id
// and fall back to wholesale replacement.
func identifiable(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok || ObjectID(m) == "" {
			return false
		}
	}
	return true
}

// deepCopy clones a decoded JSON value. Scalars are immutable and shared.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}
