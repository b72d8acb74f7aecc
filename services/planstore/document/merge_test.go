// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Scalar and Object Merge Tests
// =============================================================================

func TestMerge_NonObjectPatchReplaces(t *testing.T) {
	target := map[string]any{"a": json.Number("1")}

	assert.Equal(t, "replaced", Merge(target, "replaced"))
	assert.Equal(t, json.Number("42"), Merge(target, json.Number("42")))
	assert.Nil(t, Merge(target, nil))
}

func TestMerge_NullValueOverwrites(t *testing.T) {
	target := map[string]any{"keep": "x", "drop": "y"}
	patch := map[string]any{"drop": nil}

	result := Merge(target, patch).(map[string]any)
	assert.Equal(t, "x", result["keep"])

	v, present := result["drop"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestMerge_PreservesAbsentKeys(t *testing.T) {
	target := map[string]any{"planType": "inPatient", "creationDate": "12-12-2017"}
	patch := map[string]any{"planType": "outPatient"}

	result := Merge(target, patch).(map[string]any)
	assert.Equal(t, "outPatient", result["planType"])
	assert.Equal(t, "12-12-2017", result["creationDate"])
}

func TestMerge_NestedObjects(t *testing.T) {
	target := map[string]any{
		"planCostShares": map[string]any{
			"deductible": json.Number("2000"),
			"copay":      json.Number("23"),
		},
	}
	patch := map[string]any{
		"planCostShares": map[string]any{"copay": json.Number("30")},
	}

	result := Merge(target, patch).(map[string]any)
	cs := result["planCostShares"].(map[string]any)
	assert.Equal(t, json.Number("30"), cs["copay"])
	assert.Equal(t, json.Number("2000"), cs["deductible"])
}

func TestMerge_AddsNewKeys(t *testing.T) {
	target := map[string]any{"a": "1"}
	patch := map[string]any{"b": map[string]any{"c": "2"}}

	result := Merge(target, patch).(map[string]any)
	assert.Equal(t, "1", result["a"])
	assert.Equal(t, map[string]any{"c": "2"}, result["b"])
}

func TestMerge_ObjectPatchOverNonObjectTarget(t *testing.T) {
	result := Merge("scalar", map[string]any{"a": "1"})
	assert.Equal(t, map[string]any{"a": "1"}, result)
}

// =============================================================================
// Array Merge Tests
// =============================================================================

func TestMerge_PlainArraysReplaceWholesale(t *testing.T) {
	target := map[string]any{"tags": []any{"a", "b", "c"}}
	patch := map[string]any{"tags": []any{"z"}}

	result := Merge(target, patch).(map[string]any)
	assert.Equal(t, []any{"z"}, result["tags"])
}

func TestMerge_EntityArrayMergesById(t *testing.T) {
	original := samplePlan(t)

	// Patch only the second service's nested cost share copay.
	patch, err := Decode([]byte(`{
		"linkedPlanServices": [
			{
				"objectId": "27283xvx9sdf-507",
				"planserviceCostShares": {"copay": 200}
			}
		]
	}`))
	require.NoError(t, err)

	result := Merge(original, patch).(map[string]any)
	services := result["linkedPlanServices"].([]any)
	require.Len(t, services, 2)

	// First service untouched.
	first := services[0].(map[string]any)
	assert.Equal(t, "27283xvx9asdff-504", first[FieldObjectID])
	firstCS := first["planserviceCostShares"].(map[string]any)
	assert.Equal(t, json.Number("0"), firstCS["copay"])

	// Second service: copay changed, siblings intact.
	second := services[1].(map[string]any)
	secondCS := second["planserviceCostShares"].(map[string]any)
	assert.Equal(t, json.Number("200"), secondCS["copay"])
	assert.Equal(t, json.Number("10"), secondCS["deductible"])
	linked := second["linkedService"].(map[string]any)
	assert.Equal(t, "well baby check-up", linked["name"])
}

func TestMerge_EntityArrayAppendsUnmatched(t *testing.T) {
	original := samplePlan(t)

	patch, err := Decode([]byte(`{
		"linkedPlanServices": [
			{
				"_org": "example.com",
				"objectId": "27283xvx9fs-509",
				"objectType": "planservice",
				"linkedService": {
					"_org": "example.com",
					"objectId": "1234520xvc30sdf-510",
					"objectType": "service",
					"name": "dental checkup"
				},
				"planserviceCostShares": {
					"deductible": 5,
					"_org": "example.com",
					"copay": 30,
					"objectId": "1234512xvc1314sdxsd-511",
					"objectType": "membercostshare"
				}
			}
		]
	}`))
	require.NoError(t, err)

	result := Merge(original, patch).(map[string]any)
	services := result["linkedPlanServices"].([]any)
	require.Len(t, services, 3)

	// Target order first, appended item last.
	assert.Equal(t, "27283xvx9asdff-504", services[0].(map[string]any)[FieldObjectID])
	assert.Equal(t, "27283xvx9sdf-507", services[1].(map[string]any)[FieldObjectID])
	assert.Equal(t, "27283xvx9fs-509", services[2].(map[string]any)[FieldObjectID])
}

func TestMerge_ArrayWithoutIdsReplaces(t *testing.T) {
	target := map[string]any{
		"entries": []any{
			map[string]any{FieldObjectID: "a", "v": "1"},
			map[string]any{FieldObjectID: "b", "v": "2"},
		},
	}
	// One patch element lacks an objectId, so the whole array is not
	// id-mergeable and replaces the target.
	patch := map[string]any{
		"entries": []any{
			map[string]any{"v": "3"},
		},
	}

	result := Merge(target, patch).(map[string]any)
	assert.Equal(t, []any{map[string]any{"v": "3"}}, result["entries"])
}

func TestMerge_EmptyPatchArrayReplaces(t *testing.T) {
	target := map[string]any{
		"entries": []any{map[string]any{FieldObjectID: "a"}},
	}
	patch := map[string]any{"entries": []any{}}

	result := Merge(target, patch).(map[string]any)
	assert.Empty(t, result["entries"])
}

// =============================================================================
// Immutability Tests
// =============================================================================

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	target := samplePlan(t)
	targetTag, err := ComputeETag(target)
	require.NoError(t, err)

	patch, err := Decode([]byte(`{
		"planType": "outPatient",
		"planCostShares": {"copay": 99},
		"linkedPlanServices": [
			{"objectId": "27283xvx9asdff-504", "_org": "changed.example.com"}
		]
	}`))
	require.NoError(t, err)
	patchTag, err := ComputeETag(patch)
	require.NoError(t, err)

	_ = Merge(target, patch)

	afterTarget, err := ComputeETag(target)
	require.NoError(t, err)
	afterPatch, err := ComputeETag(patch)
	require.NoError(t, err)
	assert.Equal(t, targetTag, afterTarget)
	assert.Equal(t, patchTag, afterPatch)
}

func TestMerge_ResultIndependentOfTarget(t *testing.T) {
	target := map[string]any{"nested": map[string]any{"a": "1"}}
	result := Merge(target, map[string]any{}).(map[string]any)

	result["nested"].(map[string]any)["a"] = "mutated"
	assert.Equal(t, "1", target["nested"].(map[string]any)["a"])
}

// =============================================================================
// Full Document Patch Tests
// =============================================================================

func TestMerge_FullPlanPatchRoundTrip(t *testing.T) {
	// Merging, decomposing, and reconstructing a patched plan must agree.
	original := samplePlan(t)
	patch, err := Decode([]byte(`{
		"planType": "outPatient",
		"linkedPlanServices": [
			{
				"objectId": "27283xvx9asdff-504",
				"planserviceCostShares": {"copay": 50}
			}
		]
	}`))
	require.NoError(t, err)

	merged := Merge(original, patch).(map[string]any)
	records, err := Decompose(merged, sampleMeta())
	require.NoError(t, err)

	rebuilt, _ := Reconstruct(records)
	assert.Equal(t, merged, rebuilt)
	assert.Equal(t, "outPatient", rebuilt["planType"])
}
