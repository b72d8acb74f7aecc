// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package document

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Canonical Serialization Tests
// =============================================================================

func TestMarshalCanonical_SortsKeysRecursively(t *testing.T) {
	doc, err := Decode([]byte(`{"b":1,"a":{"z":true,"m":[{"k":2,"c":3}]}}`))
	require.NoError(t, err)

	out, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"m":[{"c":3,"k":2}],"z":true},"b":1}`, string(out))
}

func TestMarshalCanonical_PreservesArrayOrder(t *testing.T) {
	doc, err := Decode([]byte(`{"items":[3,1,2]}`))
	require.NoError(t, err)

	out, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[3,1,2]}`, string(out))
}

func TestMarshalCanonical_NumberFidelity(t *testing.T) {
	// UseNumber decoding must keep the source representation so hashes
	// are stable across store round trips.
	doc, err := Decode([]byte(`{"copay":0.50,"deductible":2000}`))
	require.NoError(t, err)

	out, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"copay":0.50,"deductible":2000}`, string(out))
}

func TestMarshalCanonical_Idempotent(t *testing.T) {
	doc, err := Decode([]byte(`{"b":{"d":4,"c":[1,2]},"a":null}`))
	require.NoError(t, err)

	first, err := MarshalCanonical(doc)
	require.NoError(t, err)

	reparsed, err := Decode(first)
	require.NoError(t, err)
	second, err := MarshalCanonical(reparsed)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

// =============================================================================
// ETag Tests
// =============================================================================

func TestComputeETag_KeyOrderInvariant(t *testing.T) {
	docA, err := Decode([]byte(`{"objectId":"p1","objectType":"plan","planType":"inPatient"}`))
	require.NoError(t, err)
	docB, err := Decode([]byte(`{"planType":"inPatient","objectType":"plan","objectId":"p1"}`))
	require.NoError(t, err)

	tagA, err := ComputeETag(docA)
	require.NoError(t, err)
	tagB, err := ComputeETag(docB)
	require.NoError(t, err)

	assert.Equal(t, tagA, tagB)
}

func TestComputeETag_ContentSensitive(t *testing.T) {
	docA, err := Decode([]byte(`{"objectId":"p1","copay":10}`))
	require.NoError(t, err)
	docB, err := Decode([]byte(`{"objectId":"p1","copay":11}`))
	require.NoError(t, err)

	tagA, err := ComputeETag(docA)
	require.NoError(t, err)
	tagB, err := ComputeETag(docB)
	require.NoError(t, err)

	assert.NotEqual(t, tagA, tagB)
}

func TestComputeETag_ArrayOrderChangesTag(t *testing.T) {
	// Array order is significant content: reordering is a real change.
	docA, err := Decode([]byte(`{"ids":["a","b"]}`))
	require.NoError(t, err)
	docB, err := Decode([]byte(`{"ids":["b","a"]}`))
	require.NoError(t, err)

	tagA, err := ComputeETag(docA)
	require.NoError(t, err)
	tagB, err := ComputeETag(docB)
	require.NoError(t, err)

	assert.NotEqual(t, tagA, tagB)
}

func TestComputeETag_StrongFormat(t *testing.T) {
	doc, err := Decode([]byte(`{"objectId":"p1"}`))
	require.NoError(t, err)

	tag, err := ComputeETag(doc)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^"[0-9a-f]{64}"$`), tag)
}

// =============================================================================
// ETag Comparison Tests
// =============================================================================

func TestETagMatch(t *testing.T) {
	current := `"abc123"`

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"exact quoted", `"abc123"`, true},
		{"bare value", `abc123`, true},
		{"wildcard", `*`, true},
		{"list with match", `"zzz", "abc123"`, true},
		{"list without match", `"zzz", "yyy"`, false},
		{"weak never matches strongly", `W/"abc123"`, false},
		{"mismatch", `"def456"`, false},
		{"empty", ``, false},
		{"surrounding space", `  "abc123"  `, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ETagMatch(tt.candidate, current))
		})
	}
}

func TestETagMatchWeak(t *testing.T) {
	current := `"abc123"`

	assert.True(t, ETagMatchWeak(`W/"abc123"`, current))
	assert.True(t, ETagMatchWeak(`"abc123"`, current))
	assert.True(t, ETagMatchWeak(`*`, current))
	assert.False(t, ETagMatchWeak(`W/"zzz"`, current))
}
