// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/document"
)

// indexPlanJSON is a compact plan with one service for builder tests.
const indexPlanJSON = `{
	"planCostShares": {
		"deductible": 2000,
		"_org": "example.com",
		"copay": 23,
		"objectId": "cs-1",
		"objectType": "membercostshare"
	},
	"linkedPlanServices": [
		{
			"linkedService": {
				"_org": "example.com",
				"objectId": "svc-1",
				"objectType": "service",
				"name": "Yearly physical"
			},
			"planserviceCostShares": {
				"deductible": 10,
				"_org": "example.com",
				"copay": 0.50,
				"objectId": "pscs-1",
				"objectType": "membercostshare"
			},
			"_org": "example.com",
			"objectId": "ps-1",
			"objectType": "planservice"
		}
	],
	"_org": "example.com",
	"objectId": "plan-1",
	"objectType": "plan",
	"planType": "inPatient",
	"creationDate": "12-12-2017"
}`

func decodeIndexPlan(t *testing.T) []*document.Record {
	t.Helper()
	doc, err := document.Decode([]byte(indexPlanJSON))
	require.NoError(t, err)
	records, err := document.Decompose(doc, document.Metadata{})
	require.NoError(t, err)
	return records
}

func propertyNames(class *models.Class) map[string]*models.Property {
	props := make(map[string]*models.Property, len(class.Properties))
	for _, p := range class.Properties {
		props[p.Name] = p
	}
	return props
}

// TestPlanClass verifies the root class shape.
func TestPlanClass(t *testing.T) {
	class := planClass()
	assert.Equal(t, "Plan", class.Class)
	assert.Equal(t, "none", class.Vectorizer)

	props := propertyNames(class)
	require.Contains(t, props, "planId")
	assert.Equal(t, []string{"text"}, props["planId"].DataType)
	assert.Equal(t, "field", props["planId"].Tokenization)
	require.NotNil(t, props["planId"].IndexFilterable)
	assert.True(t, *props["planId"].IndexFilterable)

	require.Contains(t, props, "content")
	assert.Equal(t, "word", props["content"].Tokenization)
}

// TestMemberClass verifies the member class shape and its back-reference.
func TestMemberClass(t *testing.T) {
	class := memberClass()
	assert.Equal(t, "PlanMember", class.Class)

	props := propertyNames(class)
	for _, name := range []string{"planId", "objectId", "objectType", "parentId"} {
		require.Contains(t, props, name)
		assert.Equal(t, "field", props[name].Tokenization)
	}

	require.Contains(t, props, "copay")
	assert.Equal(t, []string{"number"}, props["copay"].DataType)
	require.Contains(t, props, "deductible")
	assert.Equal(t, []string{"number"}, props["deductible"].DataType)

	require.Contains(t, props, "belongsToPlan")
	assert.Equal(t, []string{"Plan"}, props["belongsToPlan"].DataType)
}

// TestPlanProperties verifies root property extraction.
func TestPlanProperties(t *testing.T) {
	records := decodeIndexPlan(t)
	props := planProperties("plan-1", records[0].Data)

	assert.Equal(t, "plan-1", props["planId"])
	assert.Equal(t, "inPatient", props["planType"])
	assert.Equal(t, "12-12-2017", props["creationDate"])
	assert.Equal(t, "example.com", props["org"])

	content, ok := props["content"].(string)
	require.True(t, ok)
	assert.Contains(t, content, `"planType":"inPatient"`)
}

// TestMemberObjects verifies one object per child entity with beacons to
// the root.
func TestMemberObjects(t *testing.T) {
	records := decodeIndexPlan(t)
	objects := memberObjects("plan-1", "uuid-123", records[1:])
	require.Len(t, objects, 4)

	byID := make(map[string]map[string]any, len(objects))
	for _, obj := range objects {
		assert.Equal(t, "PlanMember", obj.Class)
		props := obj.Properties.(map[string]any)
		assert.Equal(t, "plan-1", props["planId"])

		beacons, ok := props["belongsToPlan"].([]beaconRef)
		require.True(t, ok)
		require.Len(t, beacons, 1)
		assert.Equal(t, "weaviate://localhost/Plan/uuid-123", beacons[0].Beacon)

		byID[props["objectId"].(string)] = props
	}

	costShare := byID["cs-1"]
	assert.Equal(t, "membercostshare", costShare["objectType"])
	assert.Equal(t, "plan-1", costShare["parentId"])
	assert.Equal(t, 23.0, costShare["copay"])
	assert.Equal(t, 2000.0, costShare["deductible"])

	service := byID["svc-1"]
	assert.Equal(t, "Yearly physical", service["name"])
	assert.Equal(t, "ps-1", service["parentId"])

	nested := byID["pscs-1"]
	assert.Equal(t, 0.5, nested["copay"])
}

// TestMemberObjects_NoRootUUID verifies beacons are omitted when the root
// object id is unknown.
func TestMemberObjects_NoRootUUID(t *testing.T) {
	records := decodeIndexPlan(t)
	objects := memberObjects("plan-1", "", records[1:])
	require.NotEmpty(t, objects)

	props := objects[0].Properties.(map[string]any)
	_, present := props["belongsToPlan"]
	assert.False(t, present)
}

// TestToFloat verifies number coercion for index properties.
func TestToFloat(t *testing.T) {
	v, ok := toFloat(json.Number("0.50"))
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)

	v, ok = toFloat(float64(7))
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = toFloat("not a number")
	assert.False(t, ok)

	_, ok = toFloat(nil)
	assert.False(t, ok)

	_, ok = toFloat(json.Number("xyz"))
	assert.False(t, ok)
}

// TestNewClient verifies URL parsing for all accepted forms.
func TestNewClient(t *testing.T) {
	for _, url := range []string{
		"localhost:8080",
		"http://localhost:8080",
		"https://weaviate.internal:443",
	} {
		client, err := NewClient(url)
		require.NoError(t, err, url)
		assert.NotNil(t, client, url)
	}
}
