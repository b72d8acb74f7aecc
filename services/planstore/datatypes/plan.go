// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the planstore service.
//
// The typed plan shapes here exist for schema validation at the HTTP
// boundary; the store itself works on the decoded map form so unknown
// fields survive a round trip untouched.
package datatypes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// planValidate is the validator instance for plan datatypes. Initialized
// in init() with custom validators.
var planValidate *validator.Validate

func init() {
	planValidate = validator.New()

	_ = planValidate.RegisterValidation("objectid", validateObjectID)
	_ = planValidate.RegisterValidation("nonnegative", validateNonNegative)
}

// validateObjectID rejects ids that would corrupt the record key format.
// Keys are "objectType:objectId", so a colon inside an id would make the
// key ambiguous; whitespace is rejected for the same hygiene reason.
func validateObjectID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, ": \t\r\n")
}

// validateNonNegative checks that a json.Number field parses as a number
// greater than or equal to zero. Plain gte tags compare string length on
// string-kinded fields, which json.Number is.
func validateNonNegative(fl validator.FieldLevel) bool {
	n, err := json.Number(fl.Field().String()).Float64()
	if err != nil {
		return false
	}
	return n >= 0
}

// =============================================================================
// Plan Document Types
// =============================================================================

// CostShare is a leaf entity holding deductible and copay amounts. It
// appears in two roles, plan-level and service-level, distinguished only
// by its parent.
//
// Deductible and copay are json.Number so that 0 is a present, valid
// value and so the exact textual form survives validation untouched.
type CostShare struct {
	ObjectID   string      `json:"objectId" validate:"required,objectid"`
	ObjectType string      `json:"objectType" validate:"required,eq=membercostshare"`
	Org        string      `json:"_org" validate:"required"`
	Deductible json.Number `json:"deductible" validate:"required,nonnegative"`
	Copay      json.Number `json:"copay" validate:"required,nonnegative"`
}

// Service is a leaf entity naming a covered medical service.
type Service struct {
	ObjectID   string `json:"objectId" validate:"required,objectid"`
	ObjectType string `json:"objectType" validate:"required,eq=service"`
	Org        string `json:"_org" validate:"required"`
	Name       string `json:"name" validate:"required"`
}

// PlanService links one service and its cost shares into a plan.
type PlanService struct {
	ObjectID              string     `json:"objectId" validate:"required,objectid"`
	ObjectType            string     `json:"objectType" validate:"required,eq=planservice"`
	Org                   string     `json:"_org" validate:"required"`
	LinkedService         *Service   `json:"linkedService" validate:"required"`
	PlanServiceCostShares *CostShare `json:"planserviceCostShares" validate:"required"`
}

// Plan is the typed shape of a plan document: the root entity with its
// fixed tree of children.
type Plan struct {
	ObjectID           string        `json:"objectId" validate:"required,objectid"`
	ObjectType         string        `json:"objectType" validate:"required,eq=plan"`
	Org                string        `json:"_org" validate:"required"`
	PlanType           string        `json:"planType" validate:"required"`
	CreationDate       string        `json:"creationDate" validate:"required"`
	PlanCostShares     *CostShare    `json:"planCostShares" validate:"required"`
	LinkedPlanServices []PlanService `json:"linkedPlanServices" validate:"omitempty,dive"`
}

// Validate validates the plan against its schema tags.
func (p *Plan) Validate() error {
	return planValidate.Struct(p)
}

// ValidatePlan checks a decoded plan document against the typed schema.
// The map form is what the store persists; this re-marshals it through the
// typed shape purely to validate, so unknown fields pass through and type
// mismatches surface as errors.
func ValidatePlan(doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("plan is not serializable: %w", err)
	}

	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("plan has malformed fields: %w", err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("plan failed validation: %w", err)
	}
	return nil
}

// =============================================================================
// API Response Types
// =============================================================================

// CreateResponse acknowledges a stored plan. The new ETag travels in the
// response header, not the body.
type CreateResponse struct {
	ObjectID string `json:"objectId"`
}
