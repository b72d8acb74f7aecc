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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/document"
)

// Weaviate class names for the plan graph.
const (
	planClassName   = "Plan"
	memberClassName = "PlanMember"
)

// beaconRef is the cross-reference format Weaviate requires for linking
// objects. The "localhost" in the beacon URI is part of the standard
// beacon scheme, not a real host.
type beaconRef struct {
	Beacon string `json:"beacon"`
}

// NewClient builds a Weaviate client from a URL, accepting bare hosts,
// http:// and https:// forms.
func NewClient(url string) (*weaviate.Client, error) {
	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}
	if strings.HasPrefix(url, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		cfg.Host = strings.TrimPrefix(url, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// planClass describes the root object of each indexed plan.
func planClass() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       planClassName,
		Description: "Root record of a stored healthcare plan.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "planId",
				DataType:        []string{"text"},
				Description:     "objectId of the plan root.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "planType",
				DataType:        []string{"text"},
				Description:     "Plan category, e.g. inPatient.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "creationDate",
				DataType:        []string{"text"},
				Description:     "Client-supplied creation date string.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "org",
				DataType:        []string{"text"},
				Description:     "Owning organization tag.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Canonical JSON of the root's own fields.",
				Tokenization: "word",
			},
		},
	}
}

// memberClass describes non-root plan entities. Each member links back to
// its Plan object so graph queries can walk from a match to its plan.
func memberClass() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       memberClassName,
		Description: "A non-root entity belonging to a plan.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "planId",
				DataType:        []string{"text"},
				Description:     "objectId of the owning plan.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "objectId",
				DataType:        []string{"text"},
				Description:     "objectId of this entity.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "objectType",
				DataType:        []string{"text"},
				Description:     "Entity type, e.g. planservice.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "parentId",
				DataType:        []string{"text"},
				Description:     "objectId of the enclosing entity.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "name",
				DataType:     []string{"text"},
				Description:  "Service name, when the entity has one.",
				Tokenization: "word",
			},
			{
				Name:            "org",
				DataType:        []string{"text"},
				Description:     "Owning organization tag.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "copay",
				DataType:        []string{"number"},
				Description:     "Copay amount for cost share entities.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "deductible",
				DataType:        []string{"number"},
				Description:     "Deductible amount for cost share entities.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Canonical JSON of the entity's own fields.",
				Tokenization: "word",
			},
			{
				Name:            "belongsToPlan",
				DataType:        []string{planClassName},
				Description:     "Graph link to the owning Plan object.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates the Plan and PlanMember classes if they do not
// exist. Idempotent; Plan is created first because PlanMember
// cross-references it.
func EnsureSchema(ctx context.Context, client *weaviate.Client, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	for _, class := range []*models.Class{planClass(), memberClass()} {
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err == nil {
			logger.Debug("weaviate class already exists", "class", class.Class)
			continue
		}
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create weaviate class %s: %w", class.Class, err)
		}
		logger.Info("created weaviate class", "class", class.Class)
	}
	return nil
}

// WeaviateIndexer implements Indexer on a Weaviate backend. Every plan
// becomes one Plan object plus one PlanMember object per child entity,
// each member carrying a beacon back to the root.
type WeaviateIndexer struct {
	client *weaviate.Client
	logger *logging.Logger
}

// NewWeaviateIndexer wraps an existing client.
func NewWeaviateIndexer(client *weaviate.Client, logger *logging.Logger) *WeaviateIndexer {
	if logger == nil {
		logger = logging.Default()
	}
	return &WeaviateIndexer{client: client, logger: logger}
}

// IndexPlan replaces the indexed objects for a plan. Existing objects are
// cleared first so re-indexing after a patch never leaves orphans behind.
func (w *WeaviateIndexer) IndexPlan(ctx context.Context, planID string, doc map[string]any) error {
	if err := w.clearPlan(ctx, planID); err != nil {
		return err
	}

	records, err := document.Decompose(doc, document.Metadata{})
	if err != nil {
		return fmt.Errorf("decompose plan %s for indexing: %w", planID, err)
	}

	result, err := w.client.Data().Creator().
		WithClassName(planClassName).
		WithProperties(planProperties(planID, records[0].Data)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("index plan root %s: %w", planID, err)
	}
	if result == nil || result.Object == nil {
		return fmt.Errorf("weaviate returned no object for plan %s", planID)
	}
	rootUUID := result.Object.ID.String()

	objects := memberObjects(planID, rootUUID, records[1:])
	if len(objects) == 0 {
		return nil
	}
	batch, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("index plan members %s: %w", planID, err)
	}

	failed := 0
	for _, obj := range batch {
		if obj.Result != nil && obj.Result.Errors != nil {
			failed++
		}
	}
	if failed > 0 {
		w.logger.Warn("some plan members failed to index",
			"planId", planID,
			"failed", failed,
			"total", len(objects))
	}
	w.logger.Debug("plan indexed",
		"planId", planID,
		"members", len(objects)-failed)
	return nil
}

// DeletePlan removes every indexed object belonging to the plan.
func (w *WeaviateIndexer) DeletePlan(ctx context.Context, planID string) error {
	return w.clearPlan(ctx, planID)
}

// clearPlan batch-deletes all objects of both classes whose planId
// matches.
func (w *WeaviateIndexer) clearPlan(ctx context.Context, planID string) error {
	where := filters.Where().
		WithPath([]string{"planId"}).
		WithOperator(filters.Equal).
		WithValueText(planID)

	for _, class := range []string{memberClassName, planClassName} {
		_, err := w.client.Batch().ObjectsBatchDeleter().
			WithClassName(class).
			WithWhere(where).
			WithOutput("minimal").
			Do(ctx)
		if err != nil {
			return fmt.Errorf("clear %s objects for plan %s: %w", class, planID, err)
		}
	}
	return nil
}

// planProperties builds the Plan object's property map from the root
// record's own fields.
func planProperties(planID string, data map[string]any) map[string]any {
	props := map[string]any{
		"planId":  planID,
		"content": canonicalText(data),
	}
	if v, ok := data["planType"].(string); ok {
		props["planType"] = v
	}
	if v, ok := data["creationDate"].(string); ok {
		props["creationDate"] = v
	}
	if v, ok := data["_org"].(string); ok {
		props["org"] = v
	}
	return props
}

// memberObjects builds one PlanMember object per non-root record, each
// with a beacon to the plan's root object.
func memberObjects(planID, rootUUID string, records []*document.Record) []*models.Object {
	objects := make([]*models.Object, 0, len(records))
	for _, rec := range records {
		props := map[string]any{
			"planId":     planID,
			"objectId":   rec.ObjectID(),
			"objectType": rec.ObjectType,
			"parentId":   rec.ParentID,
			"content":    canonicalText(rec.Data),
		}
		if v, ok := rec.Data["name"].(string); ok {
			props["name"] = v
		}
		if v, ok := rec.Data["_org"].(string); ok {
			props["org"] = v
		}
		if v, ok := toFloat(rec.Data["copay"]); ok {
			props["copay"] = v
		}
		if v, ok := toFloat(rec.Data["deductible"]); ok {
			props["deductible"] = v
		}
		if rootUUID != "" {
			props["belongsToPlan"] = []beaconRef{
				{Beacon: fmt.Sprintf("weaviate://localhost/%s/%s", planClassName, rootUUID)},
			}
		}
		objects = append(objects, &models.Object{
			Class:      memberClassName,
			Properties: props,
		})
	}
	return objects
}

// canonicalText serializes an entity's fields deterministically for
// full-text search.
func canonicalText(data map[string]any) string {
	raw, err := document.MarshalCanonical(data)
	if err != nil {
		return ""
	}
	return string(raw)
}

// toFloat converts the number representations seen in decoded documents.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

var _ Indexer = (*WeaviateIndexer)(nil)
