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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Index Pipeline
// =============================================================================

var (
	// indexEvents counts change events by how they left the pipeline.
	// Labels: op (index, update, delete), status (ok, error, dropped)
	indexEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planstore",
		Subsystem: "index",
		Name:      "events_total",
		Help:      "Index pipeline events by outcome",
	}, []string{"op", "status"})

	// indexQueueDepth tracks events waiting in the queue buffer. A depth
	// pinned at capacity means the indexer cannot keep up and events are
	// being dropped.
	indexQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "planstore",
		Subsystem: "index",
		Name:      "queue_depth",
		Help:      "Change events buffered for indexing",
	})
)
