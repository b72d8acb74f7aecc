// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/datatypes"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/document"
)

// runValidate checks a plan file against the schema without touching the
// service. The printed ETag is exactly what a POST of the same file would
// return, so it can be fed straight into an If-Match header.
func runValidate(cmd *cobra.Command, args []string) {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading plan file: %v", err)
	}

	doc, err := document.Decode(raw)
	if err != nil {
		log.Fatalf("Invalid JSON in %s: %v", args[0], err)
	}
	if err := datatypes.ValidatePlan(doc); err != nil {
		log.Fatalf("Plan failed validation: %v", err)
	}

	etag, err := document.ComputeETag(doc)
	if err != nil {
		log.Fatalf("Error computing ETag: %v", err)
	}

	fmt.Printf("Plan %v is valid\n", doc["objectId"])
	fmt.Printf("ETag: %s\n", etag)
}
