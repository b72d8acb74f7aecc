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
	"time"

	"github.com/spf13/cobra"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/config"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/storage"
)

// runBackup streams the badger database behind the configured data
// directory into a single file. Badger holds an exclusive directory lock,
// so this fails while the service is running.
func runBackup(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if cfg.Storage.Backend != "badger" {
		log.Fatalf("Backup requires the badger backend; configured backend is %q", cfg.Storage.Backend)
	}

	storeCfg := storage.DefaultConfig()
	storeCfg.Path = cfg.Storage.Dir
	kv, err := storage.OpenBadger(storeCfg)
	if err != nil {
		log.Fatalf("Error opening plan database: %v", err)
	}
	defer kv.Close()

	name := backupOut
	if name == "" {
		name = fmt.Sprintf("planstore_%s.bak", time.Now().Format("20060102T150405"))
	}
	out, err := os.Create(name)
	if err != nil {
		log.Fatalf("Error creating backup file: %v", err)
	}

	version, err := kv.Backup(cmd.Context(), out)
	if err != nil {
		out.Close()
		log.Fatalf("Backup failed: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("Error closing backup file: %v", err)
	}

	fmt.Printf("Backup written to %s (through version %d)\n", name, version)
}
