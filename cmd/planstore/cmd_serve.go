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
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/config"
)

// runServe loads the configuration, assembles the service and blocks
// until SIGINT or SIGTERM. While running, a watcher on the config file
// applies the reload-safe settings (currently the log level) without a
// restart.
func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	svc, err := planstore.New(cfg)
	if err != nil {
		log.Fatalf("Error initializing planstore: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcherLogger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Service: "planstore",
		Quiet:   cfg.Logging.Quiet,
	})
	watcher, err := config.NewWatcher(configPath, svc.ApplyReloadable, watcherLogger)
	if err != nil {
		watcherLogger.Warn("configuration hot reload disabled", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		watcherLogger.Warn("configuration hot reload disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("Error running planstore: %v", err)
	}
}
