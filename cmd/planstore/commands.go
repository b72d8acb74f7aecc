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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	backupOut  string

	rootCmd = &cobra.Command{
		Use:   "planstore",
		Short: "A cli to run and manage the healthcare plan service",
		Long: `Planstore stores healthcare benefit plans as versioned JSON documents
				and serves them over a conditional REST API. The serve command runs
				the HTTP service; the remaining commands are offline utilities that
				work directly on plan files and the plan database.`,
		Version: version,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the plan management HTTP service",
		Run:   runServe, // Defined in cmd_serve.go
	}

	validateCmd = &cobra.Command{
		Use:   "validate [plan.json]",
		Short: "Check a plan document against the schema and print its ETag",
		Args:  cobra.ExactArgs(1),
		Run:   runValidate, // Defined in cmd_validate.go
	}

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Stream a full backup of the plan database to a file",
		Long: `backup opens the configured badger directory and writes every key
				and version to a single backup file. The service must be stopped
				first because badger holds an exclusive lock on the directory.`,
		Run: runBackup, // Defined in cmd_backup.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"Path to the service configuration file")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(validateCmd)

	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "",
		"Output filename (default: planstore_<timestamp>.bak)")
}
