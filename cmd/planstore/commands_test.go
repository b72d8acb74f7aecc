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
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/storage"
)

const validPlanJSON = `{
	"planCostShares": {
		"deductible": 2000,
		"_org": "example.com",
		"copay": 23,
		"objectId": "cli-cs-1",
		"objectType": "membercostshare"
	},
	"_org": "example.com",
	"objectId": "cli-plan-1",
	"objectType": "plan",
	"planType": "inPatient",
	"creationDate": "12-12-2017"
}`

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "validate", "backup"} {
		if !names[want] {
			t.Errorf("command %q not registered", want)
		}
	}

	if rootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("persistent --config flag missing")
	}
	if backupCmd.Flags().Lookup("out") == nil {
		t.Error("backup --out flag missing")
	}
}

func TestValidateCommand(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(planPath, []byte(validPlanJSON), 0600); err != nil {
		t.Fatal(err)
	}

	// Failure paths exit the process, so only the happy path runs here.
	runValidate(&cobra.Command{}, []string{planPath})
}

func TestBackupCommand(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	// Seed one key so the backup stream is non-empty.
	seedCfg := storage.DefaultConfig()
	seedCfg.Path = dataDir
	kv, err := storage.OpenBadger(seedCfg)
	if err != nil {
		t.Fatalf("seeding database: %v", err)
	}
	err = kv.Update(context.Background(), func(txn storage.Txn) error {
		return txn.Set("plan/cli-plan-1", []byte(`{}`))
	})
	if err != nil {
		t.Fatalf("seeding key: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("closing seed database: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf("storage:\n  backend: badger\n  dir: %s\n", dataDir)
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0600); err != nil {
		t.Fatal(err)
	}

	oldConfigPath, oldBackupOut := configPath, backupOut
	defer func() { configPath, backupOut = oldConfigPath, oldBackupOut }()
	configPath = cfgPath
	backupOut = filepath.Join(dir, "plans.bak")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	runBackup(cmd, nil)

	info, err := os.Stat(backupOut)
	if err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("backup file is empty")
	}
}
