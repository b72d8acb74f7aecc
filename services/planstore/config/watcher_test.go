// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
)

func startWatcher(t *testing.T, path string) <-chan Config {
	t.Helper()
	reloads := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) { reloads <- cfg }, logging.New(logging.Config{Quiet: true}))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	return reloads
}

func waitForReload(t *testing.T, reloads <-chan Config) Config {
	t.Helper()
	select {
	case cfg := <-reloads:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
		return Config{}
	}
}

func TestWatcher_ReloadOnWrite(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	reloads := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o644))

	cfg := waitForReload(t, reloads)
	assert.Equal(t, 9191, cfg.Server.Port)
}

// Editors and config management replace files by renaming a temp file
// into place; that must trigger a reload too.
func TestWatcher_ReloadOnRename(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	reloads := startWatcher(t, path)

	staging := filepath.Join(filepath.Dir(path), "planstore.yaml.tmp")
	require.NoError(t, os.WriteFile(staging, []byte("server:\n  port: 9292\n"), 0o644))
	require.NoError(t, os.Rename(staging, path))

	cfg := waitForReload(t, reloads)
	assert.Equal(t, 9292, cfg.Server.Port)
}

// A save that lands as several writes inside the debounce window must
// collapse to one reload.
func TestWatcher_BurstCollapsesToOneReload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	reloads := startWatcher(t, path)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9494\n"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	cfg := waitForReload(t, reloads)
	assert.Equal(t, 9494, cfg.Server.Port)

	time.Sleep(700 * time.Millisecond)
	select {
	case <-reloads:
		t.Fatal("burst of writes produced more than one reload")
	default:
	}
}

// A broken file must not reach the handler, and the watcher must keep
// working for the next good write.
func TestWatcher_InvalidChangeSkipped(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	reloads := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("{{{ not yaml"), 0o644))
	time.Sleep(700 * time.Millisecond)
	select {
	case cfg := <-reloads:
		t.Fatalf("unexpected reload with port %d", cfg.Server.Port)
	default:
	}

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9393\n"), 0o644))
	cfg := waitForReload(t, reloads)
	assert.Equal(t, 9393, cfg.Server.Port)
}

// Sibling files in the config directory are not ours to react to.
func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	reloads := startWatcher(t, path)

	other := filepath.Join(filepath.Dir(path), "unrelated.yaml")
	require.NoError(t, os.WriteFile(other, []byte("server:\n  port: 1111\n"), 0o644))

	time.Sleep(700 * time.Millisecond)
	select {
	case cfg := <-reloads:
		t.Fatalf("unexpected reload with port %d", cfg.Server.Port)
	default:
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	w, err := NewWatcher(path, func(Config) {}, logging.New(logging.Config{Quiet: true}))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
