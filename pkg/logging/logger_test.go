// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"", LevelInfo},
		{"nonsense", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "plantest",
		Quiet:   true,
	})
	logger.Info("write path", "plan_id", "abc")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	name := "plantest_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"write path"`) {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), `"service":"plantest"`) {
		t.Errorf("log file missing service attribute, got: %s", data)
	}
}

func TestNew_BadLogDirStillLogs(t *testing.T) {
	// A file that exists cannot be used as a directory; New must not fail.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Quiet: true})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	logger.Info("still works")
	defer logger.Close()
}

func TestNew_QuietWithoutFileDiscards(t *testing.T) {
	logger := New(Config{Quiet: true})
	if logger.Slog().Enabled(context.Background(), slog.LevelError) {
		t.Error("quiet logger without a file should discard entries")
	}
	logger.Error("goes nowhere")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

// =============================================================================
// Dynamic Level Tests
// =============================================================================

func TestSetLevel_FiltersAndUnfilters(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "leveltest",
		Quiet:   true,
	})

	logger.Debug("dropped at info")
	logger.SetLevel(LevelDebug)
	logger.Debug("kept at debug")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	name := "leveltest_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "dropped at info") {
		t.Error("debug entry written while level was Info")
	}
	if !strings.Contains(string(data), "kept at debug") {
		t.Error("debug entry missing after SetLevel(LevelDebug)")
	}
}

func TestSetLevel_PropagatesToChildren(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "childtest",
		Quiet:   true,
	})
	child := logger.With("plan_id", "p1")

	logger.SetLevel(LevelError)
	child.Info("suppressed")
	child.Error("visible")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	name := "childtest_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "suppressed") {
		t.Error("child ignored parent level change")
	}
	if !strings.Contains(string(data), "visible") {
		t.Error("error entry missing")
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestLogger_ExportsEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Service:  "exporttest",
		Quiet:    true,
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Info("plan created", "plan_id", "p1", "attempts", 2)

	// Export runs on a goroutine; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(exporter.Entries()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Message != "plan created" {
		t.Errorf("Message = %q", e.Message)
	}
	if e.Service != "exporttest" {
		t.Errorf("Service = %q", e.Service)
	}
	if e.Attrs["plan_id"] != "p1" {
		t.Errorf("Attrs[plan_id] = %v", e.Attrs["plan_id"])
	}
}

func TestLogger_ExportRespectsLevel(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Quiet:    true,
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Info("below threshold")
	time.Sleep(50 * time.Millisecond)

	if got := len(exporter.Entries()); got != 0 {
		t.Errorf("got %d exported entries, want 0", got)
	}
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewWriterExporter(&buf)

	err := exporter.Export(context.Background(), LogEntry{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Level:     LevelWarn,
		Message:   "commit retried",
		Attrs:     map[string]any{"attempt": 2},
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(buf.String(), "commit retried") {
		t.Errorf("output missing message: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "WARN") {
		t.Errorf("output missing level: %q", buf.String())
	}
}

func TestBufferedExporter_Concurrent(t *testing.T) {
	exporter := NewBufferedExporter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exporter.Export(context.Background(), LogEntry{Message: "m"})
		}()
	}
	wg.Wait()

	if got := len(exporter.Entries()); got != 20 {
		t.Errorf("got %d entries, want 20", got)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log/planstore", "/var/log/planstore"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := expandPath(tt.in); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"key1", "value1", "key2", 123, "dangling"})
	if got["key1"] != "value1" {
		t.Errorf("key1 = %v", got["key1"])
	}
	if got["key2"] != 123 {
		t.Errorf("key2 = %v", got["key2"])
	}
	if _, ok := got["dangling"]; ok {
		t.Error("dangling key without value should be dropped")
	}
}

func TestFormat_Forced(t *testing.T) {
	if FormatText.useJSON() {
		t.Error("FormatText.useJSON() = true, want false")
	}
	if !FormatJSON.useJSON() {
		t.Error("FormatJSON.useJSON() = false, want true")
	}
}
