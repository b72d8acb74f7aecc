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
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
)

// ReloadHandler receives the new configuration after the watched file
// changes and re-validates cleanly. Called from a single goroutine.
type ReloadHandler func(cfg Config)

// Watcher re-loads the config file when it changes on disk.
//
// The parent directory is watched rather than the file itself because
// editors and configuration management tools replace files by rename,
// which would silently detach a watch on the old inode. Events are
// debounced so a save that produces several writes triggers one reload.
// A change that fails to load is logged and skipped; the running
// configuration stays as it was.
type Watcher struct {
	path     string
	handler  ReloadHandler
	logger   *logging.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the config file at path. Call Start to
// begin watching and Stop to release the inotify handle.
func NewWatcher(path string, handler ReloadHandler, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	return &Watcher{
		path:     path,
		handler:  handler,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Returns an error when the config directory
// cannot be watched; reload failures after that are logged, not fatal.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config dir %s: %w", dir, err)
	}

	go w.loop(ctx)
	return nil
}

// Stop releases the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload skipped",
			"path", w.path,
			"error", err.Error())
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.handler(cfg)
}
