// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds configuration for the BadgerDB-backed store.
type Config struct {
	// Path is the directory for database files. Required unless InMemory
	// is true, in which case it is ignored.
	Path string

	// InMemory enables in-memory mode with no disk persistence. Useful
	// for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil, Badger's
	// internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before a
	// value log file is rewritten.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: synchronous writes, GC every
// five minutes at a 0.5 discard ratio.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: in-memory, async
// writes, GC disabled.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore implements KeyValue on BadgerDB. Badger's serializable
// snapshot isolation supplies the conflict detection that Update's
// ErrTxnConflict contract requires: a commit racing a concurrent write to
// the same keys fails instead of silently losing an update.
type BadgerStore struct {
	db       *badger.DB
	gcRunner *gcRunner
	metrics  metric.Registration
	path     string
	inMemory bool
}

// OpenBadger opens a BadgerDB instance with the given configuration,
// creating the directory when needed, and starts the GC runner if
// configured. Call Close when done.
func OpenBadger(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	store := &BadgerStore{
		db:       db,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		store.gcRunner = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		store.gcRunner.Start()
	}

	if reg, err := store.registerMetrics(); err == nil {
		store.metrics = reg
	} else if cfg.Logger != nil {
		cfg.Logger.Warn("badger metrics registration failed", slog.String("error", err.Error()))
	}

	return store, nil
}

// OpenBadgerInMemory opens an in-memory store for testing.
func OpenBadgerInMemory() (*BadgerStore, error) {
	return OpenBadger(InMemoryConfig())
}

// registerMetrics exposes Badger's LSM and value log sizes as observable
// gauges on the global meter provider.
func (s *BadgerStore) registerMetrics() (metric.Registration, error) {
	meter := otel.Meter("planstore.storage")

	lsmSize, err := meter.Int64ObservableGauge("planstore_badger_lsm_bytes",
		metric.WithDescription("Size of the BadgerDB LSM tree on disk"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	vlogSize, err := meter.Int64ObservableGauge("planstore_badger_vlog_bytes",
		metric.WithDescription("Size of the BadgerDB value log on disk"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		lsm, vlog := s.db.Size()
		o.ObserveInt64(lsmSize, lsm)
		o.ObserveInt64(vlogSize, vlog)
		return nil
	}, lsmSize, vlogSize)
}

// badgerTxn adapts *badger.Txn to the Txn interface.
type badgerTxn struct {
	txn *badger.Txn
}

func (t *badgerTxn) Get(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("copy value of %s: %w", key, err)
	}
	return value, nil
}

func (t *badgerTxn) Set(key string, value []byte) error {
	return t.txn.Set([]byte(key), value)
}

func (t *badgerTxn) Delete(key string) error {
	return t.txn.Delete([]byte(key))
}

// View runs fn in a read-only snapshot transaction.
func (s *BadgerStore) View(ctx context.Context, fn func(txn Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return fn(&badgerTxn{txn: txn})
}

// Update runs fn in a read-write transaction and commits it when fn
// returns nil. A commit rejected by Badger's conflict detection surfaces
// as ErrTxnConflict.
func (s *BadgerStore) Update(ctx context.Context, fn func(txn Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(&badgerTxn{txn: txn}); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrTxnConflict, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Backup streams a full backup of the database to w. Returns the version
// watermark of the backup for incremental follow-ups.
func (s *BadgerStore) Backup(_ context.Context, w io.Writer) (uint64, error) {
	since, err := s.db.Backup(w, 0)
	if err != nil {
		return 0, fmt.Errorf("backup database: %w", err)
	}
	return since, nil
}

// Sync flushes pending writes to disk. No-op for in-memory stores.
func (s *BadgerStore) Sync() error {
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

// Path returns the database directory, empty for in-memory stores.
func (s *BadgerStore) Path() string {
	return s.path
}

// Close stops the GC runner, unregisters metrics, and closes the database.
func (s *BadgerStore) Close() error {
	if s.gcRunner != nil {
		s.gcRunner.Stop()
	}
	if s.metrics != nil {
		_ = s.metrics.Unregister()
	}
	return s.db.Close()
}

var _ KeyValue = (*BadgerStore)(nil)

// =============================================================================
// Value Log Garbage Collection
// =============================================================================

// gcRunner triggers periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Start begins periodic garbage collection.
func (r *gcRunner) Start() {
	go r.run()
}

// Stop signals the GC goroutine and waits for it to finish.
func (r *gcRunner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	// RunValueLogGC returns ErrNoRewrite when nothing needed collecting.
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		if r.logger != nil {
			r.logger.Debug("badger value log GC completed")
		}
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		if r.logger != nil {
			r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
		}
	}
}
