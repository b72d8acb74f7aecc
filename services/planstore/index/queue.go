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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/pkg/logging"
	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/store"
)

// Config holds queue tuning knobs. Zero values take the defaults.
type Config struct {
	// Capacity is the number of events buffered before Notify starts
	// dropping. Default: 256.
	Capacity int

	// Timeout bounds a single indexing call. Default: 10s.
	Timeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Capacity: 256,
		Timeout:  10 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = defaults.Capacity
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
}

// Queue buffers store change events and applies them to an Indexer from a
// single background worker. It implements store.Notifier.
//
// Thread Safety: Notify is safe from any goroutine and never blocks; when
// the buffer is full the event is dropped with a warning. Start and Stop
// are guarded by a mutex.
type Queue struct {
	indexer Indexer
	logger  *logging.Logger
	config  Config

	events  chan store.ChangeEvent
	done    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	running bool
}

// NewQueue builds a queue in front of the given indexer. It must be
// started before events are consumed; events published earlier sit in the
// buffer.
func NewQueue(indexer Indexer, logger *logging.Logger, config Config) *Queue {
	config.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue{
		indexer: indexer,
		logger:  logger,
		config:  config,
		events:  make(chan store.ChangeEvent, config.Capacity),
	}
}

// Notify implements store.Notifier. It never blocks the committing
// request: when the buffer is full the event is dropped and logged, and
// the index catches up on the next mutation of that plan.
func (q *Queue) Notify(event store.ChangeEvent) {
	select {
	case q.events <- event:
		indexQueueDepth.Set(float64(len(q.events)))
	default:
		indexEvents.WithLabelValues(string(event.Op), "dropped").Inc()
		q.logger.Warn("index queue full, dropping event",
			"op", string(event.Op),
			"planId", event.PlanID)
	}
}

// Start launches the background worker. The worker runs until Stop is
// called or ctx is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return fmt.Errorf("index queue is already running")
	}
	q.running = true
	q.done = make(chan struct{})
	q.stopped = make(chan struct{})
	q.mu.Unlock()

	q.logger.Info("index queue starting",
		"capacity", q.config.Capacity,
		"timeout", q.config.Timeout.String())
	go q.run(ctx)
	return nil
}

// Stop signals the worker, waits for it to drain buffered events, and
// returns. Safe to call when not running.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	done, stopped := q.done, q.stopped
	q.mu.Unlock()

	close(done)
	<-stopped
	q.logger.Info("index queue stopped")
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			q.drain(ctx)
			return
		case event := <-q.events:
			q.process(ctx, event)
		}
	}
}

// drain applies whatever is still buffered at shutdown, without waiting
// for new events.
func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case event := <-q.events:
			q.process(ctx, event)
		default:
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, event store.ChangeEvent) {
	defer indexQueueDepth.Set(float64(len(q.events)))

	opCtx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()

	var err error
	switch event.Op {
	case store.OpIndex, store.OpUpdate:
		err = q.indexer.IndexPlan(opCtx, event.PlanID, event.Document)
	case store.OpDelete:
		err = q.indexer.DeletePlan(opCtx, event.PlanID)
	default:
		q.logger.Warn("unknown change op", "op", string(event.Op))
		return
	}
	if err != nil {
		// The store mutation is already committed; nothing to roll back.
		indexEvents.WithLabelValues(string(event.Op), "error").Inc()
		q.logger.Warn("indexing failed",
			"op", string(event.Op),
			"planId", event.PlanID,
			"error", err.Error())
		return
	}
	indexEvents.WithLabelValues(string(event.Op), "ok").Inc()
	q.logger.Debug("indexed change",
		"op", string(event.Op),
		"planId", event.PlanID)
}
