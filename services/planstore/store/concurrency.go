// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/bagwe-shubham1727/healthcare-plan-management-system/services/planstore/storage"
)

// commitAttempts bounds how many times a mutation re-runs its
// read-merge-write cycle after losing a commit race.
const commitAttempts = 3

// Backoff window between retry attempts. Jitter desynchronizes writers
// that collided once.
const (
	retryBackoffMin = 5 * time.Millisecond
	retryBackoffMax = 100 * time.Millisecond
)

// errCASExhausted marks a mutation abandoned because every commit attempt
// lost its race. Callers translate it into their operation's
// caller-visible conflict error.
var errCASExhausted = errors.New("write retries exhausted")

// commit runs fn in a read-write transaction and retries the whole cycle
// when the storage layer reports a commit conflict. Each retry re-runs fn
// against a fresh snapshot, so fn must re-read everything it depends on.
//
// Only internal commit conflicts are retried. Errors returned by fn
// itself, including precondition failures, surface on first occurrence: a
// caller whose token went stale must not be retried into success.
func (s *PlanStore) commit(ctx context.Context, fn func(txn storage.Txn) error) error {
	b := &backoff.Backoff{
		Min:    retryBackoffMin,
		Max:    retryBackoffMax,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		err := s.kv.Update(ctx, fn)
		if err == nil || !errors.Is(err, storage.ErrTxnConflict) {
			return err
		}
		if attempt >= commitAttempts {
			return fmt.Errorf("%w: %d attempts lost their commit race", errCASExhausted, attempt)
		}

		casRetries.Inc()
		delay := b.Duration()
		s.logger.Debug("commit conflict, retrying",
			"attempt", attempt,
			"delay", delay.String())
		select {
		case <-ctx.Done():
			return fmt.Errorf("cancelled while awaiting retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}
