/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package scheduler

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// backoffFactory builds the per-system retry policy; replaceable in tests.
type backoffFactory func() backoff.BackOff

// newPollBackOff is the production retry policy: doubling from 30 seconds,
// capped at 5 minutes. No jitter, so the delay sequence is predictable.
func newPollBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 30 * time.Second
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 300 * time.Second

	return bo
}

// systemState tracks per-system poll progress. All access goes through its
// methods; workers never touch the map directly.
type systemState struct {
	mu         sync.Mutex
	entries    map[string]*stateEntry
	newBackoff backoffFactory
}

type stateEntry struct {
	watermark time.Time
	failures  int
	retry     backoff.BackOff
}

func newSystemState(factory backoffFactory) *systemState {
	return &systemState{
		entries:    map[string]*stateEntry{},
		newBackoff: factory,
	}
}

func (s *systemState) entry(systemID string) *stateEntry {
	if e, ok := s.entries[systemID]; ok {
		return e
	}

	e := &stateEntry{retry: s.newBackoff()}
	s.entries[systemID] = e

	return e
}

// Watermark returns the last successful extraction time for a system. The
// zero time means the system has never been polled successfully.
func (s *systemState) Watermark(systemID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.entry(systemID).watermark
}

// RecordSuccess advances the watermark, clears the failure counter and
// resets the retry policy. The watermark moves only here, so a failed poll
// can never skip transactions.
func (s *systemState) RecordSuccess(systemID string, watermark time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(systemID)
	e.watermark = watermark
	e.failures = 0
	e.retry.Reset()
}

// RecordFailure increments the failure counter and returns the new count
// together with the delay before the next attempt.
func (s *systemState) RecordFailure(systemID string) (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(systemID)
	e.failures++

	return e.failures, e.retry.NextBackOff()
}

// Failures returns a snapshot of all non-zero failure counters.
func (s *systemState) Failures() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)

	for id, e := range s.entries {
		if e.failures > 0 {
			counts[id] = e.failures
		}
	}

	return counts
}
