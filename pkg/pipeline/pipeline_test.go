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

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]error
}

func (s *fakeSender) Send(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.fail[tx.ID]; ok {
		return err
	}

	s.sent = append(s.sent, tx.ID)

	return nil
}

func (s *fakeSender) sentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.sent...)
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*models.CachedTransaction
	log       []models.SyncLogEntry
	syncTimes map[string]time.Time
	writeErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:   map[string]*models.CachedTransaction{},
		syncTimes: map[string]time.Time{},
	}
}

func (s *fakeStore) key(systemID, txID string) string { return systemID + "|" + txID }

func (s *fakeStore) UpsertTransaction(_ context.Context, rec *models.CachedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}

	clone := *rec
	s.records[s.key(rec.SystemID, rec.TransactionID)] = &clone

	return nil
}

func (s *fakeStore) IsProcessed(_ context.Context, systemID, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[s.key(systemID, transactionID)]

	return ok && rec.Processed, nil
}

func (s *fakeStore) AppendLog(_ context.Context, entry *models.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}

	s.log = append(s.log, *entry)

	return nil
}

func (s *fakeStore) UpdateSystemSync(_ context.Context, systemID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncTimes[systemID] = at

	return nil
}

func queued(systemID, txID string) models.QueuedTransaction {
	return models.QueuedTransaction{
		SystemID:   systemID,
		SystemName: "Test POS",
		Transaction: models.Transaction{
			ID:       txID,
			Total:    9.99,
			Currency: "JOD",
		},
		EnqueuedAt: time.Now(),
	}
}

func runPipeline(t *testing.T, p *Pipeline, items ...models.QueuedTransaction) {
	t.Helper()

	queue := make(chan models.QueuedTransaction, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	go p.Run(context.Background(), queue)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain the queue")
	}
}

func TestSuccessfulDeliveryRecorded(t *testing.T) {
	sender := &fakeSender{}
	store := newFakeStore()
	p := New(sender, store, logger.NewTestLogger())

	runPipeline(t, p, queued("sys-1", "tx-1"))

	assert.Equal(t, []string{"tx-1"}, sender.sentIDs())

	rec := store.records["sys-1|tx-1"]
	require.NotNil(t, rec)
	assert.True(t, rec.Processed)
	assert.NotEmpty(t, rec.Payload)

	require.Len(t, store.log, 1)
	assert.Equal(t, models.SyncSuccess, store.log[0].Status)
	assert.Contains(t, store.syncTimes, "sys-1")
}

func TestFailedDeliveryRecordedNotRetried(t *testing.T) {
	sendErr := errors.New("backend unavailable")
	sender := &fakeSender{fail: map[string]error{"tx-1": sendErr}}
	store := newFakeStore()
	p := New(sender, store, logger.NewTestLogger())

	runPipeline(t, p, queued("sys-1", "tx-1"))

	assert.Empty(t, sender.sentIDs())

	rec := store.records["sys-1|tx-1"]
	require.NotNil(t, rec)
	assert.False(t, rec.Processed)

	require.Len(t, store.log, 1)
	assert.Equal(t, models.SyncFailed, store.log[0].Status)
	assert.Equal(t, "backend unavailable", store.log[0].Message)
	assert.NotContains(t, store.syncTimes, "sys-1")
}

func TestDuplicateSkippedBeforeTransmission(t *testing.T) {
	sender := &fakeSender{}
	store := newFakeStore()
	p := New(sender, store, logger.NewTestLogger())

	runPipeline(t, p, queued("sys-1", "tx-1"), queued("sys-1", "tx-1"))

	// The second copy must never reach the backend.
	assert.Equal(t, []string{"tx-1"}, sender.sentIDs())
	assert.Len(t, store.log, 1)
}

func TestFailedTransactionRetriedOnNextEnqueue(t *testing.T) {
	sendErr := errors.New("transient")
	sender := &fakeSender{fail: map[string]error{"tx-1": sendErr}}
	store := newFakeStore()
	p := New(sender, store, logger.NewTestLogger())

	runPipeline(t, p, queued("sys-1", "tx-1"))
	require.False(t, store.records["sys-1|tx-1"].Processed)

	// The adapter re-extracts the transaction on its next poll; a record
	// with processed=false must not block redelivery.
	sender.fail = nil
	p2 := New(sender, store, logger.NewTestLogger())
	runPipeline(t, p2, queued("sys-1", "tx-1"))

	assert.Equal(t, []string{"tx-1"}, sender.sentIDs())
	assert.True(t, store.records["sys-1|tx-1"].Processed)
}

func TestCacheWriteFailureDoesNotBlockDelivery(t *testing.T) {
	sender := &fakeSender{}
	store := newFakeStore()
	store.writeErr = errors.New("disk full")
	p := New(sender, store, logger.NewTestLogger())

	runPipeline(t, p, queued("sys-1", "tx-1"), queued("sys-1", "tx-2"))

	// Both transactions still reach the backend; only the audit trail is
	// incomplete.
	assert.Equal(t, []string{"tx-1", "tx-2"}, sender.sentIDs())
	assert.Empty(t, store.records)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sender := &fakeSender{}
	p := New(sender, newFakeStore(), logger.NewTestLogger())

	queue := make(chan models.QueuedTransaction)
	ctx, cancel := context.WithCancel(context.Background())

	go p.Run(ctx, queue)

	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pipeline did not observe cancellation")
	}
}
