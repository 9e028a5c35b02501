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
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/adapters"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

func TestBackoffFormula(t *testing.T) {
	want := []time.Duration{
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		300 * time.Second,
		300 * time.Second,
	}

	state := newSystemState(newPollBackOff)

	for i, expected := range want {
		_, delay := state.RecordFailure("sys")
		assert.Equal(t, expected, delay, "failures=%d", i+1)
	}

	// Success resets the series back to the base delay.
	state.RecordSuccess("sys", time.Now())

	_, delay := state.RecordFailure("sys")
	assert.Equal(t, 30*time.Second, delay)
}

func TestWatermarkOnlyAdvancesOnSuccess(t *testing.T) {
	state := newSystemState(newPollBackOff)

	assert.True(t, state.Watermark("sys").IsZero())

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state.RecordSuccess("sys", first)
	assert.Equal(t, first, state.Watermark("sys"))

	// Failures must never move the watermark.
	state.RecordFailure("sys")
	state.RecordFailure("sys")
	assert.Equal(t, first, state.Watermark("sys"))

	second := first.Add(time.Minute)
	state.RecordSuccess("sys", second)
	assert.Equal(t, second, state.Watermark("sys"))
	assert.Empty(t, state.Failures())
}

func TestFailureCountersResetOnSuccess(t *testing.T) {
	state := newSystemState(newPollBackOff)

	failures, _ := state.RecordFailure("a")
	assert.Equal(t, 1, failures)
	failures, _ = state.RecordFailure("a")
	assert.Equal(t, 2, failures)
	failures, _ = state.RecordFailure("b")
	assert.Equal(t, 1, failures)

	assert.Equal(t, map[string]int{"a": 2, "b": 1}, state.Failures())

	state.RecordSuccess("a", time.Now())
	assert.Equal(t, map[string]int{"b": 1}, state.Failures())
}

// recordingBackOff captures how often the retry policy is consulted while
// keeping test delays short.
type recordingBackOff struct {
	mu    *sync.Mutex
	calls *[]int
	n     int
}

func (b *recordingBackOff) NextBackOff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.n++
	*b.calls = append(*b.calls, b.n)

	return time.Millisecond
}

func (b *recordingBackOff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.n = 0
}

// flakyAdapter fails a fixed number of polls, then succeeds forever.
type flakyAdapter struct {
	mu        sync.Mutex
	failures  int
	remaining int
	result    []models.Transaction
}

func (a *flakyAdapter) Configure(_ adapters.Config) error    { return nil }
func (a *flakyAdapter) TestConnection(_ context.Context) bool { return true }

func (a *flakyAdapter) GetNewTransactions(_ context.Context, _ time.Time) ([]models.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.remaining > 0 {
		a.remaining--
		a.failures++

		return nil, errors.New("source unavailable")
	}

	result := a.result
	a.result = nil

	return result, nil
}

func testConfig(t *testing.T) *models.ConnectorConfig {
	t.Helper()

	cfg := &models.ConnectorConfig{
		BaseURL:  "http://localhost:8000",
		APIKey:   "test-key",
		Email:    "test@example.com",
		Password: "secret",
	}
	require.NoError(t, cfg.Validate())
	cfg.PollInterval = models.Duration(10 * time.Millisecond)

	return cfg
}

func TestPollLoopRecoversAfterFailures(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, logger.NewTestLogger())

	adapter := &flakyAdapter{
		remaining: 2,
		result: []models.Transaction{
			{ID: "tx-1", SourceSystem: "Aronium POS", Total: 12.5},
		},
	}
	s.newAdapter = func(_ models.AdapterKind, _ logger.Logger) (adapters.Adapter, error) {
		return adapter, nil
	}

	var delayMu sync.Mutex
	var delays []int
	s.state = newSystemState(func() backoff.BackOff {
		return &recordingBackOff{mu: &delayMu, calls: &delays}
	})

	sys := models.DiscoveredSystem{
		ID:        "sys-1",
		Name:      "Aronium POS",
		Adapter:   models.AdapterSQLite,
		Validated: true,
	}

	s.Start(context.Background(), []models.DiscoveredSystem{sys})

	select {
	case queued := <-s.Queue():
		assert.Equal(t, "sys-1", queued.SystemID)
		assert.Equal(t, "Aronium POS", queued.SystemName)
		assert.Equal(t, "tx-1", queued.Transaction.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction never reached the queue")
	}

	// Failure count climbed to 2 across the two bad polls, then reset.
	delayMu.Lock()
	assert.Equal(t, []int{1, 2}, delays)
	delayMu.Unlock()

	assert.Eventually(t, func() bool {
		return len(s.FailureCounts()) == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, s.state.Watermark("sys-1").IsZero())

	s.Stop()
	assert.Zero(t, s.ActiveWorkers())
}

func TestStartSkipsUnvalidatedSystems(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, logger.NewTestLogger())
	s.newAdapter = func(_ models.AdapterKind, _ logger.Logger) (adapters.Adapter, error) {
		return &flakyAdapter{}, nil
	}

	s.Start(context.Background(), []models.DiscoveredSystem{
		{ID: "bad", Name: "Unreachable POS", Adapter: models.AdapterREST, Validated: false},
	})

	assert.Eventually(t, func() bool { return s.ActiveWorkers() == 0 }, time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestStartDoesNotDoubleParseExistingExports(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"E-1","total":5}`), 0o600))

	cfg := testConfig(t)
	cfg.PollInterval = models.Duration(time.Hour)
	s := New(cfg, logger.NewTestLogger())

	sys := models.DiscoveredSystem{
		ID:        "sys-files",
		Name:      "Export POS",
		Source:    models.SourceFile,
		FilePath:  path,
		Adapter:   models.AdapterJSON,
		Validated: true,
	}

	s.Start(context.Background(), []models.DiscoveredSystem{sys})

	select {
	case queued := <-s.Queue():
		assert.Equal(t, "E-1", queued.Transaction.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("existing export never reached the queue")
	}

	// The poll loop already parsed the file; the watcher must not enqueue
	// a second copy at startup.
	select {
	case queued := <-s.Queue():
		t.Fatalf("startup content enqueued twice: %s", queued.Transaction.ID)
	case <-time.After(500 * time.Millisecond):
	}

	s.Stop()
}

func TestWatchFolderSweepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sale.json"),
		[]byte(`{"id":"F-1","total":3}`), 0o600))

	cfg := testConfig(t)
	s := New(cfg, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A standalone folder has no poll loop, so the startup sweep is the
	// only way existing files get picked up.
	s.WatchFolder(ctx, dir)

	select {
	case queued := <-s.Queue():
		assert.Equal(t, "F-1", queued.Transaction.ID)
		assert.Equal(t, "folder:"+dir, queued.SystemID)
	case <-time.After(5 * time.Second):
		t.Fatal("existing file was not swept")
	}
}

func TestEnqueueStopsOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueueSize = 1
	s := New(cfg, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())

	sys := models.DiscoveredSystem{ID: "sys", Name: "POS"}

	// Fill the queue, then verify a blocked producer observes cancellation.
	require.True(t, s.enqueue(ctx, sys, models.Transaction{ID: "1"}))

	done := make(chan bool)
	go func() {
		done <- s.enqueue(ctx, sys, models.Transaction{ID: "2"})
	}()

	cancel()

	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("blocked producer did not observe shutdown")
	}
}
