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

// Package scheduler runs one polling worker per validated POS system,
// feeding extracted transactions into a single bounded queue consumed by
// the sync pipeline.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/adapters"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/discovery"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// adapterFactory builds adapters; replaceable in tests.
type adapterFactory func(kind models.AdapterKind, log logger.Logger) (adapters.Adapter, error)

// Scheduler owns the per-system poll loops and the shared transaction
// queue. Workers share only the state struct and the queue.
type Scheduler struct {
	cfg        *models.ConnectorConfig
	state      *systemState
	queue      chan models.QueuedTransaction
	newAdapter adapterFactory
	logger     logger.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  atomic.Int64
	started bool
	mu      sync.Mutex
}

// New builds a scheduler with a queue bounded by the configured size.
// Producers block when the queue is full; nothing is dropped.
func New(cfg *models.ConnectorConfig, log logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		state:      newSystemState(newPollBackOff),
		queue:      make(chan models.QueuedTransaction, cfg.QueueSize),
		newAdapter: adapters.New,
		logger:     log.WithComponent("scheduler"),
	}
}

// Queue exposes the consumer end for the sync pipeline.
func (s *Scheduler) Queue() <-chan models.QueuedTransaction {
	return s.queue
}

// Start launches one worker per validated system plus an event watcher for
// each folder-backed source. Unvalidated systems are skipped.
func (s *Scheduler) Start(ctx context.Context, systems []models.DiscoveredSystem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	for i := range systems {
		sys := systems[i]
		if !sys.Validated {
			continue
		}

		adapter, err := s.newAdapter(sys.Adapter, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Str("system", sys.Name).Msg("No adapter, system not monitored")
			continue
		}

		adapterCfg := discovery.AdapterConfig(&sys, s.cfg.DefaultCurrency)
		if err := adapter.Configure(adapterCfg); err != nil {
			s.logger.Warn().Err(err).Str("system", sys.Name).Msg("Adapter rejected configuration")
			continue
		}

		s.wg.Add(1)

		go s.pollLoop(ctx, sys, adapter)

		// The poll loop's first pass already covers files sitting in the
		// directory, so the watcher only handles new events.
		if adapterCfg.WatchDir != "" {
			s.startWatcher(ctx, sys, adapterCfg, false)
		}
	}
}

// WatchFolder monitors a standalone invoice-export folder that is not tied
// to a discovered system, such as the folder scorer's best candidate.
func (s *Scheduler) WatchFolder(ctx context.Context, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sys := models.DiscoveredSystem{
		ID:          "folder:" + path,
		Name:        "Invoice Folder",
		Source:      models.SourcePath,
		InstallPath: path,
		Adapter:     models.AdapterUniversal,
		Validated:   true,
	}

	s.startWatcher(ctx, sys, adapters.Config{
		SystemName:      sys.Name,
		DefaultCurrency: s.cfg.DefaultCurrency,
		WatchDir:        path,
	}, true)
}

// Stop cancels every worker, waits for them to finish their current
// iteration and closes the queue so the consumer can drain and exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.cancel()
	s.wg.Wait()
	close(s.queue)
	s.started = false
}

// ActiveWorkers reports how many poll and watch loops are running.
func (s *Scheduler) ActiveWorkers() int {
	return int(s.active.Load())
}

// QueueDepth reports how many transactions are waiting for the pipeline.
func (s *Scheduler) QueueDepth() int {
	return len(s.queue)
}

// FailureCounts reports current consecutive-failure counters by system ID.
func (s *Scheduler) FailureCounts() map[string]int {
	return s.state.Failures()
}

// pollLoop is the per-system state machine: poll, enqueue on success, back
// off on failure. The watermark only moves after a successful extraction.
func (s *Scheduler) pollLoop(ctx context.Context, sys models.DiscoveredSystem, adapter adapters.Adapter) {
	defer s.wg.Done()

	s.active.Add(1)
	defer s.active.Add(-1)

	log := s.logger.With().Str("system", sys.Name).Logger()
	log.Info().Str("adapter", string(sys.Adapter)).Msg("Monitoring started")

	for {
		pollStart := time.Now()

		transactions, err := adapter.GetNewTransactions(ctx, s.state.Watermark(sys.ID))

		var wait time.Duration

		if err != nil {
			if ctx.Err() != nil {
				return
			}

			failures, delay := s.state.RecordFailure(sys.ID)
			wait = delay

			log.Warn().Err(err).
				Int("failures", failures).
				Dur("backoff", wait).
				Msg("Extraction failed, backing off")
		} else {
			for _, tx := range transactions {
				if !s.enqueue(ctx, sys, tx) {
					return
				}
			}

			s.state.RecordSuccess(sys.ID, pollStart)
			wait = s.cfg.PollInterval.Std()

			if len(transactions) > 0 {
				log.Info().Int("count", len(transactions)).Msg("Transactions enqueued")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// enqueue blocks until the queue accepts the transaction or the scheduler
// shuts down. Blocking is the backpressure mechanism.
func (s *Scheduler) enqueue(ctx context.Context, sys models.DiscoveredSystem, tx models.Transaction) bool {
	select {
	case <-ctx.Done():
		return false
	case s.queue <- models.QueuedTransaction{
		SystemID:    sys.ID,
		SystemName:  sys.Name,
		Transaction: tx,
		EnqueuedAt:  time.Now(),
	}:
		return true
	}
}
