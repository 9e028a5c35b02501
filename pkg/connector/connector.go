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

// Package connector is the agent facade: discovery, folder detection,
// monitoring lifecycle, and status reporting behind one type.
package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/api"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/cache"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/discovery"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/folders"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/pipeline"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/scheduler"
)

// Status is the agent health snapshot exposed to front ends and posted as
// the heartbeat body.
type Status struct {
	DiscoveredCount int            `json:"discovered_count"`
	ActiveWorkers   int            `json:"active_workers"`
	QueueDepth      int            `json:"queue_depth"`
	FailureCounts   map[string]int `json:"failure_counts"`
}

// Connector owns the full agent lifecycle. A thin front end (CLI, service
// wrapper) drives it through Discover, StartMonitoring, StopMonitoring and
// GetStatus.
type Connector struct {
	cfg      *models.ConnectorConfig
	logger   logger.Logger
	cache    *cache.Store
	engine   *discovery.Engine
	detector *folders.Detector
	session  *api.SessionManager
	batch    *api.BatchClient
	sched    *scheduler.Scheduler
	pipe     *pipeline.Pipeline

	mu      sync.Mutex
	systems []models.DiscoveredSystem
	cancel  context.CancelFunc
	running bool
}

// New wires the agent together. The cache is opened eagerly so a broken
// cache path fails fast instead of on the first delivery.
func New(cfg *models.ConnectorConfig, log logger.Logger) (*Connector, error) {
	store, err := cache.New(cfg.CachePath)
	if err != nil {
		return nil, err
	}

	session := api.NewSessionManager(cfg, log)

	c := &Connector{
		cfg:      cfg,
		logger:   log.WithComponent("connector"),
		cache:    store,
		engine:   discovery.NewEngine(cfg, log),
		detector: folders.NewDetector(log),
		session:  session,
		sched:    scheduler.New(cfg, log),
	}

	if cfg.BackendMode == models.ModeBatch {
		c.batch = api.NewBatchClient(cfg, log)
	}

	c.pipe = pipeline.New(pipeline.NewSender(cfg, session, log), store, log)

	return c, nil
}

// Close releases the cache handle. Call StopMonitoring first if running.
func (c *Connector) Close() error {
	return c.cache.Close()
}

// Discover runs a full discovery pass and records validated systems in the
// cache. The result replaces any earlier pass.
func (c *Connector) Discover(ctx context.Context) ([]models.DiscoveredSystem, error) {
	systems, err := c.engine.Discover(ctx)
	if err != nil {
		return nil, err
	}

	for i := range systems {
		if !systems[i].Validated {
			continue
		}

		if err := c.cache.UpsertSystem(ctx, &systems[i]); err != nil {
			c.logger.Warn().Err(err).Str("system", systems[i].Name).Msg("Failed to record system")
		}
	}

	c.mu.Lock()
	c.systems = systems
	c.mu.Unlock()

	return systems, nil
}

// DetectFolders ranks candidate invoice-export folders.
func (c *Connector) DetectFolders(includeEmpty bool) []models.CandidateFolder {
	return c.detector.DetectFolders(includeEmpty)
}

// StartMonitoring authenticates, then launches the scheduler workers, the
// sync pipeline and the heartbeat. Discovery runs first if it has not run
// yet. Authentication failure is fatal here: nothing can be delivered
// without it.
func (c *Connector) StartMonitoring(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.cfg.BackendMode == models.ModeInvoice {
		if err := c.session.Authenticate(ctx, false); err != nil {
			return fmt.Errorf("cannot start monitoring: %w", err)
		}
	} else if c.batch != nil && !c.batch.TestConnection(ctx) {
		c.logger.Warn().Msg("Backend connection test failed, starting anyway")
	}

	c.mu.Lock()
	systems := c.systems
	c.mu.Unlock()

	if len(systems) == 0 {
		discovered, err := c.Discover(ctx)
		if err != nil {
			return err
		}

		systems = discovered
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.sched.Start(runCtx, systems)

	// When nothing validated, fall back to the best-scoring export folder
	// so a vendorless installation still gets monitored.
	if countValidated(systems) == 0 {
		if best, ok := c.detector.BestFolder(); ok {
			c.logger.Info().Str("path", best).Msg("No validated systems, watching best folder candidate")
			c.sched.WatchFolder(runCtx, best)
		}
	}

	go c.pipe.Run(runCtx, c.sched.Queue())

	if c.batch != nil {
		go c.heartbeatLoop(runCtx)
	}

	c.logger.Info().
		Int("systems", countValidated(systems)).
		Str("mode", string(c.cfg.BackendMode)).
		Msg("Monitoring started")

	return nil
}

// StopMonitoring shuts down workers, lets the pipeline drain its current
// item, and leaves the connector reusable.
func (c *Connector) StopMonitoring() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}

	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	// Stopping the scheduler closes the queue; the pipeline exits once it
	// has drained what is already buffered.
	c.sched.Stop()

	select {
	case <-c.pipe.Done():
	case <-time.After(30 * time.Second):
		c.logger.Warn().Msg("Pipeline did not drain within grace period")
	}

	cancel()
	c.logger.Info().Msg("Monitoring stopped")
}

// GetStatus reports the live agent counters.
func (c *Connector) GetStatus() Status {
	c.mu.Lock()
	discovered := countValidated(c.systems)
	c.mu.Unlock()

	return Status{
		DiscoveredCount: discovered,
		ActiveWorkers:   c.sched.ActiveWorkers(),
		QueueDepth:      c.sched.QueueDepth(),
		FailureCounts:   c.sched.FailureCounts(),
	}
}

// heartbeatLoop posts the status snapshot so the backend can flag dead
// connectors.
func (c *Connector) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatPeriod.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := c.GetStatus()

			err := c.batch.SendHeartbeat(ctx, api.HeartbeatStatus{
				DiscoveredCount: status.DiscoveredCount,
				ActiveWorkers:   status.ActiveWorkers,
				QueueDepth:      status.QueueDepth,
				FailureCounts:   status.FailureCounts,
				Timestamp:       time.Now(),
			})
			if err != nil {
				c.logger.Warn().Err(err).Msg("Heartbeat failed")
			}
		}
	}
}

func countValidated(systems []models.DiscoveredSystem) int {
	n := 0

	for i := range systems {
		if systems[i].Validated {
			n++
		}
	}

	return n
}
