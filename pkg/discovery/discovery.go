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

// Package discovery locates POS systems installed on the host machine by
// running independent probes (registry, services, processes, files,
// databases, network, known paths) concurrently and merging their results.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/adapters"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// ErrProbeUnsupported marks a probe with no information source on the
// current platform. The engine logs it at debug and continues.
var ErrProbeUnsupported = errors.New("probe not supported on this platform")

// Validator checks whether a resolved adapter can actually reach a
// candidate's data source.
type Validator interface {
	Validate(ctx context.Context, sys *models.DiscoveredSystem) bool
}

// Engine runs all probes against the host and produces a deduplicated,
// validated list of POS systems.
type Engine struct {
	probes       []Probe
	validator    Validator
	logger       logger.Logger
	totalTimeout time.Duration
	probeTimeout time.Duration
}

// NewEngine builds an engine with the full probe set and an adapter-backed
// validator.
func NewEngine(cfg *models.ConnectorConfig, log logger.Logger) *Engine {
	roots := defaultSweepRoots()

	return &Engine{
		probes: []Probe{
			registryProbe{},
			serviceProbe{},
			processProbe{},
			networkProbe{},
			fileProbe{roots: roots},
			databaseProbe{roots: roots},
			pathProbe{},
		},
		validator:    &adapterValidator{currency: cfg.DefaultCurrency, logger: log},
		logger:       log.WithComponent("discovery"),
		totalTimeout: cfg.DiscoveryTimeout.Std(),
		probeTimeout: cfg.ProbeTimeout.Std(),
	}
}

// Discover runs every probe concurrently, merges their results and
// validates each unique candidate. Probe failures degrade the result set,
// they never fail the pass. Duplicate candidates keep the first-seen
// record, so probe registration order fixes source precedence.
func (e *Engine) Discover(ctx context.Context) ([]models.DiscoveredSystem, error) {
	ctx, cancel := context.WithTimeout(ctx, e.totalTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results []models.DiscoveredSystem
	)

	group, groupCtx := errgroup.WithContext(ctx)

	for _, probe := range e.probes {
		probe := probe

		group.Go(func() error {
			probeCtx, probeCancel := context.WithTimeout(groupCtx, e.probeTimeout)
			defer probeCancel()

			start := time.Now()

			found, err := probe.Discover(probeCtx)

			// A probe that errored or timed out may have stopped mid-scan;
			// its partial results are discarded rather than merged.
			switch {
			case errors.Is(err, ErrProbeUnsupported):
				e.logger.Debug().Str("probe", string(probe.Kind())).Msg("Probe unsupported on this platform")
				return nil
			case err != nil:
				e.logger.Warn().Err(err).
					Str("probe", string(probe.Kind())).
					Msg("Probe failed, results discarded")

				return nil
			}

			e.logger.Debug().
				Str("probe", string(probe.Kind())).
				Int("found", len(found)).
				Dur("elapsed", time.Since(start)).
				Msg("Probe finished")

			mu.Lock()
			results = append(results, found...)
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("discovery aborted: %w", err)
	}

	merged := e.merge(results)
	e.validate(ctx, merged)

	e.logger.Info().
		Int("candidates", len(results)).
		Int("unique", len(merged)).
		Msg("Discovery pass complete")

	return merged, nil
}

// merge deduplicates candidates by composite key, keeping the first-seen
// record for each key and stamping the key as the system ID.
func (e *Engine) merge(candidates []models.DiscoveredSystem) []models.DiscoveredSystem {
	seen := make(map[string]bool, len(candidates))
	merged := make([]models.DiscoveredSystem, 0, len(candidates))

	for i := range candidates {
		sys := candidates[i]

		if excluded(sys.Name) {
			continue
		}

		key := sys.CompositeKey()
		if seen[key] {
			continue
		}

		seen[key] = true
		sys.ID = key
		merged = append(merged, sys)
	}

	return merged
}

// validate resolves an adapter per candidate and marks those whose data
// source answered. Unvalidated systems stay in the result so callers can
// surface them; only validated ones are worth monitoring.
func (e *Engine) validate(ctx context.Context, systems []models.DiscoveredSystem) {
	for i := range systems {
		sys := &systems[i]
		sys.Adapter = adapters.Resolve(sys)
		sys.Validated = e.validator.Validate(ctx, sys)

		if !sys.Validated {
			e.logger.Debug().
				Str("system", sys.Name).
				Str("adapter", string(sys.Adapter)).
				Msg("Candidate did not validate")
		}
	}
}

// adapterValidator builds the resolved adapter and asks it to test its
// connection.
type adapterValidator struct {
	currency string
	logger   logger.Logger
}

func (v *adapterValidator) Validate(ctx context.Context, sys *models.DiscoveredSystem) bool {
	adapter, err := adapters.New(sys.Adapter, v.logger)
	if err != nil {
		return false
	}

	if err := adapter.Configure(AdapterConfig(sys, v.currency)); err != nil {
		return false
	}

	return adapter.TestConnection(ctx)
}

// AdapterConfig maps a discovered system onto the adapter configuration its
// resolved adapter needs. The scheduler uses the same mapping when it
// builds workers, so validation and monitoring see the same source.
func AdapterConfig(sys *models.DiscoveredSystem, currency string) adapters.Config {
	cfg := adapters.Config{
		SystemName:      sys.Name,
		DefaultCurrency: currency,
	}

	switch sys.Adapter {
	case models.AdapterSQLite:
		cfg.DSN = sys.DatabasePath
		if cfg.DSN == "" {
			cfg.DSN = sys.FilePath
		}
	case models.AdapterPostgres:
		cfg.DSN = sys.DatabasePath
	case models.AdapterCSV, models.AdapterJSON, models.AdapterXML:
		cfg.WatchDir = sys.InstallPath
		cfg.DSN = sys.FilePath
		if cfg.WatchDir == "" && sys.FilePath != "" {
			cfg.WatchDir = filepath.Dir(sys.FilePath)
		}
	case models.AdapterREST:
		if sys.Port > 0 {
			cfg.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", sys.Port)
		}
	default:
		cfg.WatchDir = sys.InstallPath
		cfg.DSN = sys.FilePath
	}

	return cfg
}
