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

package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/adapters"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

type stubProbe struct {
	kind    models.SourceKind
	systems []models.DiscoveredSystem
	err     error
}

func (p stubProbe) Kind() models.SourceKind { return p.kind }

func (p stubProbe) Discover(_ context.Context) ([]models.DiscoveredSystem, error) {
	return p.systems, p.err
}

type acceptAllValidator struct{}

func (acceptAllValidator) Validate(_ context.Context, _ *models.DiscoveredSystem) bool {
	return true
}

func newTestEngine(probes ...Probe) *Engine {
	return &Engine{
		probes:       probes,
		validator:    acceptAllValidator{},
		logger:       logger.NewTestLogger(),
		totalTimeout: 5 * time.Second,
		probeTimeout: time.Second,
	}
}

func TestDiscoverMergesDuplicates(t *testing.T) {
	aronium := models.DiscoveredSystem{
		Name:        "Aronium POS",
		Source:      models.SourcePath,
		InstallPath: `C:\Aronium`,
	}

	// Two probes reporting the same system must collapse to one entry,
	// and running discovery twice must produce the same identity.
	engine := newTestEngine(
		stubProbe{kind: models.SourcePath, systems: []models.DiscoveredSystem{aronium}},
		stubProbe{kind: models.SourcePath, systems: []models.DiscoveredSystem{aronium}},
	)

	first, err := engine.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := engine.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, aronium.CompositeKey(), first[0].ID)
}

func TestDiscoverSurvivesProbeFailure(t *testing.T) {
	working := stubProbe{
		kind: models.SourceProcess,
		systems: []models.DiscoveredSystem{
			{Name: "RetailPro", Source: models.SourceProcess, FilePath: `C:\RetailPro\pos.exe`},
		},
	}
	broken := stubProbe{kind: models.SourceRegistry, err: errors.New("access denied")}
	unsupported := stubProbe{kind: models.SourceService, err: ErrProbeUnsupported}

	engine := newTestEngine(working, broken, unsupported)

	systems, err := engine.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, "RetailPro", systems[0].Name)
}

func TestDiscoverDiscardsFailedProbeResults(t *testing.T) {
	healthy := stubProbe{
		kind: models.SourceProcess,
		systems: []models.DiscoveredSystem{
			{Name: "Aronium POS", Source: models.SourceProcess, InstallPath: `C:\Aronium`},
		},
	}

	// A probe interrupted mid-scan may return what it found so far along
	// with the error; those partial results must not be merged.
	interrupted := stubProbe{
		kind: models.SourceFile,
		systems: []models.DiscoveredSystem{
			{Name: "Square POS", Source: models.SourceFile, FilePath: `C:\Square\pos.exe`},
		},
		err: context.DeadlineExceeded,
	}

	engine := newTestEngine(healthy, interrupted)

	systems, err := engine.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, "Aronium POS", systems[0].Name)
}

func TestSQLServerCandidates(t *testing.T) {
	named := sqlServerSystem("POSDATA")
	assert.Equal(t, "Microsoft SQL Server (POSDATA)", named.Name)
	assert.Equal(t, models.SourceDatabase, named.Source)
	assert.Equal(t, "sqlserver://localhost/POSDATA", named.DatabasePath)
	assert.Equal(t, "MSSQL$POSDATA", named.ServiceName)

	standard := sqlServerSystem("MSSQLSERVER")
	assert.Equal(t, "sqlserver://localhost", standard.DatabasePath)
	assert.Equal(t, "MSSQLSERVER", standard.ServiceName)

	// Without a SQL Server driver the candidate is surfaced but cannot
	// validate.
	v := &adapterValidator{currency: "JOD", logger: logger.NewTestLogger()}
	named.Adapter = adapters.Resolve(&named)
	assert.Equal(t, models.AdapterNone, named.Adapter)
	assert.False(t, v.Validate(context.Background(), &named))
}

func TestDiscoverFiltersExcludedNames(t *testing.T) {
	engine := newTestEngine(stubProbe{
		kind: models.SourceProcess,
		systems: []models.DiscoveredSystem{
			{Name: "Positron Dev Tools", Source: models.SourceProcess},
			{Name: "NVIDIA Toast Notifier", Source: models.SourceProcess},
			{Name: "Square POS", Source: models.SourceProcess},
		},
	})

	systems, err := engine.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, "Square POS", systems[0].Name)
}

func TestDiscoverAssignsAdapters(t *testing.T) {
	engine := newTestEngine(stubProbe{
		kind: models.SourceDatabase,
		systems: []models.DiscoveredSystem{
			{Name: "Aronium POS", Source: models.SourcePath, InstallPath: `C:\Aronium`},
			{Name: "Database POS (sales.db)", Source: models.SourceDatabase, DatabasePath: `C:\Data\sales.db`},
			{Name: "Network POS (possrv)", Source: models.SourceNetwork, Port: 8080},
		},
	})

	systems, err := engine.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, systems, 3)

	byName := map[string]models.AdapterKind{}
	for _, sys := range systems {
		byName[sys.Name] = sys.Adapter
		assert.True(t, sys.Validated)
	}

	assert.Equal(t, models.AdapterSQLite, byName["Aronium POS"])
	assert.Equal(t, models.AdapterSQLite, byName["Database POS (sales.db)"])
	assert.Equal(t, models.AdapterREST, byName["Network POS (possrv)"])
}

func TestMergeKeepsFirstSeen(t *testing.T) {
	engine := newTestEngine()

	early := models.DiscoveredSystem{
		Name:        "Toast POS",
		Source:      models.SourceRegistry,
		InstallPath: `C:\Program Files\Toast\Toast POS`,
		PID:         0,
	}
	late := early
	late.PID = 4242

	merged := engine.merge([]models.DiscoveredSystem{early, late})
	require.Len(t, merged, 1)
	assert.Zero(t, merged[0].PID)
}

func TestAdapterConfigMapping(t *testing.T) {
	sqlite := models.DiscoveredSystem{
		Name:         "Aronium POS",
		Adapter:      models.AdapterSQLite,
		DatabasePath: `C:\Aronium\pos.db`,
	}
	cfg := AdapterConfig(&sqlite, "JOD")
	assert.Equal(t, `C:\Aronium\pos.db`, cfg.DSN)
	assert.Equal(t, "JOD", cfg.DefaultCurrency)

	csv := models.DiscoveredSystem{
		Name:     "POS System (sales.csv)",
		Adapter:  models.AdapterCSV,
		FilePath: "/exports/sales.csv",
	}
	cfg = AdapterConfig(&csv, "JOD")
	assert.Equal(t, "/exports", cfg.WatchDir)

	rest := models.DiscoveredSystem{
		Name:    "Network POS (possrv)",
		Adapter: models.AdapterREST,
		Port:    8443,
	}
	cfg = AdapterConfig(&rest, "JOD")
	assert.Equal(t, "http://127.0.0.1:8443", cfg.BaseURL)
}

func TestOverlappingProbesMergeToVendorAdapter(t *testing.T) {
	// Three probes all report the same installation. The merged result must
	// be a single system resolved by its vendor name, not by source kind.
	aronium := func(kind models.SourceKind) stubProbe {
		return stubProbe{kind: kind, systems: []models.DiscoveredSystem{
			{Name: "Aronium POS", Source: kind, InstallPath: `C:\Aronium`},
		}}
	}

	engine := newTestEngine(
		aronium(models.SourceRegistry),
		aronium(models.SourceService),
		aronium(models.SourcePath),
	)

	systems, err := engine.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, systems, 1)

	assert.Equal(t, "Aronium POS", systems[0].Name)
	assert.Equal(t, `C:\Aronium`, systems[0].InstallPath)
	assert.Equal(t, models.AdapterSQLite, systems[0].Adapter)
	assert.True(t, systems[0].Validated)
}

func TestKeywordMatching(t *testing.T) {
	assert.True(t, matchesAny("Aronium Point of Sale 3.1", posKeywords))
	assert.True(t, matchesAny("SQUARE-POS.exe", posKeywords))
	assert.False(t, matchesAny("Notepad", posKeywords))

	assert.True(t, excluded("Google Chrome"))
	assert.True(t, excluded("Positron IDE"))
	assert.False(t, excluded("Aronium POS"))
}
