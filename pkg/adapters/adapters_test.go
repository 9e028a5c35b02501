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

package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

func TestResolveVendorPrecedence(t *testing.T) {
	// A vendor-name match wins even when the source kind would pick
	// something else.
	sys := &models.DiscoveredSystem{
		Name:         "Square POS Service",
		Source:       models.SourceDatabase,
		DatabasePath: `C:\Square\data.db`,
	}

	assert.Equal(t, models.AdapterREST, Resolve(sys))
}

func TestResolveSourceKindDefaults(t *testing.T) {
	tests := []struct {
		name string
		sys  models.DiscoveredSystem
		want models.AdapterKind
	}{
		{"sqlite database file", models.DiscoveredSystem{Name: "RetailDB", Source: models.SourceDatabase, DatabasePath: `C:\Data\sales.sqlite`}, models.AdapterSQLite},
		{"dsn database", models.DiscoveredSystem{Name: "RetailDB", Source: models.SourceDatabase, DatabasePath: `postgres://host/sales`}, models.AdapterPostgres},
		{"sql server dsn", models.DiscoveredSystem{Name: "Microsoft SQL Server (POSDATA)", Source: models.SourceDatabase, DatabasePath: `sqlserver://localhost/POSDATA`}, models.AdapterNone},
		{"csv export", models.DiscoveredSystem{Name: "POS Export", Source: models.SourceFile, FilePath: `C:\Exports\sales.csv`}, models.AdapterCSV},
		{"json export", models.DiscoveredSystem{Name: "POS Export", Source: models.SourceFile, FilePath: `C:\Exports\sales.json`}, models.AdapterJSON},
		{"xml export", models.DiscoveredSystem{Name: "POS Export", Source: models.SourceFile, FilePath: `C:\Exports\sales.xml`}, models.AdapterXML},
		{"network listener", models.DiscoveredSystem{Name: "POS Server", Source: models.SourceNetwork, Port: 8080}, models.AdapterREST},
		{"registry entry", models.DiscoveredSystem{Name: "Retail Suite", Source: models.SourceRegistry}, models.AdapterUniversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := tt.sys
			assert.Equal(t, tt.want, Resolve(&sys))
		})
	}
}

func TestNewUnknownAdapter(t *testing.T) {
	_, err := New(models.AdapterNone, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrUnknownAdapter)
}

func TestNewKnownAdapters(t *testing.T) {
	kinds := []models.AdapterKind{
		models.AdapterSQLite,
		models.AdapterPostgres,
		models.AdapterCSV,
		models.AdapterJSON,
		models.AdapterXML,
		models.AdapterREST,
		models.AdapterUniversal,
	}

	for _, kind := range kinds {
		adapter, err := New(kind, logger.NewTestLogger())
		require.NoError(t, err, kind)
		require.NotNil(t, adapter, kind)
	}
}
