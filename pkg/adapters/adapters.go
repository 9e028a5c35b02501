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

// Package adapters normalizes heterogeneous POS transaction sources (SQL
// databases, export files, vendor REST APIs) into the canonical
// transaction schema.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

var (
	// ErrUnknownAdapter is returned when no adapter exists for a kind.
	ErrUnknownAdapter = errors.New("unknown adapter kind")
	// ErrNotConfigured is returned when an adapter is used before Configure.
	ErrNotConfigured = errors.New("adapter not configured")
)

// Config carries everything any adapter variant might need. Each variant
// reads only its own fields.
type Config struct {
	SystemName      string   `json:"system_name"`
	DefaultCurrency string   `json:"default_currency"`
	DSN             string   `json:"dsn,omitempty"`
	Query           string   `json:"query,omitempty"`
	WatchDir        string   `json:"watch_dir,omitempty"`
	Extensions      []string `json:"extensions,omitempty"`
	BaseURL         string   `json:"base_url,omitempty"`
	APIKey          string   `json:"api_key,omitempty"`
	AuthType        string   `json:"auth_type,omitempty"`
	Endpoint        string   `json:"endpoint,omitempty"`
	SinceParam      string   `json:"since_param,omitempty"`
}

// Adapter extracts new transactions from one POS source.
//
// TestConnection never returns an error: any failure collapses to false.
// GetNewTransactions errors are handled by the scheduler so retry and
// backoff stay centralized.
type Adapter interface {
	Configure(cfg Config) error
	TestConnection(ctx context.Context) bool
	GetNewTransactions(ctx context.Context, since time.Time) ([]models.Transaction, error)
}

// New returns an unconfigured adapter for the given kind.
func New(kind models.AdapterKind, log logger.Logger) (Adapter, error) {
	switch kind {
	case models.AdapterSQLite:
		return &SQLAdapter{driver: "sqlite3", logger: log.WithComponent("adapter.sqlite")}, nil
	case models.AdapterPostgres:
		return &SQLAdapter{driver: "pgx", logger: log.WithComponent("adapter.postgres")}, nil
	case models.AdapterCSV, models.AdapterJSON, models.AdapterXML:
		return &FileAdapter{logger: log.WithComponent("adapter.file")}, nil
	case models.AdapterREST:
		return &RESTAdapter{logger: log.WithComponent("adapter.rest")}, nil
	case models.AdapterUniversal:
		return &UniversalAdapter{logger: log.WithComponent("adapter.universal")}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, kind)
	}
}

// vendorAdapters maps vendor-name substrings to the adapter that serves
// that vendor. Checked before any source-kind default.
var vendorAdapters = []struct {
	substr string
	kind   models.AdapterKind
}{
	{"square", models.AdapterREST},
	{"shopify", models.AdapterREST},
	{"lightspeed", models.AdapterREST},
	{"clover", models.AdapterREST},
	{"aronium", models.AdapterSQLite},
	{"loyverse", models.AdapterSQLite},
	{"quickbooks", models.AdapterSQLite},
	{"sage", models.AdapterSQLite},
	{"dynamics", models.AdapterPostgres},
}

// Resolve picks the adapter for a candidate using a fixed precedence:
// vendor-name match, then source-kind default, then the universal
// fallback. Returns AdapterNone only for candidates nothing can serve.
func Resolve(sys *models.DiscoveredSystem) models.AdapterKind {
	name := strings.ToLower(sys.Name)

	for _, v := range vendorAdapters {
		if strings.Contains(name, v.substr) {
			return v.kind
		}
	}

	switch sys.Source {
	case models.SourceDatabase:
		return databaseKind(sys.DatabasePath)
	case models.SourceFile:
		return fileKind(sys.FilePath)
	case models.SourceNetwork:
		return models.AdapterREST
	case models.SourceRegistry, models.SourceService, models.SourceProcess, models.SourcePath:
		return models.AdapterUniversal
	}

	return models.AdapterUniversal
}

func databaseKind(path string) models.AdapterKind {
	lower := strings.ToLower(path)

	switch {
	case strings.HasPrefix(lower, "sqlserver://"):
		// No SQL Server driver is wired; the candidate surfaces unserved.
		return models.AdapterNone
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return models.AdapterPostgres
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return models.AdapterSQLite
	case "":
		// No extension means a DSN, not a file.
		return models.AdapterPostgres
	default:
		return models.AdapterUniversal
	}
}

func fileKind(path string) models.AdapterKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return models.AdapterCSV
	case ".json":
		return models.AdapterJSON
	case ".xml":
		return models.AdapterXML
	default:
		return models.AdapterUniversal
	}
}
