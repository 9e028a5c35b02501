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
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// defaultQueryTables crossed with defaultQueryColumns produce the fallback
// queries tried when no explicit query is configured.
var (
	defaultQueryTables  = []string{"transactions", "sales", "receipts", "orders"}
	defaultQueryColumns = []string{"date_created", "sale_date", "receipt_date", "order_date", "created_at"}
)

// SQLAdapter extracts transactions from an embedded or networked
// relational database.
type SQLAdapter struct {
	driver string
	cfg    Config
	db     *sql.DB
	logger logger.Logger
}

// Configure opens the database handle. The connection is verified lazily
// by TestConnection, not here.
func (a *SQLAdapter) Configure(cfg Config) error {
	if cfg.DSN == "" {
		return fmt.Errorf("%w: missing dsn", ErrNotConfigured)
	}

	dsn := cfg.DSN
	if a.driver == "sqlite3" {
		dsn += "?mode=ro"
	}

	db, err := sql.Open(a.driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", a.driver, err)
	}

	if a.db != nil {
		_ = a.db.Close()
	}

	a.cfg = cfg
	a.db = db

	return nil
}

func (a *SQLAdapter) TestConnection(ctx context.Context) bool {
	if a.db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return a.db.PingContext(ctx) == nil
}

// GetNewTransactions runs the configured query, or walks the default
// table/column candidates until one succeeds, and normalizes the rows.
func (a *SQLAdapter) GetNewTransactions(ctx context.Context, since time.Time) ([]models.Transaction, error) {
	if a.db == nil {
		return nil, ErrNotConfigured
	}

	queries := a.candidateQueries()

	var lastErr error

	for _, query := range queries {
		rows, err := a.db.QueryContext(ctx, query, a.sinceArg(since))
		if err != nil {
			lastErr = err
			continue
		}

		transactions, err := a.scanRows(rows)
		if err != nil {
			lastErr = err
			continue
		}

		return transactions, nil
	}

	return nil, fmt.Errorf("no usable transaction query for %s: %w", a.cfg.SystemName, lastErr)
}

func (a *SQLAdapter) candidateQueries() []string {
	if a.cfg.Query != "" {
		return []string{a.cfg.Query}
	}

	placeholder := "?"
	if a.driver == "pgx" {
		placeholder = "$1"
	}

	queries := make([]string, 0, len(defaultQueryTables)*len(defaultQueryColumns))

	for _, table := range defaultQueryTables {
		for _, column := range defaultQueryColumns {
			queries = append(queries, fmt.Sprintf(
				"SELECT * FROM %s WHERE %s > %s ORDER BY %s ASC", table, column, placeholder, column))
		}
	}

	return queries
}

// sinceArg matches the watermark to what each engine compares cleanly:
// SQLite dates are usually ISO text, Postgres takes a timestamp.
func (a *SQLAdapter) sinceArg(since time.Time) interface{} {
	if a.driver == "sqlite3" {
		return since.UTC().Format("2006-01-02 15:04:05")
	}

	return since.UTC()
}

func (a *SQLAdapter) scanRows(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var transactions []models.Transaction

	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))

		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))

		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}

		transactions = append(transactions, normalizeRecord(record, a.cfg.SystemName, a.cfg.DefaultCurrency))
	}

	return transactions, rows.Err()
}

// Close releases the database handle.
func (a *SQLAdapter) Close() error {
	if a.db == nil {
		return nil
	}

	return a.db.Close()
}
