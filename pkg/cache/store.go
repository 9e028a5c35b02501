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

// Package cache is the embedded store for discovered systems, processed
// transactions, and the sync audit log. The sync pipeline is the only
// writer; SQLite runs in WAL mode so status reads never block it.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS pos_systems (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    source        TEXT NOT NULL,
    adapter       TEXT,
    last_sync     TIMESTAMP,
    created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cached_transactions (
    system_id      TEXT NOT NULL,
    transaction_id TEXT NOT NULL,
    payload        TEXT,
    processed      INTEGER DEFAULT 0,
    created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (system_id, transaction_id)
);

CREATE TABLE IF NOT EXISTS sync_log (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    system_id      TEXT NOT NULL,
    transaction_id TEXT NOT NULL,
    status         TEXT NOT NULL,
    message        TEXT,
    created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store is the SQLite-backed local cache.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the cache database at path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSystem records a validated system so cached transactions can be
// joined back to it.
func (s *Store) UpsertSystem(ctx context.Context, sys *models.DiscoveredSystem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pos_systems (id, name, source, adapter)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, adapter = excluded.adapter`,
		sys.ID, sys.Name, string(sys.Source), string(sys.Adapter))

	return err
}

// UpdateSystemSync stores the last successful sync time for a system.
func (s *Store) UpdateSystemSync(ctx context.Context, systemID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pos_systems SET last_sync = ? WHERE id = ?`, at.UTC(), systemID)

	return err
}

// UpsertTransaction writes the idempotency record for one transaction.
// Re-inserting the same (system, transaction) pair updates the existing row
// instead of creating a duplicate.
func (s *Store) UpsertTransaction(ctx context.Context, rec *models.CachedTransaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cached_transactions (system_id, transaction_id, payload, processed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(system_id, transaction_id)
		DO UPDATE SET payload = excluded.payload, processed = excluded.processed`,
		rec.SystemID, rec.TransactionID, string(rec.Payload), boolToInt(rec.Processed))

	return err
}

// IsProcessed reports whether a transaction id has already been delivered.
func (s *Store) IsProcessed(ctx context.Context, systemID, transactionID string) (bool, error) {
	var processed int

	err := s.db.QueryRowContext(ctx, `
		SELECT processed FROM cached_transactions
		WHERE system_id = ? AND transaction_id = ?`,
		systemID, transactionID).Scan(&processed)
	if err == sql.ErrNoRows {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return processed == 1, nil
}

// AppendLog adds one audit record. The sync log is insert-only.
func (s *Store) AppendLog(ctx context.Context, entry *models.SyncLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_log (system_id, transaction_id, status, message)
		VALUES (?, ?, ?, ?)`,
		entry.SystemID, entry.TransactionID, string(entry.Status), entry.Message)

	return err
}

// TransactionCount returns how many transactions are cached for a system.
// An empty systemID counts across all systems.
func (s *Store) TransactionCount(ctx context.Context, systemID string) (int, error) {
	query := `SELECT COUNT(*) FROM cached_transactions`
	args := []interface{}{}

	if systemID != "" {
		query += ` WHERE system_id = ?`
		args = append(args, systemID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}

	return n, nil
}

// RecentLog returns up to limit audit entries, newest first.
func (s *Store) RecentLog(ctx context.Context, limit int) ([]models.SyncLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT system_id, transaction_id, status, COALESCE(message, ''), created_at
		FROM sync_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.SyncLogEntry

	for rows.Next() {
		var e models.SyncLogEntry

		if err := rows.Scan(&e.SystemID, &e.TransactionID, &e.Status, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
