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

// Package models holds the shared data model for the POS connector.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SourceKind identifies which discovery probe produced a candidate.
type SourceKind string

const (
	SourceRegistry SourceKind = "registry"
	SourceService  SourceKind = "service"
	SourceProcess  SourceKind = "process"
	SourceFile     SourceKind = "file"
	SourceDatabase SourceKind = "database"
	SourceNetwork  SourceKind = "network"
	SourcePath     SourceKind = "path"
)

// AdapterKind is the closed set of transaction source handlers. Candidates
// resolve to exactly one kind during validation; AdapterNone marks a
// candidate that no adapter can serve.
type AdapterKind string

const (
	AdapterNone      AdapterKind = ""
	AdapterSQLite    AdapterKind = "sqlite"
	AdapterPostgres  AdapterKind = "postgres"
	AdapterCSV       AdapterKind = "csv"
	AdapterJSON      AdapterKind = "json"
	AdapterXML       AdapterKind = "xml"
	AdapterREST      AdapterKind = "rest"
	AdapterUniversal AdapterKind = "universal"
)

// DiscoveredSystem is a candidate POS installation found by one or more
// probes. Fields other than Adapter and Validated are immutable after the
// merge step.
type DiscoveredSystem struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Source       SourceKind  `json:"source"`
	InstallPath  string      `json:"install_path,omitempty"`
	FilePath     string      `json:"file_path,omitempty"`
	DatabasePath string      `json:"database_path,omitempty"`
	ServiceName  string      `json:"service_name,omitempty"`
	Port         int         `json:"port,omitempty"`
	PID          int32       `json:"pid,omitempty"`
	Adapter      AdapterKind `json:"adapter,omitempty"`
	Validated    bool        `json:"validated"`
	DiscoveredAt time.Time   `json:"discovered_at"`
}

// CompositeKey collapses candidates reported by more than one probe into a
// single identity. The probe kind is deliberately excluded so the same
// installation seen by several probes merges to one system.
func (s *DiscoveredSystem) CompositeKey() string {
	parts := []string{
		strings.ToLower(s.Name),
		strings.ToLower(s.InstallPath),
		strings.ToLower(s.FilePath),
		strings.ToLower(s.DatabasePath),
		strings.ToLower(s.ServiceName),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))

	return hex.EncodeToString(sum[:])
}

// CandidateFolder is a scored invoice-export folder candidate. Immutable
// after scoring.
type CandidateFolder struct {
	Path        string         `json:"path"`
	System      string         `json:"pos_system"`
	FileCount   int            `json:"file_count"`
	RecentFiles int            `json:"recent_files"`
	FileTypes   map[string]int `json:"file_types"`
	OldestFile  time.Time      `json:"oldest_file,omitempty"`
	NewestFile  time.Time      `json:"newest_file,omitempty"`
	Score       float64        `json:"score"`
	Method      string         `json:"discovery_method"`
}

// Customer is the buyer on a transaction.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// TransactionItem is one line item on a transaction.
type TransactionItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// Transaction is the canonical form every adapter produces. Never mutated
// after creation.
type Transaction struct {
	ID            string            `json:"id"`
	SourceSystem  string            `json:"source_system"`
	Timestamp     time.Time         `json:"timestamp"`
	Customer      Customer          `json:"customer"`
	Items         []TransactionItem `json:"items"`
	Subtotal      float64           `json:"subtotal"`
	Tax           float64           `json:"tax"`
	Total         float64           `json:"total"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Location      string            `json:"location,omitempty"`
	Employee      string            `json:"employee,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	SourceFile    string            `json:"source_file,omitempty"`
}

// QueuedTransaction pairs a transaction with its owning system on the sync
// queue.
type QueuedTransaction struct {
	SystemID    string
	SystemName  string
	Transaction Transaction
	EnqueuedAt  time.Time
}

// CachedTransaction is the local idempotency record for one transaction.
type CachedTransaction struct {
	SystemID      string    `json:"system_id"`
	TransactionID string    `json:"transaction_id"`
	Payload       []byte    `json:"payload"`
	Processed     bool      `json:"processed"`
	CreatedAt     time.Time `json:"created_at"`
}

// SyncStatus is the outcome recorded in the sync log.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)

// SyncLogEntry is one append-only audit record.
type SyncLogEntry struct {
	SystemID      string     `json:"system_id"`
	TransactionID string     `json:"transaction_id"`
	Status        SyncStatus `json:"status"`
	Message       string     `json:"message,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Session is the backend auth state. Replaced wholesale on refresh and
// persisted across restarts.
type Session struct {
	Token    string    `json:"token"`
	Expiry   time.Time `json:"expiry"`
	VendorID int64     `json:"vendor_id,omitempty"`
}

// Valid reports whether the token is present and not past expiry.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}

	return s.Expiry.IsZero() || now.Before(s.Expiry)
}

// ExpiringWithin reports whether the token expires inside the threshold.
func (s *Session) ExpiringWithin(now time.Time, threshold time.Duration) bool {
	if s == nil || s.Expiry.IsZero() {
		return false
	}

	return s.Expiry.Sub(now) < threshold
}
