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
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// recordElements are the XML element names treated as one transaction.
var recordElements = map[string]bool{
	"transaction": true,
	"sale":        true,
	"order":       true,
	"invoice":     true,
	"receipt":     true,
}

// FileAdapter watches a directory of POS export files and parses anything
// newer than the watermark by extension.
type FileAdapter struct {
	cfg    Config
	logger logger.Logger
}

// NewFileParser builds a configured FileAdapter for callers outside the
// factory, such as the scheduler's event watcher.
func NewFileParser(cfg Config, log logger.Logger) (*FileAdapter, error) {
	a := &FileAdapter{logger: log.WithComponent("adapter.file")}
	if err := a.Configure(cfg); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *FileAdapter) Configure(cfg Config) error {
	if cfg.WatchDir == "" {
		return fmt.Errorf("%w: missing watch_dir", ErrNotConfigured)
	}

	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".csv", ".txt", ".json", ".xml"}
	}

	a.cfg = cfg

	return nil
}

func (a *FileAdapter) TestConnection(_ context.Context) bool {
	info, err := os.Stat(a.cfg.WatchDir)

	return err == nil && info.IsDir()
}

// GetNewTransactions parses every watched file modified after since.
// Output is sorted ascending by timestamp so the scheduler enqueues in
// time order.
func (a *FileAdapter) GetNewTransactions(ctx context.Context, since time.Time) ([]models.Transaction, error) {
	if a.cfg.WatchDir == "" {
		return nil, ErrNotConfigured
	}

	entries, err := os.ReadDir(a.cfg.WatchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch directory: %w", err)
	}

	var transactions []models.Transaction

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if entry.IsDir() || !a.watched(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().After(since) {
			continue
		}

		path := filepath.Join(a.cfg.WatchDir, entry.Name())

		parsed, err := a.ParseFile(path)
		if err != nil {
			// One bad export must not hide the rest of the directory.
			a.logger.Warn().Err(err).Str("file", path).Msg("Failed to parse export file")
			continue
		}

		transactions = append(transactions, parsed...)
	}

	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].Timestamp.Before(transactions[j].Timestamp)
	})

	return transactions, nil
}

func (a *FileAdapter) watched(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))

	for _, allowed := range a.cfg.Extensions {
		if ext == allowed {
			return true
		}
	}

	return false
}

// ParseFile parses one export file into canonical transactions. Exported
// so the scheduler's event watcher can process single files.
func (a *FileAdapter) ParseFile(path string) ([]models.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []map[string]interface{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		records, err = parseCSV(f)
	case ".json":
		records, err = parseJSON(f)
	case ".xml":
		records, err = parseXML(f)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	transactions := make([]models.Transaction, 0, len(records))

	for _, record := range records {
		tx := normalizeRecord(record, a.cfg.SystemName, a.cfg.DefaultCurrency)
		tx.SourceFile = path
		transactions = append(transactions, tx)
	}

	return transactions, nil
}

func parseCSV(r io.Reader) ([]map[string]interface{}, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, err
	}

	records := make([]map[string]interface{}, 0, len(rows))

	for _, row := range rows {
		record := make(map[string]interface{}, len(row))
		for k, v := range row {
			record[k] = v
		}

		records = append(records, record)
	}

	return records, nil
}

func parseJSON(r io.Reader) ([]map[string]interface{}, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var list []map[string]interface{}
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var single map[string]interface{}
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}

	return []map[string]interface{}{single}, nil
}

// parseXML walks the token stream collecting the child elements of any
// transaction-like element into a flat record.
func parseXML(r io.Reader) ([]map[string]interface{}, error) {
	decoder := xml.NewDecoder(r)

	var records []map[string]interface{}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		start, ok := token.(xml.StartElement)
		if !ok || !recordElements[strings.ToLower(start.Name.Local)] {
			continue
		}

		record, err := decodeXMLRecord(decoder, start.Name.Local)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func decodeXMLRecord(decoder *xml.Decoder, parent string) (map[string]interface{}, error) {
	record := make(map[string]interface{})

	var field string
	var text strings.Builder

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			field = t.Name.Local
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name.Local == parent {
				return record, nil
			}

			if field != "" {
				record[field] = strings.TrimSpace(text.String())
				field = ""
			}
		}
	}
}
