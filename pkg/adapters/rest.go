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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// responseWrappers are the envelope keys vendor APIs commonly wrap their
// transaction lists in.
var responseWrappers = []string{"data", "transactions", "orders", "payments", "results"}

// RESTAdapter pulls transactions from a vendor HTTP API.
type RESTAdapter struct {
	cfg    Config
	client *http.Client
	logger logger.Logger
}

func (a *RESTAdapter) Configure(cfg Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("%w: missing base_url", ErrNotConfigured)
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = "/transactions"
	}

	if cfg.SinceParam == "" {
		cfg.SinceParam = "since"
	}

	a.cfg = cfg
	a.client = &http.Client{Timeout: 30 * time.Second}

	return nil
}

// TestConnection probes the transactions endpoint. A 401 still proves the
// endpoint exists, so it counts as reachable.
func (a *RESTAdapter) TestConnection(ctx context.Context) bool {
	if a.client == nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+a.cfg.Endpoint, http.NoBody)
	if err != nil {
		return false
	}

	a.setAuth(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusUnauthorized
}

func (a *RESTAdapter) GetNewTransactions(ctx context.Context, since time.Time) ([]models.Transaction, error) {
	if a.client == nil {
		return nil, ErrNotConfigured
	}

	endpoint, err := url.Parse(a.cfg.BaseURL + a.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	query := endpoint.Query()
	query.Set(a.cfg.SinceParam, since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return nil, err
	}

	a.setAuth(req)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vendor API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor API returned status %d", resp.StatusCode)
	}

	var body interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode vendor response: %w", err)
	}

	records := unwrapRecords(body)
	transactions := make([]models.Transaction, 0, len(records))

	for _, record := range records {
		transactions = append(transactions, normalizeRecord(record, a.cfg.SystemName, a.cfg.DefaultCurrency))
	}

	return transactions, nil
}

func (a *RESTAdapter) setAuth(req *http.Request) {
	switch strings.ToLower(a.cfg.AuthType) {
	case "api_key":
		req.Header.Set("X-API-Key", a.cfg.APIKey)
	case "basic":
		req.Header.Set("Authorization",
			"Basic "+base64.StdEncoding.EncodeToString([]byte(a.cfg.APIKey)))
	default:
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
}

// unwrapRecords handles both bare arrays and the usual response envelopes.
func unwrapRecords(body interface{}) []map[string]interface{} {
	switch v := body.(type) {
	case []interface{}:
		return toRecords(v)
	case map[string]interface{}:
		for _, key := range responseWrappers {
			if inner, ok := v[key].([]interface{}); ok {
				return toRecords(inner)
			}
		}

		// A single object is a single transaction.
		return []map[string]interface{}{v}
	default:
		return nil
	}
}

func toRecords(list []interface{}) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(list))

	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, m)
		}
	}

	return records
}
