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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// BatchResult is the backend's per-batch accounting.
type BatchResult struct {
	Processed    int      `json:"processed"`
	Skipped      int      `json:"skipped"`
	Errors       int      `json:"errors"`
	ErrorDetails []string `json:"error_details,omitempty"`
}

// HeartbeatStatus is the agent health snapshot posted periodically so the
// backend can flag dead connectors.
type HeartbeatStatus struct {
	DiscoveredCount int            `json:"discovered_count"`
	ActiveWorkers   int            `json:"active_workers"`
	QueueDepth      int            `json:"queue_depth"`
	FailureCounts   map[string]int `json:"failure_counts,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// BatchClient drives the API-key-authenticated batch endpoints. Unlike the
// invoice client it has no token lifecycle: the key is static.
type BatchClient struct {
	baseURL    string
	apiKey     string
	customerID string
	httpClient *http.Client
	logger     logger.Logger
}

func NewBatchClient(cfg *models.ConnectorConfig, log logger.Logger) *BatchClient {
	return &BatchClient{
		baseURL:    strings.TrimRight(ensureScheme(cfg.BaseURL), "/"),
		apiKey:     cfg.APIKey,
		customerID: cfg.CustomerID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.WithComponent("api.batch"),
	}
}

// TestConnection checks the key against the backend's test endpoint.
func (c *BatchClient) TestConnection(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "/api/pos-connector/test", nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Connection test failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// SendTransactions posts a transaction batch and returns the backend's
// processed/skipped/errors accounting.
func (c *BatchClient) SendTransactions(ctx context.Context, transactions []models.Transaction) (*BatchResult, error) {
	payload := struct {
		CustomerID   string               `json:"customer_id,omitempty"`
		Transactions []models.Transaction `json:"transactions"`
	}{
		CustomerID:   c.customerID,
		Transactions: transactions,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/pos-connector/transactions", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("send transactions returned status %d", resp.StatusCode)
	}

	var result BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid batch response: %w", err)
	}

	if result.Errors > 0 {
		c.logger.Warn().
			Int("errors", result.Errors).
			Strs("details", result.ErrorDetails).
			Msg("Backend rejected some transactions")
	}

	c.logger.Info().
		Int("sent", len(transactions)).
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Msg("Transaction batch delivered")

	return &result, nil
}

// SendHeartbeat posts the agent health snapshot.
func (c *BatchClient) SendHeartbeat(ctx context.Context, status HeartbeatStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/pos-connector/heartbeat", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat returned status %d", resp.StatusCode)
	}

	return nil
}

// Stats fetches the backend's transaction statistics for this connector.
func (c *BatchClient) Stats(ctx context.Context) (map[string]interface{}, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/pos-connector/stats", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats returned status %d", resp.StatusCode)
	}

	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("invalid stats response: %w", err)
	}

	return stats, nil
}

func (c *BatchClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}
