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

package connector

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

func newTestConnector(t *testing.T, mutate func(*models.ConnectorConfig)) *Connector {
	t.Helper()

	dir := t.TempDir()
	cfg := &models.ConnectorConfig{
		BaseURL:     "http://127.0.0.1:1",
		BackendMode: models.ModeBatch,
		APIKey:      "test-key",
		CustomerID:  "42",
		CachePath:   filepath.Join(dir, "cache.db"),
		SessionPath: filepath.Join(dir, "session.json"),
	}
	if mutate != nil {
		mutate(cfg)
	}

	require.NoError(t, cfg.Validate())

	c, err := New(cfg, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestNewOpensCacheAndReportsIdleStatus(t *testing.T) {
	c := newTestConnector(t, nil)

	status := c.GetStatus()
	assert.Zero(t, status.DiscoveredCount)
	assert.Zero(t, status.ActiveWorkers)
	assert.Zero(t, status.QueueDepth)
	assert.Empty(t, status.FailureCounts)
}

func TestNewInvoiceModeRequiresNoAPIKey(t *testing.T) {
	c := newTestConnector(t, func(cfg *models.ConnectorConfig) {
		cfg.BackendMode = models.ModeInvoice
		cfg.Email = "shop@example.com"
		cfg.Password = "secret"
		cfg.APIKey = ""
		cfg.PollInterval = models.Duration(time.Second)
	})

	assert.NotNil(t, c)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newTestConnector(t, nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
