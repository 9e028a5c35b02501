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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "connector.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"base_url": "http://localhost:8000",
		"email": "shop@example.com",
		"password": "secret"
	}`)

	var cfg models.ConnectorConfig
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, models.ModeInvoice, cfg.BackendMode)
	assert.Equal(t, "JOD", cfg.DefaultCurrency)
	assert.Equal(t, 60*time.Second, cfg.PollInterval.Std())
	assert.Equal(t, 1024, cfg.QueueSize)
	assert.Equal(t, "data/pos_cache.db", cfg.CachePath)
}

func TestLoadAndValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing base_url", `{"email":"a@b.c","password":"x"}`},
		{"invoice mode without credentials", `{"base_url":"http://x"}`},
		{"batch mode without api_key", `{"base_url":"http://x","backend_mode":"batch"}`},
		{"unknown mode", `{"base_url":"http://x","backend_mode":"ftp"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)

			var cfg models.ConnectorConfig
			require.Error(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg models.ConnectorConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), "/nonexistent/connector.json", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"base_url": `)

	var cfg models.ConnectorConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("POSCONNECTOR_PASSWORD", "env-secret")
	t.Setenv("POSCONNECTOR_API_KEY", "env-key")

	path := writeConfig(t, `{
		"base_url": "http://localhost:8000",
		"email": "shop@example.com",
		"password": "file-secret"
	}`)

	var cfg models.ConnectorConfig
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "env-secret", cfg.Password)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "shop@example.com", cfg.Email)
}

func TestEnvOverrideIgnoresEmptyValues(t *testing.T) {
	t.Setenv("POSCONNECTOR_PASSWORD", "")

	path := writeConfig(t, `{
		"base_url": "http://localhost:8000",
		"email": "shop@example.com",
		"password": "file-secret"
	}`)

	var cfg models.ConnectorConfig
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "file-secret", cfg.Password)
}

func TestDurationFieldsParse(t *testing.T) {
	path := writeConfig(t, `{
		"base_url": "http://localhost:8000",
		"email": "shop@example.com",
		"password": "secret",
		"poll_interval": "90s",
		"heartbeat_period": 300000000000
	}`)

	var cfg models.ConnectorConfig
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, 90*time.Second, cfg.PollInterval.Std())
	assert.Equal(t, 5*time.Minute, cfg.HeartbeatPeriod.Std())
}
