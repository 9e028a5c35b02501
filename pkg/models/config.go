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

package models

import (
	"errors"
	"time"
)

// BackendMode selects the payload shape sent to the invoicing backend.
type BackendMode string

const (
	// ModeInvoice creates an invoice then issues an explicit submit call.
	ModeInvoice BackendMode = "invoice"
	// ModeBatch posts transactions directly to the batch endpoint.
	ModeBatch BackendMode = "batch"
)

var (
	errMissingBaseURL = errors.New("base_url is required")
	errMissingLogin   = errors.New("email and password are required for invoice mode")
	errMissingAPIKey  = errors.New("api_key is required for batch mode")
	errInvalidMode    = errors.New("backend_mode must be \"invoice\" or \"batch\"")
)

// ConnectorConfig is the top-level agent configuration.
type ConnectorConfig struct {
	BaseURL          string      `json:"base_url"`
	Email            string      `json:"email,omitempty"`
	Password         string      `json:"password,omitempty"`
	APIKey           string      `json:"api_key,omitempty"`
	CustomerID       string      `json:"customer_id,omitempty"`
	BackendMode      BackendMode `json:"backend_mode"`
	AutoSubmit       bool        `json:"auto_submit"`
	DefaultCurrency  string      `json:"default_currency"`
	PollInterval     Duration    `json:"poll_interval"`
	HeartbeatPeriod  Duration    `json:"heartbeat_period"`
	DiscoveryTimeout Duration    `json:"discovery_timeout"`
	ProbeTimeout     Duration    `json:"probe_timeout"`
	QueueSize        int         `json:"queue_size"`
	CachePath        string      `json:"cache_path"`
	SessionPath      string      `json:"session_path"`
	DocumentDir      string      `json:"document_dir,omitempty"`
	Logging          LogConfig   `json:"logging"`
}

// LogConfig mirrors logger.Config without importing it (models stays leaf).
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Debug  bool   `json:"debug,omitempty"`
	Output string `json:"output,omitempty"`
}

// SetOverride applies one environment override. Only credential-bearing
// fields are overridable; everything else belongs in the config file.
func (c *ConnectorConfig) SetOverride(key, value string) {
	switch key {
	case "base_url":
		c.BaseURL = value
	case "email":
		c.Email = value
	case "password":
		c.Password = value
	case "api_key":
		c.APIKey = value
	case "customer_id":
		c.CustomerID = value
	}
}

// Validate applies defaults and rejects unusable configurations.
func (c *ConnectorConfig) Validate() error {
	if c.BaseURL == "" {
		return errMissingBaseURL
	}

	if c.BackendMode == "" {
		c.BackendMode = ModeInvoice
	}

	switch c.BackendMode {
	case ModeInvoice:
		if c.Email == "" || c.Password == "" {
			return errMissingLogin
		}
	case ModeBatch:
		if c.APIKey == "" {
			return errMissingAPIKey
		}
	default:
		return errInvalidMode
	}

	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "JOD"
	}

	if c.PollInterval <= 0 {
		c.PollInterval = Duration(60 * time.Second)
	}

	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = Duration(5 * time.Minute)
	}

	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = Duration(2 * time.Minute)
	}

	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = Duration(30 * time.Second)
	}

	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}

	if c.CachePath == "" {
		c.CachePath = "data/pos_cache.db"
	}

	if c.SessionPath == "" {
		c.SessionPath = "data/session.json"
	}

	return nil
}
