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

// Package config loads and validates connector configuration.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
)

const envPrefix = "POSCONNECTOR_"

// Validator is implemented by configs that check and default themselves.
type Validator interface {
	Validate() error
}

// Loader reads configuration from some source into dst.
type Loader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// FileLoader loads configuration from a local JSON file.
type FileLoader struct{}

// Load implements Loader by reading and unmarshaling a JSON file.
func (*FileLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// Config holds the configuration loading dependencies.
type Config struct {
	loader Loader
	logger logger.Logger
}

// NewConfig initializes a Config with the default file loader.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Config{loader: &FileLoader{}, logger: log}
}

// LoadAndValidate loads a configuration file, applies POSCONNECTOR_* env
// overrides for credentials, and validates the result.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	if err := c.loader.Load(ctx, path, cfg); err != nil {
		return err
	}

	applyEnvOverrides(cfg)

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// applyEnvOverrides lets credentials and the backend URL come from the
// environment so they stay out of config files on shared machines.
func applyEnvOverrides(cfg interface{}) {
	overridable, ok := cfg.(interface {
		SetOverride(key, value string)
	})
	if !ok {
		return
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}

		kv := strings.SplitN(strings.TrimPrefix(env, envPrefix), "=", 2)
		if len(kv) != 2 || kv[1] == "" {
			continue
		}

		overridable.SetOverride(strings.ToLower(kv[0]), kv[1])
	}
}
