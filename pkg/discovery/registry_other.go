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

//go:build !windows

package discovery

import (
	"context"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// registryProbe has no equivalent information source off Windows; it
// reports itself unsupported and the engine logs and moves on.
type registryProbe struct{}

func (registryProbe) Kind() models.SourceKind { return models.SourceRegistry }

func (registryProbe) Discover(_ context.Context) ([]models.DiscoveredSystem, error) {
	return nil, ErrProbeUnsupported
}

// RegistryPaths has nothing to read off Windows.
func RegistryPaths(_ []string) []string {
	return nil
}
