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

//go:build windows

package discovery

import (
	"context"

	"golang.org/x/sys/windows/registry"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

const sqlServerKey = `SOFTWARE\Microsoft\Microsoft SQL Server`

// sqlServerInstances enumerates locally installed SQL Server instances from
// the registry. POS suites built on SQL Server register here even when
// their data files live outside the swept roots.
func sqlServerInstances(ctx context.Context) []models.DiscoveredSystem {
	if ctx.Err() != nil {
		return nil
	}

	key, err := registry.OpenKey(registry.LOCAL_MACHINE, sqlServerKey, registry.READ)
	if err != nil {
		return nil
	}
	defer key.Close()

	instances, _, err := key.GetStringsValue("InstalledInstances")
	if err != nil {
		return nil
	}

	systems := make([]models.DiscoveredSystem, 0, len(instances))

	for _, instance := range instances {
		if instance == "" {
			continue
		}

		systems = append(systems, sqlServerSystem(instance))
	}

	return systems
}
