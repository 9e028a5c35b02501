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
	"time"

	"github.com/shirou/gopsutil/v3/winservices"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// serviceProbe scans the Windows service table for POS services.
type serviceProbe struct{}

func (serviceProbe) Kind() models.SourceKind { return models.SourceService }

func (serviceProbe) Discover(ctx context.Context) ([]models.DiscoveredSystem, error) {
	services, err := winservices.ListServices()
	if err != nil {
		return nil, err
	}

	var systems []models.DiscoveredSystem

	for i := range services {
		if ctx.Err() != nil {
			return systems, ctx.Err()
		}

		svc := &services[i]
		if err := svc.GetServiceDetail(); err != nil {
			continue
		}

		display := svc.Config.DisplayName
		if display == "" {
			display = svc.Name
		}

		if !matchesAny(svc.Name, posKeywords) && !matchesAny(display, posKeywords) {
			continue
		}

		if excluded(display) {
			continue
		}

		systems = append(systems, models.DiscoveredSystem{
			Name:         display,
			Source:       models.SourceService,
			ServiceName:  svc.Name,
			FilePath:     svc.Config.BinaryPathName,
			DiscoveredAt: time.Now(),
		})
	}

	return systems, nil
}
