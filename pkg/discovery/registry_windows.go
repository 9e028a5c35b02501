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
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/windows/registry"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// uninstallKeys are the registry locations holding installed-software
// inventory.
var uninstallKeys = []struct {
	root registry.Key
	path string
}{
	{registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`},
	{registry.LOCAL_MACHINE, `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`},
	{registry.CURRENT_USER, `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`},
}

// registryProbe scans the installed-software registry for POS vendors.
type registryProbe struct{}

func (registryProbe) Kind() models.SourceKind { return models.SourceRegistry }

func (registryProbe) Discover(ctx context.Context) ([]models.DiscoveredSystem, error) {
	var systems []models.DiscoveredSystem

	for _, location := range uninstallKeys {
		if ctx.Err() != nil {
			return systems, ctx.Err()
		}

		key, err := registry.OpenKey(location.root, location.path, registry.READ)
		if err != nil {
			continue
		}

		names, err := key.ReadSubKeyNames(0)
		if err != nil {
			key.Close()
			continue
		}

		for _, name := range names {
			sub, err := registry.OpenKey(key, name, registry.READ)
			if err != nil {
				continue
			}

			display, _, err := sub.GetStringValue("DisplayName")
			if err == nil && matchesAny(display, posKeywords) && !excluded(display) {
				install, _, err := sub.GetStringValue("InstallLocation")
				if err != nil || install == "" {
					if uninstall, _, err := sub.GetStringValue("UninstallString"); err == nil {
						install = filepath.Dir(uninstall)
					}
				}

				systems = append(systems, models.DiscoveredSystem{
					Name:         display,
					Source:       models.SourceRegistry,
					InstallPath:  install,
					DiscoveredAt: time.Now(),
				})
			}

			sub.Close()
		}

		key.Close()
	}

	return systems, nil
}

// RegistryPaths returns registry string values under POS-related keys
// that look like existing directories. Used by the folder scorer.
func RegistryPaths(keywords []string) []string {
	var paths []string

	roots := []struct {
		root registry.Key
		path string
	}{
		{registry.CURRENT_USER, `Software`},
		{registry.LOCAL_MACHINE, `SOFTWARE`},
	}

	for _, location := range roots {
		key, err := registry.OpenKey(location.root, location.path, registry.READ)
		if err != nil {
			continue
		}

		names, err := key.ReadSubKeyNames(0)
		if err != nil {
			key.Close()
			continue
		}

		for _, name := range names {
			if !matchesAny(name, keywords) {
				continue
			}

			sub, err := registry.OpenKey(key, name, registry.READ)
			if err != nil {
				continue
			}

			if values, err := sub.ReadValueNames(0); err == nil {
				for _, value := range values {
					if data, _, err := sub.GetStringValue(value); err == nil {
						if info, err := os.Stat(data); err == nil && info.IsDir() {
							paths = append(paths, data)
						}
					}
				}
			}

			sub.Close()
		}

		key.Close()
	}

	return paths
}
