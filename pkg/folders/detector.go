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

// Package folders finds and ranks invoice-export folders so folder-based
// POS systems can be monitored without manual configuration.
package folders

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/discovery"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

const (
	methodPattern  = "pattern_match"
	methodRecent   = "recent_files"
	methodRegistry = "registry"
	methodCommon   = "common_locations"

	// recentWindow is how far back a file counts as recent activity.
	recentWindow = 30 * 24 * time.Hour
	// sweepWindow is how far back the recent-file sweep looks.
	sweepWindow = 7 * 24 * time.Hour
)

// vendorFolders maps vendor names to their typical export locations.
// "{home}" is replaced with the current user's home directory.
var vendorFolders = map[string][]string{
	"aronium": {
		`C:\Aronium\Invoices`,
		`C:\Aronium\Reports`,
		`C:\Aronium\Export`,
		`C:\Program Files\Aronium\Invoices`,
		`C:\Program Files (x86)\Aronium\Invoices`,
	},
	"square": {
		`C:\Square\Exports`,
		`C:\Square\Reports`,
		`{home}\Documents\Square`,
		`C:\ProgramData\Square\Exports`,
	},
	"shopify": {
		`C:\Shopify\Exports`,
		`{home}\Documents\Shopify`,
		`C:\ProgramData\Shopify\Reports`,
	},
	"quickbooks": {
		`{home}\Documents\QuickBooks\Exports`,
		`C:\ProgramData\Intuit\QuickBooks\Exports`,
		`C:\QuickBooks\Reports`,
	},
	"sage": {
		`C:\Sage\Reports`,
		`C:\Sage\Exports`,
		`C:\Program Files\Sage\Reports`,
		`C:\Program Files (x86)\Sage\Reports`,
	},
	"ncr": {
		`C:\NCR\Aloha\Reports`,
		`C:\NCR\Exports`,
		`C:\Aloha\Reports`,
	},
	"micros": {
		`C:\Micros\Reports`,
		`C:\Micros\Exports`,
		`C:\Program Files\Micros\Reports`,
	},
	"toast": {
		`C:\Toast\Exports`,
		`C:\Toast\Reports`,
		`{home}\Documents\Toast`,
	},
	"lightspeed": {
		`C:\Lightspeed\Exports`,
		`{home}\Documents\Lightspeed`,
	},
	"revel": {
		`C:\Revel\Exports`,
		`{home}\Documents\Revel`,
	},
	"clover": {
		`C:\Clover\Exports`,
		`{home}\Documents\Clover`,
	},
	"generic": {
		`C:\POS\Invoices`,
		`C:\POS\Reports`,
		`C:\POS\Exports`,
		`C:\Retail\Invoices`,
		`C:\Retail\Reports`,
		`C:\Cash\Invoices`,
		`C:\Store\Invoices`,
		`C:\Restaurant\Invoices`,
		`{home}\Documents\POS`,
		`{home}\Documents\Invoices`,
		`{home}\Desktop\Invoices`,
		`C:\Invoices`,
		`C:\Reports`,
		`C:\Exports`,
	},
}

// businessFolders are generic business-data locations worth a look when no
// vendor pattern matched.
var businessFolders = []string{
	`C:\Business`,
	`C:\Data`,
	`C:\Export`,
	`C:\Reports`,
	`{home}\Documents\Business`,
	`{home}\Documents\POS`,
	`{home}\Documents\Retail`,
}

// registryKeywords flag registry key and value names worth treating as
// export paths.
var registryKeywords = []string{"pos", "retail", "cash", "invoice", "receipt", "aronium"}

// sweepKeywords match file names that indicate invoice exports during the
// recent-file sweep.
var sweepKeywords = []string{"invoice", "receipt", "transaction"}

// genericSystems are the source labels that do not earn the named-vendor
// score bonus.
var genericSystems = map[string]bool{
	"generic": true, "discovered": true, "registry": true, "common": true,
}

// Detector scans the filesystem and OS registry for candidate invoice
// folders and ranks them.
type Detector struct {
	logger logger.Logger
	home   string
	now    func() time.Time
}

// NewDetector builds a detector. The home directory is resolved once; a
// missing home just disables the {home} patterns.
func NewDetector(log logger.Logger) *Detector {
	home, _ := os.UserHomeDir()

	return &Detector{
		logger: log.WithComponent("folders"),
		home:   home,
		now:    time.Now,
	}
}

// DetectFolders runs every detection method, deduplicates by normalized
// path and returns candidates ranked by score, best first. Empty folders
// are dropped unless includeEmpty is set.
func (d *Detector) DetectFolders(includeEmpty bool) []models.CandidateFolder {
	var candidates []models.CandidateFolder

	for vendor, patterns := range vendorFolders {
		for _, pattern := range patterns {
			path := d.expand(pattern)
			if path == "" || !isDir(path) {
				continue
			}

			if folder, ok := d.analyze(path, vendor, methodPattern); ok {
				candidates = append(candidates, folder)
			}
		}
	}

	candidates = append(candidates, d.byRecentFiles()...)
	candidates = append(candidates, d.byRegistry()...)
	candidates = append(candidates, d.byBusinessFolders()...)

	ranked := dedupe(candidates)

	if !includeEmpty {
		filtered := ranked[:0]
		for _, folder := range ranked {
			if folder.FileCount > 0 {
				filtered = append(filtered, folder)
			}
		}

		ranked = filtered
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	d.logger.Info().Int("folders", len(ranked)).Msg("Folder detection complete")

	return ranked
}

// BestFolder returns the top-ranked non-empty candidate path.
func (d *Detector) BestFolder() (string, bool) {
	ranked := d.DetectFolders(false)
	if len(ranked) == 0 {
		return "", false
	}

	best := ranked[0]
	d.logger.Info().
		Str("path", best.Path).
		Float64("score", best.Score).
		Msg("Best invoice folder candidate")

	return best.Path, true
}

// byRecentFiles finds folders holding invoice-looking files modified within
// the sweep window.
func (d *Detector) byRecentFiles() []models.CandidateFolder {
	var candidates []models.CandidateFolder

	cutoff := d.now().Add(-sweepWindow)
	seen := map[string]bool{}

	for _, root := range d.sweepRoots() {
		rootDepth := strings.Count(filepath.Clean(root), string(os.PathSeparator))

		_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}

			if entry.IsDir() {
				if strings.Count(path, string(os.PathSeparator))-rootDepth >= 4 {
					return filepath.SkipDir
				}

				return nil
			}

			name := strings.ToLower(entry.Name())

			matched := false
			for _, kw := range sweepKeywords {
				if strings.Contains(name, kw) {
					matched = true
					break
				}
			}

			if !matched {
				return nil
			}

			info, err := entry.Info()
			if err != nil || info.ModTime().Before(cutoff) {
				return nil
			}

			dir := filepath.Dir(path)
			if seen[strings.ToLower(dir)] {
				return nil
			}

			seen[strings.ToLower(dir)] = true

			if folder, ok := d.analyze(dir, "discovered", methodRecent); ok {
				candidates = append(candidates, folder)
			}

			return nil
		})
	}

	return candidates
}

// byRegistry asks the discovery package for directory-valued registry
// entries under POS-named keys.
func (d *Detector) byRegistry() []models.CandidateFolder {
	var candidates []models.CandidateFolder

	for _, path := range discovery.RegistryPaths(registryKeywords) {
		if folder, ok := d.analyze(path, "registry", methodRegistry); ok {
			candidates = append(candidates, folder)
		}
	}

	return candidates
}

func (d *Detector) byBusinessFolders() []models.CandidateFolder {
	var candidates []models.CandidateFolder

	for _, pattern := range businessFolders {
		path := d.expand(pattern)
		if path == "" || !isDir(path) {
			continue
		}

		if folder, ok := d.analyze(path, "common", methodCommon); ok && folder.FileCount > 0 {
			candidates = append(candidates, folder)
		}
	}

	return candidates
}

// analyze walks a folder two levels deep counting files by type and age,
// then scores it.
func (d *Detector) analyze(path, system, method string) (models.CandidateFolder, bool) {
	folder := models.CandidateFolder{
		Path:      path,
		System:    system,
		Method:    method,
		FileTypes: map[string]int{},
	}

	rootDepth := strings.Count(filepath.Clean(path), string(os.PathSeparator))
	recentCutoff := d.now().Add(-recentWindow)

	err := filepath.WalkDir(path, func(sub string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if entry.IsDir() {
			if strings.Count(sub, string(os.PathSeparator))-rootDepth > 2 {
				return filepath.SkipDir
			}

			return nil
		}

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
		switch ext {
		case "pdf", "json", "xml", "csv", "txt":
			folder.FileTypes[ext]++
		default:
			folder.FileTypes["other"]++
		}

		folder.FileCount++

		info, err := entry.Info()
		if err != nil {
			return nil
		}

		mod := info.ModTime()
		if folder.OldestFile.IsZero() || mod.Before(folder.OldestFile) {
			folder.OldestFile = mod
		}

		if mod.After(folder.NewestFile) {
			folder.NewestFile = mod
		}

		if mod.After(recentCutoff) {
			folder.RecentFiles++
		}

		return nil
	})
	if err != nil {
		d.logger.Debug().Err(err).Str("path", path).Msg("Failed to analyze folder")
		return models.CandidateFolder{}, false
	}

	folder.Score = Score(system, folder.FileCount, folder.RecentFiles, folder.FileTypes)

	return folder, true
}

// Score ranks a folder. Structured export formats weigh highest, named
// vendor locations beat generic ones, and oversized directories are
// penalized as likely mis-scoped.
func Score(system string, totalFiles, recentFiles int, fileTypes map[string]int) float64 {
	var score float64

	if totalFiles > 0 {
		score += 10
	}

	recency := float64(recentFiles) * 2
	if recency > 20 {
		recency = 20
	}
	score += recency

	score += float64(fileTypes["pdf"]) * 3
	score += float64(fileTypes["json"]) * 2
	score += float64(fileTypes["xml"]) * 2
	score += float64(fileTypes["csv"]) * 1.5

	if !genericSystems[system] {
		score += 15
	}

	if totalFiles > 1000 {
		score -= 10
	}

	return score
}

func (d *Detector) sweepRoots() []string {
	var roots []string

	if d.home != "" {
		roots = append(roots,
			filepath.Join(d.home, "Documents"),
			filepath.Join(d.home, "Desktop"),
		)
	}

	var existing []string
	for _, root := range roots {
		if isDir(root) {
			existing = append(existing, root)
		}
	}

	return existing
}

func (d *Detector) expand(pattern string) string {
	if !strings.Contains(pattern, "{home}") {
		return pattern
	}

	if d.home == "" {
		return ""
	}

	return strings.ReplaceAll(pattern, "{home}", d.home)
}

func isDir(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}

// dedupe keeps the first candidate for each normalized case-insensitive
// path. Vendor pattern matches run first, so they win over generic
// rediscoveries of the same directory.
func dedupe(candidates []models.CandidateFolder) []models.CandidateFolder {
	seen := make(map[string]bool, len(candidates))
	unique := make([]models.CandidateFolder, 0, len(candidates))

	for _, folder := range candidates {
		key := strings.ToLower(filepath.Clean(folder.Path))
		if seen[key] {
			continue
		}

		seen[key] = true
		unique = append(unique, folder)
	}

	return unique
}
