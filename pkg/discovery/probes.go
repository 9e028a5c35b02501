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

package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// Probe is one independent discovery source. Discover returns its partial
// results; an error never aborts the overall discovery pass.
type Probe interface {
	Kind() models.SourceKind
	Discover(ctx context.Context) ([]models.DiscoveredSystem, error)
}

// processProbe scans running processes for POS-looking names.
type processProbe struct{}

func (processProbe) Kind() models.SourceKind { return models.SourceProcess }

func (processProbe) Discover(ctx context.Context) ([]models.DiscoveredSystem, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var systems []models.DiscoveredSystem

	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}

		if !matchesAny(name, posKeywords) || excluded(name) {
			continue
		}

		exe, _ := proc.ExeWithContext(ctx)

		systems = append(systems, models.DiscoveredSystem{
			Name:         name,
			Source:       models.SourceProcess,
			InstallPath:  filepath.Dir(exe),
			FilePath:     exe,
			PID:          proc.Pid,
			DiscoveredAt: time.Now(),
		})
	}

	return systems, nil
}

// networkProbe inspects the open-socket table for listeners on ports POS
// backends commonly use, then keyword-checks the owning process.
type networkProbe struct{}

func (networkProbe) Kind() models.SourceKind { return models.SourceNetwork }

func (networkProbe) Discover(ctx context.Context) ([]models.DiscoveredSystem, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	var systems []models.DiscoveredSystem

	for _, conn := range conns {
		if conn.Status != "LISTEN" || !posPorts[conn.Laddr.Port] || conn.Pid == 0 {
			continue
		}

		proc, err := process.NewProcessWithContext(ctx, conn.Pid)
		if err != nil {
			continue
		}

		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}

		if !matchesAny(name, []string{"pos", "retail", "cash", "sql"}) || excluded(name) {
			continue
		}

		systems = append(systems, models.DiscoveredSystem{
			Name:         fmt.Sprintf("Network POS (%s)", name),
			Source:       models.SourceNetwork,
			Port:         int(conn.Laddr.Port),
			PID:          conn.Pid,
			DiscoveredAt: time.Now(),
		})
	}

	return systems, nil
}

// fileProbe sweeps common installation roots for POS-named executables and
// data files, a few directory levels deep.
type fileProbe struct {
	roots []string
}

func (fileProbe) Kind() models.SourceKind { return models.SourceFile }

func (p fileProbe) Discover(ctx context.Context) ([]models.DiscoveredSystem, error) {
	var systems []models.DiscoveredSystem

	for _, root := range p.roots {
		if ctx.Err() != nil {
			return systems, ctx.Err()
		}

		systems = append(systems, sweepRoot(ctx, root, 3, func(path, name string) *models.DiscoveredSystem {
			ext := strings.ToLower(filepath.Ext(name))
			if ext != ".exe" && ext != ".db" && ext != ".mdb" && ext != ".accdb" {
				return nil
			}

			if !matchesAny(name, posFilePatterns) {
				return nil
			}

			return &models.DiscoveredSystem{
				Name:         fmt.Sprintf("POS System (%s)", name),
				Source:       models.SourceFile,
				FilePath:     path,
				DiscoveredAt: time.Now(),
			}
		})...)
	}

	return systems, nil
}

// databaseProbe looks for embedded database files whose name or table set
// suggests POS data.
type databaseProbe struct {
	roots []string
}

func (databaseProbe) Kind() models.SourceKind { return models.SourceDatabase }

func (p databaseProbe) Discover(ctx context.Context) ([]models.DiscoveredSystem, error) {
	// Server-grade installations register in the registry rather than as
	// loose database files.
	systems := sqlServerInstances(ctx)

	for _, root := range p.roots {
		if ctx.Err() != nil {
			return systems, ctx.Err()
		}

		systems = append(systems, sweepRoot(ctx, root, 2, func(path, name string) *models.DiscoveredSystem {
			switch strings.ToLower(filepath.Ext(name)) {
			case ".db", ".sqlite", ".sqlite3", ".mdb", ".accdb", ".dbf":
			default:
				return nil
			}

			if !isPOSDatabase(ctx, path) {
				return nil
			}

			return &models.DiscoveredSystem{
				Name:         fmt.Sprintf("Database POS (%s)", name),
				Source:       models.SourceDatabase,
				DatabasePath: path,
				DiscoveredAt: time.Now(),
			}
		})...)
	}

	return systems, nil
}

// sqlServerSystem is the candidate for one local SQL Server instance. The
// DSN uses the sqlserver scheme; with no SQL Server driver wired the
// candidate surfaces unvalidated.
func sqlServerSystem(instance string) models.DiscoveredSystem {
	dsn := "sqlserver://localhost"
	service := "MSSQLSERVER"

	if !strings.EqualFold(instance, "MSSQLSERVER") {
		dsn += "/" + instance
		service = "MSSQL$" + instance
	}

	return models.DiscoveredSystem{
		Name:         fmt.Sprintf("Microsoft SQL Server (%s)", instance),
		Source:       models.SourceDatabase,
		DatabasePath: dsn,
		ServiceName:  service,
		DiscoveredAt: time.Now(),
	}
}

// pathProbe checks the static installation-path allowlist.
type pathProbe struct{}

func (pathProbe) Kind() models.SourceKind { return models.SourcePath }

func (pathProbe) Discover(_ context.Context) ([]models.DiscoveredSystem, error) {
	var systems []models.DiscoveredSystem

	for _, known := range knownPaths {
		if info, err := os.Stat(known.Path); err != nil || !info.IsDir() {
			continue
		}

		systems = append(systems, models.DiscoveredSystem{
			Name:         known.Name,
			Source:       models.SourcePath,
			InstallPath:  known.Path,
			DiscoveredAt: time.Now(),
		})
	}

	return systems, nil
}

// sweepRoot walks a root up to maxDepth levels, collecting whatever match
// produces. Unreadable subtrees are skipped, not fatal.
func sweepRoot(ctx context.Context, root string, maxDepth int,
	match func(path, name string) *models.DiscoveredSystem) []models.DiscoveredSystem {
	rootDepth := strings.Count(filepath.Clean(root), string(os.PathSeparator))

	var systems []models.DiscoveredSystem

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			return nil
		}

		if d.IsDir() {
			if strings.Count(path, string(os.PathSeparator))-rootDepth >= maxDepth {
				return filepath.SkipDir
			}

			return nil
		}

		if sys := match(path, d.Name()); sys != nil {
			systems = append(systems, *sys)
		}

		return nil
	})

	return systems
}

// isPOSDatabase accepts a database file either by name keywords or, for
// SQLite files, by sniffing its table names.
func isPOSDatabase(ctx context.Context, path string) bool {
	if matchesAny(filepath.Base(path), posDatabaseKeywords) {
		return true
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
	default:
		return false
	}

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return false
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var table string
		if rows.Scan(&table) == nil && matchesAny(table, posTableKeywords) {
			return true
		}
	}

	return false
}

// defaultSweepRoots returns the filesystem roots the file and database
// probes cover when the config does not override them.
func defaultSweepRoots() []string {
	home, _ := os.UserHomeDir()

	roots := []string{
		`C:\Program Files`,
		`C:\Program Files (x86)`,
		`C:\POS`,
		`C:\Retail`,
		`C:\Data`,
	}

	if home != "" {
		roots = append(roots,
			filepath.Join(home, "Documents"),
			filepath.Join(home, "AppData", "Local"),
			filepath.Join(home, "AppData", "Roaming"),
		)
	}

	var existing []string

	for _, root := range roots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			existing = append(existing, root)
		}
	}

	return existing
}
