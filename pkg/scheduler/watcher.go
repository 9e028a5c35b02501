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

package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/adapters"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// watchedExtensions are the export formats the event watcher parses.
var watchedExtensions = map[string]bool{
	".csv": true, ".txt": true, ".json": true, ".xml": true,
}

// settleDelay gives the exporting program time to finish writing a file
// before we read it.
const settleDelay = 500 * time.Millisecond

// startWatcher registers a filesystem-event watcher on a folder source so
// new export files reach the queue immediately instead of on the next
// poll. With sweep set, files already in the folder are parsed once at
// startup; callers that also run a poll loop over the same directory pass
// false so startup content is not enqueued twice.
func (s *Scheduler) startWatcher(ctx context.Context, sys models.DiscoveredSystem, cfg adapters.Config, sweep bool) {
	parser, err := adapters.NewFileParser(cfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Str("system", sys.Name).Msg("Watcher not started")
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn().Err(err).Str("system", sys.Name).Msg("Failed to create folder watcher")
		return
	}

	if err := watcher.Add(cfg.WatchDir); err != nil {
		s.logger.Warn().Err(err).Str("dir", cfg.WatchDir).Msg("Failed to watch folder")
		watcher.Close()

		return
	}

	s.wg.Add(1)

	go s.watchLoop(ctx, sys, parser, watcher, cfg.WatchDir, sweep)
}

func (s *Scheduler) watchLoop(ctx context.Context, sys models.DiscoveredSystem,
	parser *adapters.FileAdapter, watcher *fsnotify.Watcher, dir string, sweep bool) {
	defer s.wg.Done()
	defer watcher.Close()

	s.active.Add(1)
	defer s.active.Add(-1)

	log := s.logger.With().Str("system", sys.Name).Str("dir", dir).Logger()
	log.Info().Msg("Folder watcher started")

	// Files already present when monitoring begins are still new to us,
	// unless a poll loop over the same directory picks them up.
	if sweep {
		s.sweepExisting(ctx, sys, parser, dir)
	}

	processed := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			if !watchedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}

			if processed[event.Name] {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(settleDelay):
			}

			transactions, err := parser.ParseFile(event.Name)
			if err != nil {
				log.Warn().Err(err).Str("file", event.Name).Msg("Failed to parse new export file")
				continue
			}

			processed[event.Name] = true

			for _, tx := range transactions {
				if !s.enqueue(ctx, sys, tx) {
					return
				}
			}

			if len(transactions) > 0 {
				log.Info().Str("file", event.Name).Int("count", len(transactions)).Msg("Export file enqueued")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			log.Warn().Err(err).Msg("Folder watcher error")
		}
	}
}

// sweepExisting parses files already sitting in the folder when the
// watcher starts.
func (s *Scheduler) sweepExisting(ctx context.Context, sys models.DiscoveredSystem,
	parser *adapters.FileAdapter, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		if entry.IsDir() || !watchedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		transactions, err := parser.ParseFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("Failed to parse existing export file")
			continue
		}

		for _, tx := range transactions {
			if !s.enqueue(ctx, sys, tx) {
				return
			}
		}
	}
}
