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

package adapters

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// UniversalAdapter is the best-effort fallback for candidates no specific
// adapter claims. It scans whatever structured files it can find under the
// system's path and relies entirely on alias matching; anything it cannot
// make sense of is skipped.
type UniversalAdapter struct {
	file   FileAdapter
	logger logger.Logger
}

func (a *UniversalAdapter) Configure(cfg Config) error {
	if cfg.WatchDir == "" && cfg.DSN != "" {
		// A lone file path still gives us a directory to scan.
		cfg.WatchDir = filepath.Dir(cfg.DSN)
	}

	cfg.Extensions = []string{".csv", ".txt", ".json", ".xml"}
	a.file = FileAdapter{logger: a.logger}

	return a.file.Configure(cfg)
}

// TestConnection only requires a readable directory: the fallback makes no
// promise it will find anything there.
func (a *UniversalAdapter) TestConnection(_ context.Context) bool {
	info, err := os.Stat(a.file.cfg.WatchDir)

	return err == nil && info.IsDir()
}

func (a *UniversalAdapter) GetNewTransactions(ctx context.Context, since time.Time) ([]models.Transaction, error) {
	return a.file.GetNewTransactions(ctx, since)
}
