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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/config"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/connector"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/version"
)

func main() {
	// A local .env provides credentials during development; absence is
	// not an error.
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:     "pos-connector",
		Short:   "POS transaction connector for the JoFotara invoicing backend",
		Version: version.GetFullVersion(),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "connector.json", "Path to config file")

	rootCmd.AddCommand(discoverCmd(&configPath))
	rootCmd.AddCommand(foldersCmd(&configPath))
	rootCmd.AddCommand(runCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, configPath string) (*connector.Connector, *models.ConnectorConfig, error) {
	var cfg models.ConnectorConfig

	if err := config.NewConfig(nil).LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Debug:  cfg.Logging.Debug,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	agent, err := connector.New(&cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connector: %w", err)
	}

	return agent, &cfg, nil
}

func discoverCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery pass and print the systems found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			agent, _, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer agent.Close()

			systems, err := agent.Discover(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(systems)
		},
	}

	return cmd
}

func foldersCmd(configPath *string) *cobra.Command {
	var includeEmpty bool

	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Detect and rank candidate invoice-export folders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			agent, _, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer agent.Close()

			return printJSON(agent.DetectFolders(includeEmpty))
		},
	}

	cmd.Flags().BoolVar(&includeEmpty, "include-empty", false, "Include folders with no files")

	return cmd
}

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Discover POS systems and sync transactions until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			agent, _, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer agent.Close()

			if err := agent.StartMonitoring(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			agent.StopMonitoring()

			return nil
		},
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	return nil
}
