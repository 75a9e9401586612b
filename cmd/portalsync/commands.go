/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/estatehub/portal-sync/pkg/app"
	"github.com/estatehub/portal-sync/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "portalsync",
		Short: "Visibility-aware polling gateway for the property portal",
		Long: `portalsync keeps dashboard views in sync with the portal backend.

Each view is polled on its own adaptive interval: the interval grows while
the backend keeps returning the same data, resets when it changes, and
polling pauses while the dashboard is hidden.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $PORTALSYNC_CONFIG or config.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the view pollers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), cfgFile)
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cfgFile)
				if err != nil {
					return err
				}
				if cfg.Backend.Token != "" {
					cfg.Backend.Token = "<redacted>"
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				return enc.Close()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "portalsync %s\n", version)
			},
		},
	)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func serve(ctx context.Context, cfgFile string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	server, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	rootCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := server.Run(rootCtx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
