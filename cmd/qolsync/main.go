// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// qolsync is the passive-health sync daemon: it keeps the local record
// store synchronized to the remote Supabase store on a daily schedule, and
// offers manual sync, status, and record ingestion from the command line.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/omarrahmanbusiness/qolsync/internal/auth"
	"github.com/omarrahmanbusiness/qolsync/internal/config"
	"github.com/omarrahmanbusiness/qolsync/internal/logging"
	"github.com/omarrahmanbusiness/qolsync/internal/remote"
	"github.com/omarrahmanbusiness/qolsync/internal/store"
	"github.com/omarrahmanbusiness/qolsync/internal/syncer"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "qolsync",
	Short: "Background sync for passively collected health records",
	Long: `qolsync reconciles the local store of passively collected records
(health samples, locations, screen time, clinical events) with the remote
Supabase store: incremental since-last-sync upload, idempotent upserts,
bounded retry, daily schedule plus manual trigger.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default qolsync.yaml in working directory)")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the constructed service objects. Everything is built once
// here and passed by reference; there are no shared singletons.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	remote *remote.Client
	orch   *syncer.Orchestrator
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log)

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	var tokens auth.TokenProvider = auth.Anonymous{}
	if cfg.Supabase.AccessToken != "" {
		tokens = auth.NewStaticProvider(cfg.Supabase.AccessToken, logger)
	}
	rc := remote.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, tokens.AccessToken, logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		remote: rc,
		orch:   syncer.New(st, rc, logger),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}
