// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omarrahmanbusiness/qolsync/internal/httpapi"
	"github.com/omarrahmanbusiness/qolsync/internal/sched"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	Long: `Run the daemon: the daily scheduler plus the local admin HTTP
surface (health probe, status, manual sync trigger).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scheduler := sched.New(sched.Config{
			RunHour: a.cfg.Sync.RunHour,
			Budget:  a.cfg.Sync.Budget,
			Online:  online,
			Logger:  a.logger,
		})
		scheduler.RegisterHandler(sched.DailySyncTask, func(taskCtx context.Context) error {
			_, err := a.orch.RunSync(taskCtx)
			return err
		})
		if err := scheduler.ScheduleNext(); err != nil {
			return err
		}

		server := &http.Server{
			Addr:    a.cfg.HTTP.Addr,
			Handler: httpapi.New(a.orch, a.store, a.logger).Router(),
		}

		errs := make(chan error, 2)
		go func() {
			a.logger.Info("admin surface listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
		go func() {
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- err
			}
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
		case err := <-errs:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

// online is the scheduler's connectivity probe: the daily task requires
// network at execution time.
func online() bool {
	conn, err := net.DialTimeout("tcp", "1.1.1.1:443", 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func init() {
	rootCmd.AddCommand(runCmd)
}
