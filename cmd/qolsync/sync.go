// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync attempt now",
	Long: `Run a manual sync attempt and wait for its result.

The manual trigger shares the orchestrator's single-flight guard: if a sync
is already in progress (for example the daily background run), this command
reports that and exits without starting a second attempt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		result, err := a.orch.RunSync(cmd.Context())
		if err != nil {
			// Manual sync surfaces a human-readable error to the caller.
			fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
			return err
		}

		fmt.Printf("Sync completed (%s): %d records\n", result.Type, result.Counts.Total())
		fmt.Printf("  health samples:  %d\n", result.Counts.HealthSamples)
		fmt.Printf("  locations:       %d\n", result.Counts.Locations)
		fmt.Printf("  screen time:     %d\n", result.Counts.ScreenTime)
		fmt.Printf("  clinical events: %d\n", result.Counts.ClinicalEvents)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
