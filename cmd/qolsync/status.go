// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()

		deviceID, err := a.store.DeviceID(ctx)
		if err != nil {
			return err
		}
		patientID, err := a.store.PatientID(ctx)
		if err != nil {
			return err
		}
		lastSync, err := a.store.LastSyncAt(ctx)
		if err != nil {
			return err
		}
		counts, err := a.store.RecordCounts(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Device ID:  %s\n", deviceID)
		if patientID != "" {
			fmt.Printf("Patient ID: %s\n", patientID)
		} else {
			fmt.Println("Patient ID: (not yet resolved)")
		}
		if lastSync != nil {
			fmt.Printf("Last sync:  %s\n", lastSync.Local().Format(time.RFC3339))
		} else {
			fmt.Println("Last sync:  never (next run is an initial sync)")
		}
		fmt.Println("Local records:")
		for _, table := range []string{"health_samples", "locations", "screen_time", "clinical_events"} {
			fmt.Printf("  %-16s %d\n", table, counts[table])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
