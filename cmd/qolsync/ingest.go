// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/omarrahmanbusiness/qolsync/internal/categorize"
	"github.com/omarrahmanbusiness/qolsync/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest collector records from JSON lines",
	Long: `Ingest records exported by the collectors into the local store.

Input is JSON lines, one record per line, each with a "kind" field of
health_sample, location, screen_time, or clinical_event. Location fixes are
categorized at ingestion using the visit history already in the store.
Reads stdin when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()

		var input io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			input = f
		}

		in, err := ingest.New(ctx, a.store, categorize.NopGeocoder{}, a.logger)
		if err != nil {
			return err
		}
		n, err := in.ReadAll(ctx, input)
		if err != nil {
			return fmt.Errorf("ingested %d records before error: %w", n, err)
		}
		fmt.Printf("Ingested %d records\n", n)
		return nil
	},
}

var setLocationCmd = &cobra.Command{
	Use:   "set-location (home|work) <latitude> <longitude>",
	Short: "Set the user-defined home or work coordinate",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q", args[1])
		}
		lng, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q", args[2])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()

		coord := categorize.Coordinate{Latitude: lat, Longitude: lng}
		switch args[0] {
		case "home":
			err = a.store.SetHomeLocation(ctx, coord)
		case "work":
			err = a.store.SetWorkLocation(ctx, coord)
		default:
			return fmt.Errorf("first argument must be home or work, got %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("Set %s location to %.6f, %.6f\n", args[0], lat, lng)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(setLocationCmd)
}
