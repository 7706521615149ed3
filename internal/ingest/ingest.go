// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package ingest is the collector boundary: it reads captured records as
// JSON lines and writes them into the local store. Location fixes are
// categorized here, once, at ingestion time; the derived category travels
// with the record into the store and onward in the sync payload.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omarrahmanbusiness/qolsync/internal/categorize"
	"github.com/omarrahmanbusiness/qolsync/internal/store"
)

// Line is one JSON-lines ingest record. Kind selects which payload fields
// apply.
type Line struct {
	Kind string `json:"kind"` // health_sample | location | screen_time | clinical_event

	// health_sample
	SampleType     string     `json:"sample_type,omitempty"`
	StartAt        *time.Time `json:"start_at,omitempty"`
	EndAt          *time.Time `json:"end_at,omitempty"`
	Value          float64    `json:"value,omitempty"`
	Unit           string     `json:"unit,omitempty"`
	SourceName     string     `json:"source_name,omitempty"`
	SourceBundleID string     `json:"source_bundle_id,omitempty"`

	// location
	Latitude  float64    `json:"latitude,omitempty"`
	Longitude float64    `json:"longitude,omitempty"`
	Altitude  float64    `json:"altitude,omitempty"`
	Speed     float64    `json:"speed,omitempty"`
	VisitedAt *time.Time `json:"visited_at,omitempty"`

	// screen_time
	MetricDate      *time.Time `json:"metric_date,omitempty"`
	MetricType      string     `json:"metric_type,omitempty"`
	TotalScreenTime float64    `json:"total_screen_time,omitempty"`
	Pickups         int64      `json:"number_of_pickups,omitempty"`
	Duration        float64    `json:"duration,omitempty"`
	AppBundleID     string     `json:"app_bundle_id,omitempty"`
	AppName         string     `json:"app_name,omitempty"`
	Category        string     `json:"category,omitempty"`

	// clinical_event
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Ingester writes collector records into the local store.
type Ingester struct {
	store       *store.Store
	categorizer *categorize.Categorizer
	logger      *slog.Logger
}

// New creates an Ingester. The categorizer's user-defined home/work
// coordinates are loaded from the store.
func New(ctx context.Context, st *store.Store, geocoder categorize.Geocoder, logger *slog.Logger) (*Ingester, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cat := categorize.New(geocoder, logger)
	if home, err := st.HomeLocation(ctx); err != nil {
		return nil, err
	} else if home != nil {
		cat.SetHomeLocation(*home)
	}
	if work, err := st.WorkLocation(ctx); err != nil {
		return nil, err
	} else if work != nil {
		cat.SetWorkLocation(*work)
	}
	return &Ingester{store: st, categorizer: cat, logger: logger}, nil
}

// ReadAll ingests every JSON line from r, returning the number of records
// written. Malformed lines abort with an error naming the line number.
func (in *Ingester) ReadAll(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			return n, fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
		}
		if err := in.ingest(ctx, line); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("failed to read input: %w", err)
	}
	return n, nil
}

func (in *Ingester) ingest(ctx context.Context, line Line) error {
	switch line.Kind {
	case "health_sample":
		if line.StartAt == nil || line.EndAt == nil {
			return fmt.Errorf("health_sample requires start_at and end_at")
		}
		return in.store.InsertHealthSample(ctx, store.HealthSample{
			ID:             uuid.New(),
			SampleType:     line.SampleType,
			StartAt:        *line.StartAt,
			EndAt:          *line.EndAt,
			Value:          line.Value,
			Unit:           line.Unit,
			SourceName:     line.SourceName,
			SourceBundleID: line.SourceBundleID,
		})

	case "location":
		if line.VisitedAt == nil {
			return fmt.Errorf("location requires visited_at")
		}
		return in.ingestLocation(ctx, line)

	case "screen_time":
		if line.MetricDate == nil {
			return fmt.Errorf("screen_time requires metric_date")
		}
		return in.store.InsertScreenTimeMetric(ctx, store.ScreenTimeMetric{
			ID:              uuid.New(),
			MetricDate:      *line.MetricDate,
			MetricType:      line.MetricType,
			TotalScreenTime: line.TotalScreenTime,
			Pickups:         line.Pickups,
			Duration:        line.Duration,
			AppBundleID:     line.AppBundleID,
			AppName:         line.AppName,
			Category:        line.Category,
		})

	case "clinical_event":
		if line.OccurredAt == nil {
			return fmt.Errorf("clinical_event requires occurred_at")
		}
		return in.store.InsertClinicalEvent(ctx, store.ClinicalEvent{
			ID:         uuid.New(),
			OccurredAt: *line.OccurredAt,
			Notes:      line.Notes,
		})

	default:
		return fmt.Errorf("unknown record kind %q", line.Kind)
	}
}

func (in *Ingester) ingestLocation(ctx context.Context, line Line) error {
	fix := categorize.Fix{
		Latitude:  line.Latitude,
		Longitude: line.Longitude,
		Altitude:  line.Altitude,
		Speed:     line.Speed,
		Timestamp: *line.VisitedAt,
	}

	history, err := in.store.VisitsNear(ctx, fix.Latitude, fix.Longitude, categorize.ClusterRadiusMeters)
	if err != nil {
		return err
	}
	categorized := in.categorizer.Categorize(ctx, fix, history)

	return in.store.InsertLocation(ctx, store.LocationVisit{
		Latitude:  line.Latitude,
		Longitude: line.Longitude,
		Altitude:  line.Altitude,
		Speed:     line.Speed,
		VisitedAt: *line.VisitedAt,
		Category:  string(categorized.Category),
		PlaceName: categorized.PlaceName,
		Address:   categorized.Address,
	})
}
