// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"time"

	"github.com/google/uuid"
)

// HealthSample is a single quantity sample captured by the health collector.
// StartAt is the incremental-sync watermark for this kind.
type HealthSample struct {
	ID             uuid.UUID
	SampleType     string
	StartAt        time.Time
	EndAt          time.Time
	Value          float64
	Unit           string
	SourceName     string
	SourceBundleID string
}

// LocationVisit is a raw location fix enriched with its derived category.
// VisitedAt is the watermark. Locations have no client-generated UUID; the
// remote dedup key is (patient, visited_at, latitude, longitude).
type LocationVisit struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Speed     float64
	VisitedAt time.Time
	Category  string
	PlaceName string
	Address   string
}

// ScreenTimeMetric is a daily usage aggregate. MetricDate is the watermark.
// Aggregates are recomputed locally as the day accrues, so re-syncs of the
// same ID must merge remotely rather than insert.
type ScreenTimeMetric struct {
	ID              uuid.UUID
	MetricDate      time.Time
	MetricType      string
	TotalScreenTime float64 // seconds
	Pickups         int64
	Duration        float64 // seconds, per-app metrics
	AppBundleID     string
	AppName         string
	Category        string
}

// ClinicalEvent is a patient-reported clinical event. OccurredAt is the
// watermark.
type ClinicalEvent struct {
	ID         uuid.UUID
	OccurredAt time.Time
	Notes      string
}
