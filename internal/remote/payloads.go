// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remote

import "time"

// Wire record types for the PostgREST tables. One explicit struct per entity
// kind; the orchestrator maps local records into these before upload.

// HealthSampleRecord is a row of the health_samples table.
type HealthSampleRecord struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	SampleType     string    `json:"sample_type"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit"`
	SourceName     string    `json:"source_name"`
	SourceBundleID string    `json:"source_bundle_id"`
}

// LocationRecord is a row of the locations table. Dedup happens on the
// (patient_id, visited_at, latitude, longitude) unique constraint.
type LocationRecord struct {
	PatientID string    `json:"patient_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Speed     float64   `json:"speed"`
	VisitedAt time.Time `json:"visited_at"`
	Category  string    `json:"category,omitempty"`
	PlaceName string    `json:"place_name,omitempty"`
	Address   string    `json:"address,omitempty"`
}

// LocationConflictKey names the locations unique constraint for
// ignore-duplicates inserts.
const LocationConflictKey = "patient_id,visited_at,latitude,longitude"

// ScreenTimeRecord is a row of the screen_time table. Optional metrics are
// omitted when zero-valued; daily aggregates are sparse.
type ScreenTimeRecord struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	MetricDate      time.Time `json:"metric_date"`
	MetricType      string    `json:"metric_type"`
	TotalScreenTime float64   `json:"total_screen_time,omitempty"`
	Pickups         int64     `json:"number_of_pickups,omitempty"`
	Duration        float64   `json:"duration,omitempty"`
	AppBundleID     string    `json:"app_bundle_id,omitempty"`
	AppName         string    `json:"app_name,omitempty"`
	Category        string    `json:"category,omitempty"`
}

// ClinicalEventRecord is a row of the clinical_events table.
type ClinicalEventRecord struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Notes      string    `json:"notes,omitempty"`
}

// patientRecord is the create payload and query result for patients.
type patientRecord struct {
	ID       string `json:"id,omitempty"`
	DeviceID string `json:"device_id"`
}

// SyncAttemptStart is the create payload for a sync_history row.
type SyncAttemptStart struct {
	PatientID string    `json:"patient_id"`
	SyncType  string    `json:"sync_type"` // "initial" or "incremental"
	StartedAt time.Time `json:"started_at"`
	Status    string    `json:"status"` // "in_progress"
}

// SyncAttemptCompletion finalizes a sync_history row after full success.
type SyncAttemptCompletion struct {
	CompletedAt     time.Time `json:"completed_at"`
	Status          string    `json:"status"` // "completed"
	RecordsSynced   int       `json:"records_synced"`
	HealthCount     int       `json:"health_samples_count"`
	LocationCount   int       `json:"locations_count"`
	ScreenTimeCount int       `json:"screen_time_count"`
	ClinicalCount   int       `json:"clinical_events_count"`
}

// SyncAttemptFailure finalizes a sync_history row after any failure.
type SyncAttemptFailure struct {
	CompletedAt  time.Time `json:"completed_at"`
	Status       string    `json:"status"` // "failed"
	ErrorMessage string    `json:"error_message"`
}
