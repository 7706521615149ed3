// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package syncer drives incremental synchronization of the local store to
// the remote PostgREST store. One attempt may be in flight at a time; the
// sync cursor only advances after an attempt succeeds for every entity kind,
// so a retried run is always a complete catch-up of the same window.
package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/omarrahmanbusiness/qolsync/internal/remote"
	"github.com/omarrahmanbusiness/qolsync/internal/store"
)

// EntityKind names one of the four synced record collections. Values match
// the remote table names.
type EntityKind string

const (
	KindHealthSamples  EntityKind = "health_samples"
	KindLocations      EntityKind = "locations"
	KindScreenTime     EntityKind = "screen_time"
	KindClinicalEvents EntityKind = "clinical_events"
)

// SyncType distinguishes the first full upload from incremental runs.
type SyncType string

const (
	SyncInitial     SyncType = "initial"
	SyncIncremental SyncType = "incremental"
)

// Counts holds per-kind record totals for one attempt.
type Counts struct {
	HealthSamples  int
	Locations      int
	ScreenTime     int
	ClinicalEvents int
}

// Total sums the per-kind counts.
func (c Counts) Total() int {
	return c.HealthSamples + c.Locations + c.ScreenTime + c.ClinicalEvents
}

// Result describes a completed sync attempt.
type Result struct {
	Type        SyncType
	StartedAt   time.Time
	CompletedAt time.Time
	Counts      Counts
}

// Orchestrator is the sync state machine. Construct one at process start
// and share it between the scheduler and any manual trigger surface; the
// single-flight guard lives here.
type Orchestrator struct {
	store  *store.Store
	remote *remote.Client
	logger *slog.Logger

	running atomic.Bool
}

// New creates an Orchestrator. A nil logger falls back to slog.Default().
func New(st *store.Store, rc *remote.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: st, remote: rc, logger: logger}
}

// Running reports whether a sync attempt is currently in flight.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// RunSync performs one sync attempt. A concurrent invocation returns
// ErrSyncInProgress without touching the remote store.
//
// Cancellation of ctx (including the scheduler's execution-budget expiry)
// aborts in-flight network operations; the attempt is then finalized as
// failed on a detached context and the cursor stays at its pre-attempt
// value, so no data window is ever skipped.
func (o *Orchestrator) RunSync(ctx context.Context) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer o.running.Store(false)

	o.logger.Info("starting sync")

	patientID, err := o.resolveIdentity(ctx)
	if err != nil {
		return nil, &IdentityError{Err: err}
	}

	cursor, err := o.store.LastSyncAt(ctx)
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	syncType := SyncIncremental
	if cursor == nil {
		syncType = SyncInitial
	}

	// The cursor candidate is the attempt's start time, not "now" at
	// completion; records written while the sync runs stay inside the next
	// window.
	startedAt := time.Now().UTC()

	attemptID, err := o.remote.BeginSyncAttempt(ctx, remote.SyncAttemptStart{
		PatientID: patientID,
		SyncType:  string(syncType),
		StartedAt: startedAt,
		Status:    "in_progress",
	})
	if err != nil {
		return nil, &AttemptError{Err: err}
	}

	counts, err := o.syncAllKinds(ctx, patientID, cursor)
	if err != nil {
		o.finalizeFailed(ctx, attemptID, err)
		return nil, err
	}

	if err := o.remote.CompleteSyncAttempt(ctx, attemptID, remote.SyncAttemptCompletion{
		CompletedAt:     time.Now().UTC(),
		Status:          "completed",
		RecordsSynced:   counts.Total(),
		HealthCount:     counts.HealthSamples,
		LocationCount:   counts.Locations,
		ScreenTimeCount: counts.ScreenTime,
		ClinicalCount:   counts.ClinicalEvents,
	}); err != nil {
		wrapped := &AttemptError{Err: err}
		o.finalizeFailed(ctx, attemptID, wrapped)
		return nil, wrapped
	}

	if err := o.store.SetLastSyncAt(ctx, startedAt); err != nil {
		return nil, &StoreError{Err: err}
	}

	result := &Result{
		Type:        syncType,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		Counts:      counts,
	}
	o.logger.Info("sync completed",
		"type", syncType,
		"records", counts.Total(),
		"health_samples", counts.HealthSamples,
		"locations", counts.Locations,
		"screen_time", counts.ScreenTime,
		"clinical_events", counts.ClinicalEvents)
	return result, nil
}

// syncAllKinds uploads each entity kind in fixed order, failing fast on the
// first error.
func (o *Orchestrator) syncAllKinds(ctx context.Context, patientID string, cursor *time.Time) (Counts, error) {
	var counts Counts

	n, err := o.syncHealthSamples(ctx, patientID, cursor)
	if err != nil {
		return counts, &EntityError{Kind: KindHealthSamples, Err: err}
	}
	counts.HealthSamples = n

	n, err = o.syncLocations(ctx, patientID, cursor)
	if err != nil {
		return counts, &EntityError{Kind: KindLocations, Err: err}
	}
	counts.Locations = n

	n, err = o.syncScreenTime(ctx, patientID, cursor)
	if err != nil {
		return counts, &EntityError{Kind: KindScreenTime, Err: err}
	}
	counts.ScreenTime = n

	n, err = o.syncClinicalEvents(ctx, patientID, cursor)
	if err != nil {
		return counts, &EntityError{Kind: KindClinicalEvents, Err: err}
	}
	counts.ClinicalEvents = n

	return counts, nil
}

// finalizeFailed marks the remote attempt failed. It runs on a context
// detached from the caller's so a cancelled or expired sync still records
// its failure; errors here are logged only.
func (o *Orchestrator) finalizeFailed(ctx context.Context, attemptID string, cause error) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := o.remote.FailSyncAttempt(detached, attemptID, remote.SyncAttemptFailure{
		CompletedAt:  time.Now().UTC(),
		Status:       "failed",
		ErrorMessage: cause.Error(),
	}); err != nil {
		o.logger.Warn("failed to record sync failure", "attempt_id", attemptID, "error", err)
	}
}

func (o *Orchestrator) syncHealthSamples(ctx context.Context, patientID string, cursor *time.Time) (int, error) {
	samples, err := o.store.HealthSamplesSince(ctx, cursor)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, nil
	}

	records := make([]remote.HealthSampleRecord, len(samples))
	for i, s := range samples {
		records[i] = remote.HealthSampleRecord{
			ID:             s.ID.String(),
			PatientID:      patientID,
			SampleType:     s.SampleType,
			StartDate:      s.StartAt,
			EndDate:        s.EndAt,
			Value:          s.Value,
			Unit:           s.Unit,
			SourceName:     s.SourceName,
			SourceBundleID: s.SourceBundleID,
		}
	}
	// Samples can be re-exported by the collector with corrected values, so
	// re-syncs by id must merge.
	if err := remote.InsertRecords(ctx, o.remote, "health_samples", records, remote.ResolutionMergeDuplicates, ""); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (o *Orchestrator) syncLocations(ctx context.Context, patientID string, cursor *time.Time) (int, error) {
	visits, err := o.store.LocationsSince(ctx, cursor)
	if err != nil {
		return 0, err
	}
	if len(visits) == 0 {
		return 0, nil
	}

	records := make([]remote.LocationRecord, len(visits))
	for i, v := range visits {
		records[i] = remote.LocationRecord{
			PatientID: patientID,
			Latitude:  v.Latitude,
			Longitude: v.Longitude,
			Altitude:  v.Altitude,
			Speed:     v.Speed,
			VisitedAt: v.VisitedAt,
			Category:  v.Category,
			PlaceName: v.PlaceName,
			Address:   v.Address,
		}
	}
	if err := remote.InsertRecords(ctx, o.remote, "locations", records, remote.ResolutionIgnoreDuplicates, remote.LocationConflictKey); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (o *Orchestrator) syncScreenTime(ctx context.Context, patientID string, cursor *time.Time) (int, error) {
	metrics, err := o.store.ScreenTimeSince(ctx, cursor)
	if err != nil {
		return 0, err
	}
	if len(metrics) == 0 {
		return 0, nil
	}

	records := make([]remote.ScreenTimeRecord, len(metrics))
	for i, m := range metrics {
		records[i] = remote.ScreenTimeRecord{
			ID:              m.ID.String(),
			PatientID:       patientID,
			MetricDate:      m.MetricDate,
			MetricType:      m.MetricType,
			TotalScreenTime: m.TotalScreenTime,
			Pickups:         m.Pickups,
			Duration:        m.Duration,
			AppBundleID:     m.AppBundleID,
			AppName:         m.AppName,
			Category:        m.Category,
		}
	}
	// Daily aggregates are recomputed locally as the day accrues, so
	// re-syncs by id must merge.
	if err := remote.InsertRecords(ctx, o.remote, "screen_time", records, remote.ResolutionMergeDuplicates, ""); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (o *Orchestrator) syncClinicalEvents(ctx context.Context, patientID string, cursor *time.Time) (int, error) {
	events, err := o.store.ClinicalEventsSince(ctx, cursor)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	records := make([]remote.ClinicalEventRecord, len(events))
	for i, e := range events {
		records[i] = remote.ClinicalEventRecord{
			ID:         e.ID.String(),
			PatientID:  patientID,
			OccurredAt: e.OccurredAt,
			Notes:      e.Notes,
		}
	}
	if err := remote.InsertRecords(ctx, o.remote, "clinical_events", records, remote.ResolutionIgnoreDuplicates, "id"); err != nil {
		return 0, err
	}
	return len(records), nil
}
