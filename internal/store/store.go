// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package store is the local SQLite store for collected records and durable
// sync state. Collectors write records in; the sync orchestrator reads them
// back by watermark. The store also owns the process-wide key-value state:
// the sync cursor, the cached remote patient id, the stable device id, and
// the user-defined home/work coordinates.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/omarrahmanbusiness/qolsync/internal/categorize"
)

// Keys in the sync_state table.
const (
	lastSyncAtKey   = "last_sync_at"
	patientIDKey    = "patient_id"
	deviceIDKey     = "device_id"
	homeLocationKey = "home_location"
	workLocationKey = "work_location"
)

// Store wraps the SQLite database. All timestamps are persisted as Unix
// milliseconds so watermark comparisons stay plain integer comparisons.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the local store at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := initializeDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS health_samples (
			id               TEXT PRIMARY KEY,
			sample_type      TEXT NOT NULL,
			start_at         INTEGER NOT NULL,  -- unix millis, sync watermark
			end_at           INTEGER NOT NULL,
			value            REAL NOT NULL,
			unit             TEXT NOT NULL DEFAULT '',
			source_name      TEXT NOT NULL DEFAULT '',
			source_bundle_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_samples_start_at ON health_samples(start_at)`,

		`CREATE TABLE IF NOT EXISTS locations (
			latitude   REAL NOT NULL,
			longitude  REAL NOT NULL,
			altitude   REAL NOT NULL DEFAULT 0,
			speed      REAL NOT NULL DEFAULT 0,
			visited_at INTEGER NOT NULL,         -- unix millis, sync watermark
			category   TEXT NOT NULL DEFAULT '',
			place_name TEXT NOT NULL DEFAULT '',
			address    TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (visited_at, latitude, longitude)
		)`,

		`CREATE TABLE IF NOT EXISTS screen_time (
			id                TEXT PRIMARY KEY,
			metric_date       INTEGER NOT NULL,  -- unix millis, sync watermark
			metric_type       TEXT NOT NULL,
			total_screen_time REAL NOT NULL DEFAULT 0,
			pickups           INTEGER NOT NULL DEFAULT 0,
			duration          REAL NOT NULL DEFAULT 0,
			app_bundle_id     TEXT NOT NULL DEFAULT '',
			app_name          TEXT NOT NULL DEFAULT '',
			category          TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_screen_time_metric_date ON screen_time(metric_date)`,

		`CREATE TABLE IF NOT EXISTS clinical_events (
			id          TEXT PRIMARY KEY,
			occurred_at INTEGER NOT NULL,        -- unix millis, sync watermark
			notes       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clinical_events_occurred_at ON clinical_events(occurred_at)`,
	}
	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// --- key-value sync state ---

func (s *Store) getState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query sync state %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) setState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set sync state %q: %w", key, err)
	}
	return nil
}

// DeviceID returns the stable device identifier, generating and persisting
// one on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	if id, ok, err := s.getState(ctx, deviceIDKey); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	id := uuid.New().String()
	if err := s.setState(ctx, deviceIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// LastSyncAt returns the sync cursor, or nil when no sync has completed yet.
func (s *Store) LastSyncAt(ctx context.Context) (*time.Time, error) {
	value, ok, err := s.getState(ctx, lastSyncAtKey)
	if err != nil || !ok {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last sync time %q: %w", value, err)
	}
	return &t, nil
}

// SetLastSyncAt advances the sync cursor. Called by the orchestrator only
// after a fully successful attempt.
func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return s.setState(ctx, lastSyncAtKey, t.UTC().Format(time.RFC3339Nano))
}

// PatientID returns the cached remote patient id ("" when unresolved).
func (s *Store) PatientID(ctx context.Context) (string, error) {
	id, _, err := s.getState(ctx, patientIDKey)
	return id, err
}

// SetPatientID caches the remote patient id.
func (s *Store) SetPatientID(ctx context.Context, id string) error {
	return s.setState(ctx, patientIDKey, id)
}

// HomeLocation returns the user-defined home coordinate, or nil when unset.
func (s *Store) HomeLocation(ctx context.Context) (*categorize.Coordinate, error) {
	return s.coordinate(ctx, homeLocationKey)
}

// SetHomeLocation persists the user-defined home coordinate.
func (s *Store) SetHomeLocation(ctx context.Context, coord categorize.Coordinate) error {
	return s.setCoordinate(ctx, homeLocationKey, coord)
}

// WorkLocation returns the user-defined work coordinate, or nil when unset.
func (s *Store) WorkLocation(ctx context.Context) (*categorize.Coordinate, error) {
	return s.coordinate(ctx, workLocationKey)
}

// SetWorkLocation persists the user-defined work coordinate.
func (s *Store) SetWorkLocation(ctx context.Context, coord categorize.Coordinate) error {
	return s.setCoordinate(ctx, workLocationKey, coord)
}

func (s *Store) coordinate(ctx context.Context, key string) (*categorize.Coordinate, error) {
	value, ok, err := s.getState(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var coord categorize.Coordinate
	if err := json.Unmarshal([]byte(value), &coord); err != nil {
		return nil, fmt.Errorf("failed to parse coordinate %q: %w", key, err)
	}
	return &coord, nil
}

func (s *Store) setCoordinate(ctx context.Context, key string, coord categorize.Coordinate) error {
	data, err := json.Marshal(coord)
	if err != nil {
		return fmt.Errorf("failed to marshal coordinate: %w", err)
	}
	return s.setState(ctx, key, string(data))
}

// --- collector write surface ---

// InsertHealthSample stores a health sample. A zero ID is assigned one.
func (s *Store) InsertHealthSample(ctx context.Context, rec HealthSample) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_samples (id, sample_type, start_at, end_at, value, unit, source_name, source_bundle_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID.String(), rec.SampleType, rec.StartAt.UnixMilli(), rec.EndAt.UnixMilli(),
		rec.Value, rec.Unit, rec.SourceName, rec.SourceBundleID)
	if err != nil {
		return fmt.Errorf("failed to insert health sample: %w", err)
	}
	return nil
}

// InsertLocation stores a categorized location visit. Duplicate fixes (same
// visit time and coordinate) are ignored.
func (s *Store) InsertLocation(ctx context.Context, rec LocationVisit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO locations (latitude, longitude, altitude, speed, visited_at, category, place_name, address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Latitude, rec.Longitude, rec.Altitude, rec.Speed, rec.VisitedAt.UnixMilli(),
		rec.Category, rec.PlaceName, rec.Address)
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

// InsertScreenTimeMetric stores or replaces a screen-time aggregate. The
// replace keeps re-aggregated dailies converging on the latest values.
func (s *Store) InsertScreenTimeMetric(ctx context.Context, rec ScreenTimeMetric) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO screen_time (id, metric_date, metric_type, total_screen_time, pickups, duration, app_bundle_id, app_name, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_screen_time = excluded.total_screen_time,
			pickups           = excluded.pickups,
			duration          = excluded.duration,
			app_bundle_id     = excluded.app_bundle_id,
			app_name          = excluded.app_name,
			category          = excluded.category
	`, rec.ID.String(), rec.MetricDate.UnixMilli(), rec.MetricType, rec.TotalScreenTime,
		rec.Pickups, rec.Duration, rec.AppBundleID, rec.AppName, rec.Category)
	if err != nil {
		return fmt.Errorf("failed to insert screen time metric: %w", err)
	}
	return nil
}

// InsertClinicalEvent stores a clinical event. A zero ID is assigned one.
func (s *Store) InsertClinicalEvent(ctx context.Context, rec ClinicalEvent) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clinical_events (id, occurred_at, notes) VALUES (?, ?, ?)
	`, rec.ID.String(), rec.OccurredAt.UnixMilli(), rec.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert clinical event: %w", err)
	}
	return nil
}

// --- watermark queries (sync read surface) ---

// sinceMillis converts an optional cursor to the exclusive lower bound used
// by watermark queries. A nil cursor selects everything (initial sync).
func sinceMillis(since *time.Time) int64 {
	if since == nil {
		return -1 << 62
	}
	return since.UnixMilli()
}

// HealthSamplesSince returns samples with start time after the cursor,
// ordered by watermark.
func (s *Store) HealthSamplesSince(ctx context.Context, since *time.Time) ([]HealthSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sample_type, start_at, end_at, value, unit, source_name, source_bundle_id
		FROM health_samples WHERE start_at > ? ORDER BY start_at
	`, sinceMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query health samples: %w", err)
	}
	defer rows.Close()

	var out []HealthSample
	for rows.Next() {
		var rec HealthSample
		var id string
		var startAt, endAt int64
		if err := rows.Scan(&id, &rec.SampleType, &startAt, &endAt, &rec.Value,
			&rec.Unit, &rec.SourceName, &rec.SourceBundleID); err != nil {
			return nil, fmt.Errorf("failed to scan health sample: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid health sample id %q: %w", id, err)
		}
		rec.StartAt = time.UnixMilli(startAt).UTC()
		rec.EndAt = time.UnixMilli(endAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LocationsSince returns location visits after the cursor, ordered by
// watermark.
func (s *Store) LocationsSince(ctx context.Context, since *time.Time) ([]LocationVisit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT latitude, longitude, altitude, speed, visited_at, category, place_name, address
		FROM locations WHERE visited_at > ? ORDER BY visited_at
	`, sinceMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []LocationVisit
	for rows.Next() {
		var rec LocationVisit
		var visitedAt int64
		if err := rows.Scan(&rec.Latitude, &rec.Longitude, &rec.Altitude, &rec.Speed,
			&visitedAt, &rec.Category, &rec.PlaceName, &rec.Address); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		rec.VisitedAt = time.UnixMilli(visitedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ScreenTimeSince returns screen-time metrics after the cursor, ordered by
// watermark.
func (s *Store) ScreenTimeSince(ctx context.Context, since *time.Time) ([]ScreenTimeMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metric_date, metric_type, total_screen_time, pickups, duration, app_bundle_id, app_name, category
		FROM screen_time WHERE metric_date > ? ORDER BY metric_date
	`, sinceMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query screen time: %w", err)
	}
	defer rows.Close()

	var out []ScreenTimeMetric
	for rows.Next() {
		var rec ScreenTimeMetric
		var id string
		var metricDate int64
		if err := rows.Scan(&id, &metricDate, &rec.MetricType, &rec.TotalScreenTime,
			&rec.Pickups, &rec.Duration, &rec.AppBundleID, &rec.AppName, &rec.Category); err != nil {
			return nil, fmt.Errorf("failed to scan screen time metric: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid screen time id %q: %w", id, err)
		}
		rec.MetricDate = time.UnixMilli(metricDate).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ClinicalEventsSince returns clinical events after the cursor, ordered by
// watermark.
func (s *Store) ClinicalEventsSince(ctx context.Context, since *time.Time) ([]ClinicalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, notes FROM clinical_events WHERE occurred_at > ? ORDER BY occurred_at
	`, sinceMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query clinical events: %w", err)
	}
	defer rows.Close()

	var out []ClinicalEvent
	for rows.Next() {
		var rec ClinicalEvent
		var id string
		var occurredAt int64
		if err := rows.Scan(&id, &occurredAt, &rec.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan clinical event: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid clinical event id %q: %w", id, err)
		}
		rec.OccurredAt = time.UnixMilli(occurredAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// VisitsNear returns the timestamps of recorded fixes within radiusMeters of
// the given coordinate. This is the categorizer's historical-visit window.
func (s *Store) VisitsNear(ctx context.Context, lat, lng, radiusMeters float64) ([]time.Time, error) {
	// Coarse bounding box first; exact haversine filter below. One degree of
	// latitude is ~111 km; a longitude degree shrinks by cos(latitude), so
	// the box widens toward the poles (and degenerates to all longitudes at
	// them).
	latDelta := radiusMeters / 111000.0
	lngDelta := 180.0
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 1e-3 {
		lngDelta = radiusMeters / (111000.0 * cosLat)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT latitude, longitude, visited_at FROM locations
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
	`, lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby visits: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var rlat, rlng float64
		var visitedAt int64
		if err := rows.Scan(&rlat, &rlng, &visitedAt); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		if categorize.DistanceMeters(lat, lng, rlat, rlng) < radiusMeters {
			out = append(out, time.UnixMilli(visitedAt).UTC())
		}
	}
	return out, rows.Err()
}

// RecordCounts reports per-collection totals for status output.
func (s *Store) RecordCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 4)
	for _, table := range []string{"health_samples", "locations", "screen_time", "clinical_events"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "`+table+`"`).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
