// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarrahmanbusiness/qolsync/internal/categorize"
	"github.com/omarrahmanbusiness/qolsync/internal/store"
)

func newTestIngester(t *testing.T) (*Ingester, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "qolsync.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	in, err := New(context.Background(), st, categorize.NopGeocoder{}, nil)
	require.NoError(t, err)
	return in, st
}

func TestReadAllMixedKinds(t *testing.T) {
	in, st := newTestIngester(t)
	ctx := context.Background()

	input := strings.Join([]string{
		`{"kind":"health_sample","sample_type":"heart_rate","start_at":"2025-06-01T08:00:00Z","end_at":"2025-06-01T08:01:00Z","value":62,"unit":"count/min"}`,
		``,
		`{"kind":"screen_time","metric_date":"2025-06-01T00:00:00Z","metric_type":"daily_total","total_screen_time":5400,"number_of_pickups":47}`,
		`{"kind":"clinical_event","occurred_at":"2025-06-01T15:00:00Z","notes":"dizziness reported"}`,
	}, "\n")

	n, err := in.ReadAll(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, n, "blank lines are skipped")

	counts, err := st.RecordCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["health_samples"])
	assert.Equal(t, int64(1), counts["screen_time"])
	assert.Equal(t, int64(1), counts["clinical_events"])
}

func TestReadAllMalformedLineNamesLineNumber(t *testing.T) {
	in, _ := newTestIngester(t)

	input := `{"kind":"clinical_event","occurred_at":"2025-06-01T15:00:00Z"}` + "\n" + `{not json`
	n, err := in.ReadAll(context.Background(), strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, 1, n, "records before the bad line are kept")
}

func TestReadAllRejectsUnknownKind(t *testing.T) {
	in, _ := newTestIngester(t)

	_, err := in.ReadAll(context.Background(), strings.NewReader(`{"kind":"blood_type"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown record kind")
}

func TestReadAllRejectsMissingRequiredFields(t *testing.T) {
	in, _ := newTestIngester(t)

	tests := []string{
		`{"kind":"health_sample","sample_type":"steps","value":10}`,
		`{"kind":"location","latitude":47.6,"longitude":-122.3}`,
		`{"kind":"screen_time","metric_type":"daily_total"}`,
		`{"kind":"clinical_event","notes":"missing timestamp"}`,
	}
	for _, line := range tests {
		_, err := in.ReadAll(context.Background(), strings.NewReader(line))
		assert.Error(t, err, line)
	}
}

func TestIngestLocationCategorizesAtIngestion(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "qolsync.db"), nil)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	home := categorize.Coordinate{Latitude: 47.6062, Longitude: -122.3321}
	require.NoError(t, st.SetHomeLocation(ctx, home))

	in, err := New(ctx, st, categorize.NopGeocoder{}, nil)
	require.NoError(t, err)

	line := `{"kind":"location","latitude":47.6062,"longitude":-122.3321,"speed":0,"visited_at":"2025-06-01T21:00:00Z"}`
	n, err := in.ReadAll(ctx, strings.NewReader(line))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	visits, err := st.LocationsSince(ctx, nil)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "home", visits[0].Category)
}

func TestIngestLocationUsesClusterHistory(t *testing.T) {
	in, st := newTestIngester(t)
	ctx := context.Background()

	// Seed a frequent night-time cluster directly, then ingest a new fix at
	// the same spot; behavioral inference should see the history.
	base := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
	for day := 0; day < 2; day++ {
		for _, offset := range []time.Duration{0, 105 * time.Minute, 210 * time.Minute} {
			require.NoError(t, st.InsertLocation(ctx, store.LocationVisit{
				Latitude: 47.6062, Longitude: -122.3321,
				VisitedAt: base.AddDate(0, 0, day*2).Add(offset),
			}))
		}
	}

	line := `{"kind":"location","latitude":47.6062,"longitude":-122.3321,"speed":0,"visited_at":"2025-06-06T23:00:00Z"}`
	n, err := in.ReadAll(ctx, strings.NewReader(line))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	since := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)
	visits, err := st.LocationsSince(ctx, &since)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "home", visits[0].Category)
}
