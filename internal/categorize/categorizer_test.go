// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package categorize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct {
	place *Place
	err   error
}

func (s stubGeocoder) ReverseGeocode(context.Context, float64, float64) (*Place, error) {
	return s.place, s.err
}

// nightHistory builds two visit chains spanning late-evening hours so that
// the cluster is frequent, night-dominant, and has average dwell over an hour.
func nightHistory(t *testing.T) []time.Time {
	t.Helper()
	base := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
	var ts []time.Time
	for day := 0; day < 2; day++ {
		start := base.AddDate(0, 0, day*2)
		ts = append(ts,
			start,
			start.Add(105*time.Minute),
			start.Add(210*time.Minute),
		)
	}
	return ts
}

// workdayHistory builds weekday mid-morning visit chains matching the
// workplace pattern.
func workdayHistory(t *testing.T) []time.Time {
	t.Helper()
	// 2025-06-02 is a Monday.
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	var ts []time.Time
	for day := 0; day < 2; day++ {
		start := base.AddDate(0, 0, day)
		ts = append(ts,
			start,
			start.Add(1*time.Hour),
			start.Add(2*time.Hour),
		)
	}
	return ts
}

func TestCategorize_TransitBeatsUserDefinedHome(t *testing.T) {
	c := New(NopGeocoder{}, nil)
	c.SetHomeLocation(Coordinate{Latitude: 47.6062, Longitude: -122.3321})

	fix := Fix{
		Latitude:  47.6062,
		Longitude: -122.3321,
		Speed:     5.0, // driving past home
		Timestamp: time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC),
	}
	got := c.Categorize(context.Background(), fix, nil)
	assert.Equal(t, CategoryTransit, got.Category)
}

func TestCategorize_UserDefinedHomeWithinThreshold(t *testing.T) {
	c := New(NopGeocoder{}, nil)
	c.SetHomeLocation(Coordinate{Latitude: 47.6062, Longitude: -122.3321})

	// About 100 m north of the configured home, stationary.
	fix := Fix{
		Latitude:  47.6071,
		Longitude: -122.3321,
		Speed:     0,
		Timestamp: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
	got := c.Categorize(context.Background(), fix, nil)
	assert.Equal(t, CategoryHome, got.Category)
}

func TestCategorize_UserDefinedWorkBeyondThresholdFallsThrough(t *testing.T) {
	c := New(NopGeocoder{}, nil)
	c.SetWorkLocation(Coordinate{Latitude: 47.6062, Longitude: -122.3321})

	// Roughly 500 m away: outside the 150 m match threshold.
	fix := Fix{
		Latitude:  47.6107,
		Longitude: -122.3321,
		Speed:     0,
		Timestamp: time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC), // Wednesday noon
	}
	got := c.Categorize(context.Background(), fix, nil)
	assert.NotEqual(t, CategoryWork, got.Category)
}

func TestCategorize_KeywordMatchFromGeocodedPlace(t *testing.T) {
	c := New(stubGeocoder{place: &Place{Name: "Swedish Medical Center", Address: "747 Broadway, Seattle"}}, nil)

	fix := Fix{Latitude: 47.608, Longitude: -122.321, Speed: 0, Timestamp: time.Now()}
	got := c.Categorize(context.Background(), fix, nil)
	assert.Equal(t, CategoryHealthcare, got.Category)
	assert.Equal(t, "Swedish Medical Center", got.PlaceName)
	assert.Equal(t, "747 Broadway, Seattle", got.Address)
}

func TestCategorize_GeocodingFailureDegradesToBehavioral(t *testing.T) {
	c := New(stubGeocoder{err: errors.New("geocoder unavailable")}, nil)

	fix := Fix{
		Latitude:  47.60,
		Longitude: -122.33,
		Speed:     0,
		Timestamp: time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC),
	}
	got := c.Categorize(context.Background(), fix, nightHistory(t))
	assert.Equal(t, CategoryHome, got.Category)
	assert.Empty(t, got.PlaceName)
	assert.Empty(t, got.Address)
}

func TestInferFromContext_NightDominantFrequentClusterIsHome(t *testing.T) {
	fix := Fix{Speed: 0, Timestamp: time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)}
	vctx := BuildVisitContext(fix, nightHistory(t))

	require.True(t, vctx.FrequentLocation)
	require.Greater(t, vctx.AverageDwell, time.Hour)
	assert.Equal(t, CategoryHome, InferFromContext(vctx))
}

func TestInferFromContext_WeekdayWorkHoursClusterIsWork(t *testing.T) {
	fix := Fix{Speed: 0, Timestamp: time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)}
	vctx := BuildVisitContext(fix, workdayHistory(t))

	require.True(t, vctx.FrequentLocation)
	require.Greater(t, vctx.AverageDwell, 30*time.Minute)
	assert.Equal(t, CategoryWork, InferFromContext(vctx))
}

func TestInferFromContext_InfrequentTimeOfDayHeuristics(t *testing.T) {
	tests := []struct {
		name string
		fix  Fix
		want Category
	}{
		{
			name: "late night stationary",
			fix:  Fix{Speed: 0, Timestamp: time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)},
			want: CategoryHome,
		},
		{
			name: "weekend afternoon",
			fix:  Fix{Speed: 0, Timestamp: time.Date(2025, 6, 7, 14, 0, 0, 0, time.UTC)}, // Saturday
			want: CategoryLeisure,
		},
		{
			name: "weekday noon no dwell",
			fix:  Fix{Speed: 0, Timestamp: time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)},
			want: CategoryOther,
		},
		{
			name: "late night but walking",
			fix:  Fix{Speed: 1.2, Timestamp: time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)},
			want: CategoryOther,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vctx := BuildVisitContext(tt.fix, nil)
			assert.Equal(t, tt.want, InferFromContext(vctx))
		})
	}
}

func TestBuildVisitContext_DwellSplitsAtVisitGap(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	history := []time.Time{
		base,
		base.Add(30 * time.Minute),
		base.Add(1 * time.Hour),
		// Next day: new visit, the 23h gap must not count as dwell.
		base.AddDate(0, 0, 1),
		base.AddDate(0, 0, 1).Add(45 * time.Minute),
	}
	vctx := BuildVisitContext(Fix{Speed: 0, Timestamp: base}, history)

	assert.Equal(t, 5, vctx.VisitCount)
	assert.Equal(t, time.Hour+45*time.Minute, vctx.TotalDwell)
	assert.Equal(t, (time.Hour+45*time.Minute)/5, vctx.AverageDwell)
	assert.True(t, vctx.FrequentLocation)
}

func TestBuildVisitContext_UnsortedHistory(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	history := []time.Time{
		base.Add(1 * time.Hour),
		base,
		base.Add(30 * time.Minute),
	}
	vctx := BuildVisitContext(Fix{Speed: 0, Timestamp: base}, history)
	assert.Equal(t, time.Hour, vctx.TotalDwell)
}

func TestBuildVisitContext_NegativeSpeedIsUnknown(t *testing.T) {
	vctx := BuildVisitContext(Fix{Speed: -1, Timestamp: time.Now()}, nil)
	assert.Zero(t, vctx.Speed)
	assert.False(t, vctx.Stationary)
}

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		text string
		want Category
		ok   bool
	}{
		{"Harborview Medical Center", CategoryHealthcare, true},
		{"LA Fitness Downtown", CategoryFitness, true},
		{"Pike Place Market", CategoryShopping, true},
		{"Storyville Coffee", CategoryDining, true},
		{"SIFF Cinema Egyptian", CategoryLeisure, true},
		{"King Street Station", CategoryTransit, true},
		{"Discovery Park Loop Trail", CategoryOutdoors, true},
		{"", "", false},
		{"Unremarkable Office Building", "", false},
	}
	for _, tt := range tests {
		got, ok := MatchKeywords(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestMatchKeywords_HealthcareTakesPriority(t *testing.T) {
	// "health" and "fitness" both appear; healthcare is checked first.
	got, ok := MatchKeywords("Health & Fitness Club")
	require.True(t, ok)
	assert.Equal(t, CategoryHealthcare, got)
}

func TestDistanceMeters(t *testing.T) {
	// Seattle to Portland, roughly 233 km.
	d := DistanceMeters(47.6062, -122.3321, 45.5152, -122.6784)
	assert.InDelta(t, 233000, d, 3000)

	assert.Zero(t, DistanceMeters(47.6062, -122.3321, 47.6062, -122.3321))
}
