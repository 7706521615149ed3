// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package categorize infers semantic place categories for raw location
// fixes. Classification is a pure function over the fix itself plus the
// timestamps of prior fixes recorded within the cluster radius; reverse
// geocoding is an optional external collaborator and its failure degrades
// gracefully to behavioral-only inference.
package categorize

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"
)

// Category is the semantic place category attached to a location record.
// Presentation metadata (icons, colors) is owned by UI layers, not here.
type Category string

const (
	CategoryHome       Category = "home"
	CategoryWork       Category = "work"
	CategoryHealthcare Category = "healthcare"
	CategoryShopping   Category = "shopping"
	CategoryDining     Category = "dining"
	CategoryFitness    Category = "fitness"
	CategoryLeisure    Category = "leisure"
	CategoryTransit    Category = "transit"
	CategoryOutdoors   Category = "outdoors"
	CategoryOther      Category = "other"
)

// Thresholds for classification. Distances in meters, speeds in m/s.
const (
	LocationMatchThresholdMeters = 150.0
	ClusterRadiusMeters          = 100.0
	StationarySpeedThreshold     = 0.5
	TransitSpeedThreshold        = 2.0
	FrequentVisitThreshold       = 3

	// Consecutive fixes closer together than this belong to one visit when
	// deriving dwell time.
	visitGapLimit = 2 * time.Hour
)

// Fix is a single raw location reading.
type Fix struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Speed     float64 // m/s; negative means unknown
	Timestamp time.Time
}

// Coordinate is a user-defined reference point (home or work).
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is a reverse-geocoding result.
type Place struct {
	Name    string
	Address string
}

// Geocoder resolves a coordinate to a human-readable place. Implementations
// live outside this package; ReverseGeocode may return (nil, nil) when the
// backend has no result for the coordinate.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*Place, error)
}

// NopGeocoder is a Geocoder for deployments without a geocoding backend.
// Every lookup misses, so classification is behavioral-only.
type NopGeocoder struct{}

func (NopGeocoder) ReverseGeocode(context.Context, float64, float64) (*Place, error) {
	return nil, nil
}

// CategorizedLocation is the derived, non-authoritative annotation attached
// to a location record at ingestion time.
type CategorizedLocation struct {
	Category  Category
	PlaceName string
	Address   string
}

// VisitContext summarizes historical visit behavior at a cluster.
type VisitContext struct {
	Speed            float64
	Timestamp        time.Time
	VisitCount       int
	TotalDwell       time.Duration
	AverageDwell     time.Duration
	HourPattern      [24]int // visits per hour of day
	WeekdayPattern   [7]int  // visits per weekday (time.Weekday indexing)
	FrequentLocation bool
	Stationary       bool
}

// Categorizer classifies location fixes. Home and work coordinates are
// optional; when unset the user-defined-location check is skipped.
type Categorizer struct {
	geocoder Geocoder
	home     *Coordinate
	work     *Coordinate
	logger   *slog.Logger
}

// New creates a Categorizer. A nil geocoder behaves like NopGeocoder and a
// nil logger falls back to slog.Default().
func New(geocoder Geocoder, logger *slog.Logger) *Categorizer {
	if geocoder == nil {
		geocoder = NopGeocoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{geocoder: geocoder, logger: logger}
}

// SetHomeLocation sets the user-defined home coordinate.
func (c *Categorizer) SetHomeLocation(coord Coordinate) { c.home = &coord }

// SetWorkLocation sets the user-defined work coordinate.
func (c *Categorizer) SetWorkLocation(coord Coordinate) { c.work = &coord }

// Categorize classifies a fix. history holds timestamps of prior fixes
// recorded within ClusterRadiusMeters of the fix, in any order.
//
// Priority: transit speed check, user-defined home/work match, keyword match
// over geocoded text, behavioral inference. The first match wins.
func (c *Categorizer) Categorize(ctx context.Context, fix Fix, history []time.Time) CategorizedLocation {
	vctx := BuildVisitContext(fix, history)

	// Moving faster than walking pace means the fix is a point on a route,
	// not a place. This check precedes everything else, including a
	// user-defined home match (driving past home is still transit).
	if vctx.Speed > TransitSpeedThreshold && !vctx.Stationary {
		place := c.reverseGeocode(ctx, fix)
		return CategorizedLocation{Category: CategoryTransit, PlaceName: place.Name, Address: place.Address}
	}

	if cat, ok := c.matchUserDefined(fix); ok {
		place := c.reverseGeocode(ctx, fix)
		return CategorizedLocation{Category: cat, PlaceName: place.Name, Address: place.Address}
	}

	place, geocoded := c.tryReverseGeocode(ctx, fix)
	if geocoded {
		if cat, ok := MatchKeywords(place.Name + " " + place.Address); ok {
			return CategorizedLocation{Category: cat, PlaceName: place.Name, Address: place.Address}
		}
		return CategorizedLocation{
			Category:  InferFromContext(vctx),
			PlaceName: place.Name,
			Address:   place.Address,
		}
	}

	// No geocoding result: behavioral-only, no place name or address.
	return CategorizedLocation{Category: InferFromContext(vctx)}
}

func (c *Categorizer) matchUserDefined(fix Fix) (Category, bool) {
	if c.home != nil && DistanceMeters(fix.Latitude, fix.Longitude, c.home.Latitude, c.home.Longitude) < LocationMatchThresholdMeters {
		return CategoryHome, true
	}
	if c.work != nil && DistanceMeters(fix.Latitude, fix.Longitude, c.work.Latitude, c.work.Longitude) < LocationMatchThresholdMeters {
		return CategoryWork, true
	}
	return "", false
}

func (c *Categorizer) reverseGeocode(ctx context.Context, fix Fix) Place {
	place, _ := c.tryReverseGeocode(ctx, fix)
	return place
}

func (c *Categorizer) tryReverseGeocode(ctx context.Context, fix Fix) (Place, bool) {
	place, err := c.geocoder.ReverseGeocode(ctx, fix.Latitude, fix.Longitude)
	if err != nil {
		c.logger.Warn("reverse geocoding failed", "lat", fix.Latitude, "lng", fix.Longitude, "error", err)
		return Place{}, false
	}
	if place == nil {
		return Place{}, false
	}
	return *place, true
}

// BuildVisitContext derives visit statistics from the fix and the cluster's
// historical timestamps. Consecutive timestamps less than visitGapLimit
// apart are treated as one continuous visit when accumulating dwell time.
func BuildVisitContext(fix Fix, history []time.Time) VisitContext {
	sorted := make([]time.Time, len(history))
	copy(sorted, history)
	sortTimes(sorted)

	vctx := VisitContext{
		Timestamp: fix.Timestamp,
	}
	if fix.Speed >= 0 {
		vctx.Speed = fix.Speed
		vctx.Stationary = fix.Speed < StationarySpeedThreshold
	}

	var lastSeen time.Time
	var currentDwell time.Duration
	for _, ts := range sorted {
		vctx.VisitCount++
		vctx.HourPattern[ts.Hour()]++
		vctx.WeekdayPattern[int(ts.Weekday())]++

		if !lastSeen.IsZero() {
			gap := ts.Sub(lastSeen)
			if gap < visitGapLimit {
				currentDwell += gap
			} else {
				vctx.TotalDwell += currentDwell
				currentDwell = 0
			}
		}
		lastSeen = ts
	}
	vctx.TotalDwell += currentDwell

	if vctx.VisitCount > 0 {
		vctx.AverageDwell = vctx.TotalDwell / time.Duration(vctx.VisitCount)
	}
	vctx.FrequentLocation = vctx.VisitCount >= FrequentVisitThreshold
	return vctx
}

// InferFromContext is the behavioral fallback used when no keyword matches.
func InferFromContext(vctx VisitContext) Category {
	hour := vctx.Timestamp.Hour()
	weekday := vctx.Timestamp.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday

	// Frequent location, long dwell, night-dominant pattern: home.
	if vctx.FrequentLocation && vctx.AverageDwell > time.Hour && nightDominant(vctx.HourPattern) {
		return CategoryHome
	}

	// Frequent location, >30 min dwell, weekday work-hours pattern: work.
	if vctx.FrequentLocation && vctx.AverageDwell > 30*time.Minute &&
		workPattern(vctx.HourPattern, vctx.WeekdayPattern) {
		return CategoryWork
	}

	// Infrequent or new locations fall back to time-of-day heuristics.
	if !vctx.FrequentLocation {
		if (hour >= 22 || hour <= 6) && vctx.Stationary {
			return CategoryHome
		}
		if !isWeekend && hour >= 9 && hour <= 17 && vctx.Stationary && vctx.TotalDwell > 30*time.Minute {
			return CategoryWork
		}
		if isWeekend && hour >= 10 && hour <= 20 {
			return CategoryLeisure
		}
	}

	return CategoryOther
}

// nightDominant reports whether more than half of the visits fall in the
// night window (22:00 through 07:59).
func nightDominant(hours [24]int) bool {
	night := 0
	total := 0
	for h, n := range hours {
		total += n
		if h >= 22 || h <= 7 {
			night += n
		}
	}
	if total == 0 {
		return false
	}
	return float64(night)/float64(total) > 0.5
}

// workPattern reports whether more than 60% of visits fall in hours 8-18
// and more than 60% fall on weekdays.
func workPattern(hours [24]int, weekdays [7]int) bool {
	workHours := 0
	totalHours := 0
	for h, n := range hours {
		totalHours += n
		if h >= 8 && h <= 18 {
			workHours += n
		}
	}

	weekdayVisits := 0
	totalDays := 0
	for d, n := range weekdays {
		totalDays += n
		if time.Weekday(d) != time.Saturday && time.Weekday(d) != time.Sunday {
			weekdayVisits += n
		}
	}

	if totalHours == 0 || totalDays == 0 {
		return false
	}
	return float64(workHours)/float64(totalHours) > 0.6 &&
		float64(weekdayVisits)/float64(totalDays) > 0.6
}

// DistanceMeters returns the haversine great-circle distance between two
// WGS84 coordinates.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadius = 6371000.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
