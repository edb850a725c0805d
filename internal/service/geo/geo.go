package geo

import (
	"math"
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
)

const (
	earthRadiusM = 6371000.0

	// FallbackSpeedKmh is used when too few usable samples exist to derive a
	// trailing average speed.
	FallbackSpeedKmh = 30.0

	// UnknownETA is the sentinel returned when no ETA can be computed.
	UnknownETA = -1

	// Consecutive sample pairs closer than this in space or time are GPS
	// jitter, not movement, and are excluded from derived speed.
	minPairDistanceM = 5.0
	minPairElapsed   = time.Second

	// Approximation for bounding boxes: one degree of latitude spans ~111 km,
	// longitude shrinks with cos(latitude).
	metersPerDegreeLat = 111000.0
)

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Distance returns the great-circle (Haversine) distance between two points
// in meters. Symmetric in its arguments; zero for identical points.
func Distance(a, b models.Location) float64 {
	lat1Rad := degreesToRadians(a.Latitude)
	lat2Rad := degreesToRadians(b.Latitude)

	deltaLat := degreesToRadians(b.Latitude - a.Latitude)
	deltaLon := degreesToRadians(b.Longitude - a.Longitude)

	h := math.Pow(math.Sin(deltaLat/2), 2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Pow(math.Sin(deltaLon/2), 2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// ETAMinutes estimates travel time in whole minutes for the given distance
// and speed. Returns UnknownETA when the speed is not positive; never panics
// on noisy input.
func ETAMinutes(distanceMeters, speedKmh float64) int {
	if speedKmh <= 0 || distanceMeters < 0 || math.IsNaN(distanceMeters) || math.IsNaN(speedKmh) {
		return UnknownETA
	}

	speedMs := speedKmh * 1000 / 3600
	minutes := distanceMeters / speedMs / 60

	return int(math.Ceil(minutes))
}

// AverageSpeed estimates the trailing average speed in km/h from an ordered
// window of position samples.
//
// When samples carry explicit speed readings those are averaged directly,
// ignoring zero and negative entries. Otherwise the speed is derived from
// consecutive pairs, discarding jitter pairs (<= 5 m or <= 1 s apart). With
// fewer than two usable samples the fixed fallback is returned.
func AverageSpeed(samples []models.PositionSample) float64 {
	var sum float64
	var n int
	for _, s := range samples {
		if s.SpeedKmh > 0 {
			sum += s.SpeedKmh
			n++
		}
	}
	if n > 0 {
		return sum / float64(n)
	}

	if len(samples) < 2 {
		return FallbackSpeedKmh
	}

	var totalDist float64 // meters
	var totalTime float64 // seconds
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]

		dist := Distance(prev.Location(), cur.Location())
		elapsed := cur.Timestamp.Sub(prev.Timestamp)

		if dist <= minPairDistanceM || elapsed <= minPairElapsed {
			continue
		}

		totalDist += dist
		totalTime += elapsed.Seconds()
	}

	if totalTime <= 0 {
		return FallbackSpeedKmh
	}

	return totalDist / totalTime * 3.6
}

// BoundingBox returns an approximate square box of the given radius around
// the center. Good enough for nearby queries; not antimeridian-safe.
func BoundingBox(center models.Location, radiusMeters float64) models.BoundingBox {
	latDelta := radiusMeters / metersPerDegreeLat

	lonScale := math.Cos(degreesToRadians(center.Latitude))
	if lonScale < 1e-9 {
		lonScale = 1e-9 // poles: avoid dividing by zero
	}
	lonDelta := radiusMeters / (metersPerDegreeLat * lonScale)

	return models.BoundingBox{
		SouthWest: models.Location{
			Latitude:  center.Latitude - latDelta,
			Longitude: center.Longitude - lonDelta,
		},
		NorthEast: models.Location{
			Latitude:  center.Latitude + latDelta,
			Longitude: center.Longitude + lonDelta,
		},
	}
}

// ClassifyTraffic buckets an average speed into a coarse traffic condition.
func ClassifyTraffic(speedKmh float64) types.TrafficCondition {
	switch {
	case speedKmh > 40:
		return types.TrafficLight
	case speedKmh < 20:
		return types.TrafficHeavy
	default:
		return types.TrafficModerate
	}
}

// WithinRadius reports whether point lies within radiusMeters of center.
func WithinRadius(center, point models.Location, radiusMeters float64) bool {
	return Distance(center, point) <= radiusMeters
}
