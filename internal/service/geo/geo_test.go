package geo

import (
	"math"
	"testing"
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
)

var (
	paris  = models.Location{Latitude: 48.8566, Longitude: 2.3522}
	lyon   = models.Location{Latitude: 45.7640, Longitude: 4.8357}
	origin = models.Location{}
)

func TestDistance_ZeroForSamePoint(t *testing.T) {
	for _, p := range []models.Location{paris, lyon, origin} {
		if d := Distance(p, p); d != 0 {
			t.Fatalf("Distance(p, p) = %f, want 0", d)
		}
	}
}

func TestDistance_Symmetric(t *testing.T) {
	ab := Distance(paris, lyon)
	ba := Distance(lyon, paris)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestDistance_KnownValue(t *testing.T) {
	// Paris-Lyon great-circle distance is roughly 391-392 km.
	d := Distance(paris, lyon)
	if d < 385_000 || d > 400_000 {
		t.Fatalf("Paris-Lyon distance = %f m, want ~391 km", d)
	}
}

func TestETAMinutes(t *testing.T) {
	tests := []struct {
		name     string
		distM    float64
		speedKmh float64
		want     int
	}{
		{"one hour at 60 km/h", 60_000, 60, 60},
		{"half hour at 30 km/h", 15_000, 30, 30},
		{"rounds up", 100, 60, 1},
		{"zero distance", 0, 40, 0},
		{"zero speed", 1000, 0, UnknownETA},
		{"negative speed", 1000, -5, UnknownETA},
	}

	for _, tt := range tests {
		if got := ETAMinutes(tt.distM, tt.speedKmh); got != tt.want {
			t.Errorf("%s: ETAMinutes(%f, %f) = %d, want %d", tt.name, tt.distM, tt.speedKmh, got, tt.want)
		}
	}
}

func TestAverageSpeed_ExplicitSpeeds(t *testing.T) {
	now := time.Now()
	samples := []models.PositionSample{
		{Latitude: 0, Longitude: 0, Timestamp: now, SpeedKmh: 10},
		{Latitude: 0, Longitude: 0, Timestamp: now.Add(time.Minute), SpeedKmh: 20},
	}

	if got := AverageSpeed(samples); got != 15 {
		t.Fatalf("AverageSpeed = %f, want arithmetic mean 15", got)
	}
}

func TestAverageSpeed_IgnoresNonPositiveExplicitSpeeds(t *testing.T) {
	now := time.Now()
	samples := []models.PositionSample{
		{Timestamp: now, SpeedKmh: 0},
		{Timestamp: now.Add(time.Minute), SpeedKmh: -3},
		{Timestamp: now.Add(2 * time.Minute), SpeedKmh: 24},
	}

	if got := AverageSpeed(samples); got != 24 {
		t.Fatalf("AverageSpeed = %f, want 24 (zero/negative ignored)", got)
	}
}

func TestAverageSpeed_JitterPairFallsBack(t *testing.T) {
	// Two samples less than 5 m apart: the pair is discarded and with no
	// usable pair left we get the fixed fallback.
	now := time.Now()
	samples := []models.PositionSample{
		{Latitude: 48.8566, Longitude: 2.3522, Timestamp: now},
		{Latitude: 48.85661, Longitude: 2.35221, Timestamp: now.Add(10 * time.Second)},
	}

	if got := AverageSpeed(samples); got != FallbackSpeedKmh {
		t.Fatalf("AverageSpeed = %f, want fallback %f", got, FallbackSpeedKmh)
	}
}

func TestAverageSpeed_DerivedFromMovement(t *testing.T) {
	// ~100 m apart, 10 seconds: 10 m/s = 36 km/h.
	now := time.Now()
	samples := []models.PositionSample{
		{Latitude: 48.8566, Longitude: 2.3522, Timestamp: now},
		{Latitude: 48.8575, Longitude: 2.3522, Timestamp: now.Add(10 * time.Second)},
	}

	got := AverageSpeed(samples)
	if got <= 0 || math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("AverageSpeed = %f, want finite positive value", got)
	}
	if got < 30 || got > 42 {
		t.Fatalf("AverageSpeed = %f, want ~36 km/h", got)
	}
}

func TestAverageSpeed_FewerThanTwoSamples(t *testing.T) {
	if got := AverageSpeed(nil); got != FallbackSpeedKmh {
		t.Fatalf("AverageSpeed(nil) = %f, want fallback", got)
	}
	one := []models.PositionSample{{Latitude: 1, Longitude: 1, Timestamp: time.Now()}}
	if got := AverageSpeed(one); got != FallbackSpeedKmh {
		t.Fatalf("AverageSpeed(single) = %f, want fallback", got)
	}
}

func TestBoundingBox(t *testing.T) {
	box := BoundingBox(paris, 1000)

	if box.SouthWest.Latitude >= paris.Latitude || box.NorthEast.Latitude <= paris.Latitude {
		t.Fatalf("box does not straddle center latitude: %+v", box)
	}
	if box.SouthWest.Longitude >= paris.Longitude || box.NorthEast.Longitude <= paris.Longitude {
		t.Fatalf("box does not straddle center longitude: %+v", box)
	}

	// 1 km at ~49°N: latitude delta ~0.009°, longitude delta larger.
	latDelta := box.NorthEast.Latitude - paris.Latitude
	lonDelta := box.NorthEast.Longitude - paris.Longitude
	if latDelta < 0.008 || latDelta > 0.010 {
		t.Fatalf("latitude delta = %f, want ~0.009", latDelta)
	}
	if lonDelta <= latDelta {
		t.Fatalf("longitude delta %f should exceed latitude delta %f at this latitude", lonDelta, latDelta)
	}
}

func TestClassifyTraffic(t *testing.T) {
	tests := []struct {
		speed float64
		want  types.TrafficCondition
	}{
		{50, types.TrafficLight},
		{40.1, types.TrafficLight},
		{40, types.TrafficModerate},
		{25, types.TrafficModerate},
		{20, types.TrafficModerate},
		{19.9, types.TrafficHeavy},
		{5, types.TrafficHeavy},
	}

	for _, tt := range tests {
		if got := ClassifyTraffic(tt.speed); got != tt.want {
			t.Errorf("ClassifyTraffic(%f) = %s, want %s", tt.speed, got, tt.want)
		}
	}
}

func TestWithinRadius(t *testing.T) {
	near := models.Location{Latitude: 48.8567, Longitude: 2.3522} // ~11 m away
	if !WithinRadius(paris, near, 50) {
		t.Fatalf("expected point within 50 m radius")
	}
	if WithinRadius(paris, lyon, 100_000) {
		t.Fatalf("Lyon should not be within 100 km of Paris")
	}
}
