package models

import (
	"time"

	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

// PositionSample is one GPS fix published by the courier device. Samples are
// append-only and retained as a bounded recent window per delivery, long
// enough to compute a trailing average speed.
type PositionSample struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`

	// Optional sensor fields. Zero means "not reported".
	SpeedKmh       float64 `json:"speed_kmh,omitempty"`
	HeadingDegrees float64 `json:"heading_degrees,omitempty"`
	AccuracyMeters float64 `json:"accuracy_meters,omitempty"`
}

func (s PositionSample) Location() Location {
	return Location{Latitude: s.Latitude, Longitude: s.Longitude}
}
