package dto

import (
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
	"github.com/ecodeli/delivery-tracking-system/pkg/validator"
)

// Command types accepted on the courier socket. Observer sockets accept only
// subscribe/unsubscribe.
const (
	CmdSubscribe      = "subscribe"
	CmdUnsubscribe    = "unsubscribe"
	CmdUpdatePosition = "update_position"
	CmdUpdateStatus   = "update_status"
	CmdReportIssue    = "report_issue"
	CmdResolveIssue   = "resolve_issue"
)

// BaseCommand carries the fields every inbound command has.
type BaseCommand struct {
	Type       string    `json:"type"`
	DeliveryID uuid.UUID `json:"delivery_id"`
}

type PositionCommand struct {
	BaseCommand
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Timestamp      time.Time `json:"timestamp"`
	SpeedKmh       float64   `json:"speed_kmh,omitempty"`
	HeadingDegrees float64   `json:"heading_degrees,omitempty"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
}

func (c *PositionCommand) Validate(v *validator.Validator) {
	v.Check(!c.DeliveryID.IsZero(), "delivery_id", "must be provided")
	v.Check(c.Latitude >= -90 && c.Latitude <= 90, "latitude", "must be between -90 and 90")
	v.Check(c.Longitude >= -180 && c.Longitude <= 180, "longitude", "must be between -180 and 180")
	v.Check(c.SpeedKmh >= 0, "speed_kmh", "must not be negative")
	v.Check(c.HeadingDegrees >= 0 && c.HeadingDegrees < 360, "heading_degrees", "must be in [0, 360)")
}

// ToSample converts the command to the domain sample. A missing timestamp
// means "now".
func (c *PositionCommand) ToSample() models.PositionSample {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.PositionSample{
		DeliveryID:     c.DeliveryID,
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		Timestamp:      ts,
		SpeedKmh:       c.SpeedKmh,
		HeadingDegrees: c.HeadingDegrees,
		AccuracyMeters: c.AccuracyMeters,
	}
}

type StatusCommand struct {
	BaseCommand
	Status types.DeliveryStatus `json:"status"`
	Notes  string               `json:"notes,omitempty"`
}

func (c *StatusCommand) Validate(v *validator.Validator) {
	v.Check(!c.DeliveryID.IsZero(), "delivery_id", "must be provided")
	v.Check(types.ValidDeliveryStatus(c.Status.String()), "status", "must be a valid delivery status")
}

type IssueCommand struct {
	BaseCommand
	Description string `json:"description"`
}

func (c *IssueCommand) Validate(v *validator.Validator) {
	v.Check(!c.DeliveryID.IsZero(), "delivery_id", "must be provided")
	v.Check(c.Description != "", "description", "must be provided")
	v.Check(len(c.Description) <= 1000, "description", "must not be longer than 1000 characters")
}
