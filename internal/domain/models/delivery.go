package models

import (
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// BoundingBox is an approximate rectangle around a center point, used for
// nearby-courier queries and map viewport hints.
type BoundingBox struct {
	SouthWest Location `json:"south_west"`
	NorthEast Location `json:"north_east"`
}

// Delivery is the authoritative ledger record of one shipment. It is mutated
// only through the state machine's transition path; once the status is
// terminal the row is read-only except for the audit trail.
type Delivery struct {
	ID           uuid.UUID
	TrackingCode string
	Status       types.DeliveryStatus
	ClientID     uuid.UUID
	CourierID    *uuid.UUID
	PaymentID    uuid.UUID

	Pickup  Location
	Dropoff Location

	// Each timestamp is set exactly once, by the transition reaching that
	// state. DeliveredAt and CancelledAt are mutually exclusive.
	CreatedAt   time.Time
	AcceptedAt  *time.Time
	PickedUpAt  *time.Time
	InTransitAt *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// StatusEvent is one row of the append-only audit trail. Events are never
// mutated after insert; late dispute annotations arrive as new rows.
type StatusEvent struct {
	ID         uuid.UUID            `json:"id"`
	DeliveryID uuid.UUID            `json:"delivery_id"`
	FromStatus types.DeliveryStatus `json:"from_status"`
	ToStatus   types.DeliveryStatus `json:"to_status"`
	ActorID    uuid.UUID            `json:"actor_id"`
	Notes      string               `json:"notes,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Payment is the external payment record as seen by the tracking core. The
// core reads the status and may request a release or a review flag; amounts
// stay entirely on the provider side.
type Payment struct {
	ID         uuid.UUID
	DeliveryID uuid.UUID
	Status     types.PaymentStatus
	UpdatedAt  time.Time
}
