package models

import (
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

/* ======================= Websocket, observer-bound ======================= */

// TrackingMessage is the envelope every observer-bound event is wrapped in.
// Data holds one of the payload structs below depending on EventType.
type TrackingMessage struct {
	EventType  types.TrackingEvent `json:"event_type"`
	DeliveryID uuid.UUID           `json:"delivery_id"`
	Data       any                 `json:"data"`
}

type LocationUpdate struct {
	Coordinates    Location  `json:"coordinates"`
	SpeedKmh       float64   `json:"speed_kmh,omitempty"`
	HeadingDegrees float64   `json:"heading_degrees,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type StatusUpdate struct {
	FromStatus types.DeliveryStatus `json:"from_status"`
	ToStatus   types.DeliveryStatus `json:"to_status"`
	Notes      string               `json:"notes,omitempty"`
}

type ETAUpdate struct {
	EstimatedMinutes        int                    `json:"estimated_minutes"`
	DistanceRemainingMeters float64                `json:"distance_remaining_meters"`
	Traffic                 types.TrafficCondition `json:"traffic"`
}

type CheckpointReached struct {
	CheckpointName string `json:"checkpoint_name"`
}

type IssueReported struct {
	Description string `json:"description"`
}

type IssueResolved struct{}

/* ======================= rabbitmq ======================= */

// Notification is the fire-and-forget message handed to the notification
// sink. Delivery of the notification itself is somebody else's problem.
type Notification struct {
	UserID  uuid.UUID              `json:"user_id"`
	Kind    types.NotificationKind `json:"kind"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Payload map[string]any         `json:"payload,omitempty"`
}

// PaymentCommand asks the payment provider to act on held funds.
type PaymentCommand struct {
	DeliveryID    uuid.UUID `json:"delivery_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	Action        string    `json:"action"` // "release" | "flag_review"
	Reason        string    `json:"reason,omitempty"`
	CorrelationID string    `json:"correlation_id"`
}

// PaymentStatusMessage is the provider callback consumed from the payment
// exchange; it triggers a reconciliation check for the delivery.
type PaymentStatusMessage struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	DeliveryID    uuid.UUID           `json:"delivery_id"`
	Status        types.PaymentStatus `json:"status"`
	Timestamp     time.Time           `json:"timestamp"`
	CorrelationID string              `json:"correlation_id"`
}
