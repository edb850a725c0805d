package dto

import (
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
)

type LocationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

type DeliveryResponse struct {
	ID           string           `json:"id"`
	TrackingCode string           `json:"tracking_code"`
	Status       string           `json:"status"`
	ClientID     string           `json:"client_id"`
	CourierID    *string          `json:"courier_id,omitempty"`
	Pickup       LocationResponse `json:"pickup"`
	Dropoff      LocationResponse `json:"dropoff"`

	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	InTransitAt *time.Time `json:"in_transit_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func ToDeliveryResponse(d *models.Delivery) DeliveryResponse {
	resp := DeliveryResponse{
		ID:           d.ID.String(),
		TrackingCode: d.TrackingCode,
		Status:       d.Status.String(),
		ClientID:     d.ClientID.String(),
		Pickup:       toLocation(d.Pickup),
		Dropoff:      toLocation(d.Dropoff),
		CreatedAt:    d.CreatedAt,
		AcceptedAt:   d.AcceptedAt,
		PickedUpAt:   d.PickedUpAt,
		InTransitAt:  d.InTransitAt,
		DeliveredAt:  d.DeliveredAt,
		CancelledAt:  d.CancelledAt,
	}

	if d.CourierID != nil {
		id := d.CourierID.String()
		resp.CourierID = &id
	}

	return resp
}

// TrackingResponse is the public view behind a tracking code. It omits actor
// identifiers: whoever holds the code sees progress, not people.
type TrackingResponse struct {
	TrackingCode string           `json:"tracking_code"`
	Status       string           `json:"status"`
	Dropoff      LocationResponse `json:"dropoff"`
	CreatedAt    time.Time        `json:"created_at"`
	DeliveredAt  *time.Time       `json:"delivered_at,omitempty"`
}

func ToTrackingResponse(d *models.Delivery) TrackingResponse {
	return TrackingResponse{
		TrackingCode: d.TrackingCode,
		Status:       d.Status.String(),
		Dropoff:      toLocation(d.Dropoff),
		CreatedAt:    d.CreatedAt,
		DeliveredAt:  d.DeliveredAt,
	}
}

func toLocation(l models.Location) LocationResponse {
	return LocationResponse{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Address:   l.Address,
	}
}
