package delivery

import (
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
)

// statusNotification returns the client-facing title and message for a status
// change. Notes override the canned message where it makes sense.
func statusNotification(status types.DeliveryStatus, notes string) (title, message string) {
	switch status {
	case types.StatusAccepted:
		return "Courier assigned", "A courier has been assigned to your delivery"
	case types.StatusPickedUp:
		return "Package picked up", "Your package has been picked up and is being prepared for delivery"
	case types.StatusInTransit:
		return "Delivery in progress", "Your package is on its way to your address"
	case types.StatusDelivered:
		return "Delivery completed", "Your package has been delivered successfully"
	case types.StatusCancelled:
		if notes != "" {
			return "Delivery cancelled", notes
		}
		return "Delivery cancelled", "The delivery has been cancelled"
	default:
		if notes != "" {
			return "Delivery update", notes
		}
		return "Delivery update", "Your delivery has been updated"
	}
}
