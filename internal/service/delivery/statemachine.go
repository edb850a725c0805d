package delivery

import (
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
)

// allowedTransitions is the full lifecycle table. Anything absent here is an
// invalid transition, rejected hard rather than clamped.
//
// PENDING has its own withdrawal path outside this core, so CANCELLED is not
// reachable from it here.
var allowedTransitions = map[types.DeliveryStatus][]types.DeliveryStatus{
	types.StatusPending:   {types.StatusAccepted},
	types.StatusAccepted:  {types.StatusPickedUp, types.StatusCancelled},
	types.StatusPickedUp:  {types.StatusInTransit, types.StatusCancelled},
	types.StatusInTransit: {types.StatusDelivered, types.StatusCancelled},
	types.StatusDelivered: {},
	types.StatusCancelled: {},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another.
func CanTransition(from, to types.DeliveryStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
