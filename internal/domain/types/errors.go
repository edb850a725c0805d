package types

import "errors"

var (
	ErrDeliveryNotFound     = errors.New("delivery not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNotFound             = errors.New("requested item not found")

	ErrNotAuthorized      = errors.New("actor is not authorized for this action")
	ErrPublisherConflict  = errors.New("delivery already has an active courier publisher")
	ErrNotPublisher       = errors.New("connection is not the delivery's registered publisher")
	ErrDeliveryImmutable  = errors.New("delivery reached a terminal status and is read-only")
	ErrInvalidCoordinates = errors.New("latitude must be in [-90, 90], longitude in [-180, 180]")

	// ErrUpstreamFailure marks a failed side effect (payment release,
	// notification) that must not fail the state change it accompanied.
	ErrUpstreamFailure = errors.New("upstream call failed")

	ErrDatabaseFailed = errors.New("database operation failed")
)

// InvalidTransitionError is returned when the requested destination status is
// not reachable from the delivery's current status.
type InvalidTransitionError struct {
	From DeliveryStatus
	To   DeliveryStatus
}

func (e *InvalidTransitionError) Error() string {
	return "cannot move from " + string(e.From) + " to " + string(e.To)
}

// ErrInvalidTransition lets callers match any InvalidTransitionError with
// errors.Is, regardless of the concrete status pair.
var ErrInvalidTransition = errors.New("invalid status transition")

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
