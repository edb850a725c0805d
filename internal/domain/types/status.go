package types

// DeliveryStatus is the canonical lifecycle status of a delivery.
// The socket layer and the payment provider speak their own vocabularies;
// both are mapped onto this enum at the boundary.
type DeliveryStatus string

func (s DeliveryStatus) String() string {
	return string(s)
}

const (
	StatusPending   DeliveryStatus = "PENDING"
	StatusAccepted  DeliveryStatus = "ACCEPTED"
	StatusPickedUp  DeliveryStatus = "PICKED_UP"
	StatusInTransit DeliveryStatus = "IN_TRANSIT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusCancelled DeliveryStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsCheckpoint reports whether reaching s is announced to observers as a
// checkpoint milestone on top of the plain status update.
func (s DeliveryStatus) IsCheckpoint() bool {
	switch s {
	case StatusPickedUp, StatusInTransit, StatusDelivered:
		return true
	default:
		return false
	}
}

// ValidDeliveryStatus reports whether the given string is a known status.
func ValidDeliveryStatus(s string) bool {
	switch DeliveryStatus(s) {
	case StatusPending, StatusAccepted, StatusPickedUp, StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentStatus mirrors the payment provider's status enum. The tracking core
// only ever reads it; writes happen on the provider side.
type PaymentStatus string

func (s PaymentStatus) String() string {
	return string(s)
}

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

// TrafficCondition classifies the courier's trailing average speed.
type TrafficCondition string

const (
	TrafficLight    TrafficCondition = "LIGHT"
	TrafficModerate TrafficCondition = "MODERATE"
	TrafficHeavy    TrafficCondition = "HEAVY"
)

// SubscriptionRole distinguishes the single courier publisher of a delivery
// from its observers (client, admin).
type SubscriptionRole string

const (
	RoleCourierPublisher SubscriptionRole = "courier"
	RoleObserver         SubscriptionRole = "observer"
)

// UserRole is the authenticated actor's role.
type UserRole string

func (r UserRole) String() string {
	return string(r)
}

const (
	RoleClient  UserRole = "CLIENT"
	RoleCourier UserRole = "COURIER"
	RoleAdmin   UserRole = "ADMIN"
)
