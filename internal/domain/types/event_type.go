package types

// TrackingEvent names the wire events pushed to observer connections.
type TrackingEvent string

func (e TrackingEvent) String() string {
	return string(e)
}

const (
	EventLocationUpdate    TrackingEvent = "LOCATION_UPDATE"
	EventStatusUpdate      TrackingEvent = "STATUS_UPDATE"
	EventETAUpdate         TrackingEvent = "ETA_UPDATE"
	EventCheckpointReached TrackingEvent = "CHECKPOINT_REACHED"
	EventIssueReported     TrackingEvent = "ISSUE_REPORTED"
	EventIssueResolved     TrackingEvent = "ISSUE_RESOLVED"
)

// NotificationKind names the outbound notification categories handed to the
// notification sink.
type NotificationKind string

const (
	NotifyDeliveryUpdate   NotificationKind = "DELIVERY_UPDATE"
	NotifyDeliveryIssue    NotificationKind = "DELIVERY_ISSUE"
	NotifyPaymentCorrected NotificationKind = "PAYMENT_CORRECTED"
)
