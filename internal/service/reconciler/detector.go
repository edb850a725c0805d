package reconciler

import (
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
)

// verdict is the detector's decision for one (delivery, payment) pair.
type verdict int

const (
	// verdictConsistent: the pair is an expected combination, nothing to do.
	verdictConsistent verdict = iota
	// verdictRetryRelease: the delivery settled but the funds did not; retry
	// the release.
	verdictRetryRelease
	// verdictFlagReview: money moved (or failed) in a way no automatic action
	// can safely undo; escalate to a human.
	verdictFlagReview
	// verdictUnknown: a combination the table does not cover. Logged, never
	// auto-repaired.
	verdictUnknown
)

func (v verdict) String() string {
	switch v {
	case verdictConsistent:
		return "consistent"
	case verdictRetryRelease:
		return "retry_release"
	case verdictFlagReview:
		return "flag_review"
	default:
		return "unknown_pair"
	}
}

type statusPair struct {
	delivery types.DeliveryStatus
	payment  types.PaymentStatus
}

// knownBad lists the inconsistencies the reconciler repairs on its own. The
// table is deliberately closed: anything outside it and outside knownGood is
// surfaced, not guessed at.
var knownBad = map[statusPair]verdict{
	// Funds moved before any courier was assigned.
	{types.StatusPending, types.PaymentCompleted}: verdictFlagReview,
	// Delivered but the escrow never released: the release is retryable.
	{types.StatusDelivered, types.PaymentPending}:    verdictRetryRelease,
	{types.StatusDelivered, types.PaymentProcessing}: verdictRetryRelease,
	// Payment failed under an active delivery: a human decides.
	{types.StatusAccepted, types.PaymentFailed}:  verdictFlagReview,
	{types.StatusInTransit, types.PaymentFailed}: verdictFlagReview,
}

// knownGood lists the combinations that are expected in normal operation.
var knownGood = map[statusPair]struct{}{
	{types.StatusPending, types.PaymentPending}:      {},
	{types.StatusPending, types.PaymentProcessing}:   {},
	{types.StatusAccepted, types.PaymentPending}:     {},
	{types.StatusAccepted, types.PaymentProcessing}:  {},
	{types.StatusPickedUp, types.PaymentPending}:     {},
	{types.StatusPickedUp, types.PaymentProcessing}:  {},
	{types.StatusInTransit, types.PaymentPending}:    {},
	{types.StatusInTransit, types.PaymentProcessing}: {},
	{types.StatusDelivered, types.PaymentCompleted}:  {},
	{types.StatusCancelled, types.PaymentRefunded}:   {},
	{types.StatusCancelled, types.PaymentPending}:    {},
}

// assess classifies one delivery/payment status pair.
func assess(delivery types.DeliveryStatus, payment types.PaymentStatus) verdict {
	pair := statusPair{delivery: delivery, payment: payment}

	if v, ok := knownBad[pair]; ok {
		return v
	}
	if _, ok := knownGood[pair]; ok {
		return verdictConsistent
	}
	return verdictUnknown
}
