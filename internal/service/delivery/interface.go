package delivery

import (
	"context"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

type (
	// Ledger is the persistent record of deliveries. All status writes for a
	// single delivery go through the state machine, which serializes them.
	Ledger interface {
		Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
		GetByTrackingCode(ctx context.Context, code string) (*models.Delivery, error)
		UpdateStatus(ctx context.Context, d *models.Delivery) error
		AppendStatusEvent(ctx context.Context, event models.StatusEvent) error
		IncrementCourierCompleted(ctx context.Context, courierID uuid.UUID) error
	}

	// PaymentLedger is the external payment record. The core reads status and
	// requests actions; it never touches amounts.
	PaymentLedger interface {
		GetPayment(ctx context.Context, deliveryID uuid.UUID) (*models.Payment, error)
		ReleaseHeldFunds(ctx context.Context, deliveryID uuid.UUID) error
		FlagForReview(ctx context.Context, deliveryID uuid.UUID, reason string) error
	}

	// NotificationSink receives fire-and-forget user notifications. Its
	// failures never fail a transition.
	NotificationSink interface {
		Notify(ctx context.Context, n models.Notification) error
	}

	// RepairQueue is how the state machine hands a failed payment side effect
	// to the reconciliation service.
	RepairQueue interface {
		Enqueue(deliveryID uuid.UUID)
	}
)
