package reconciler

import (
	"context"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

type (
	// Ledger is the read side the reconciler needs: one delivery, or the set
	// of deliveries whose payment state deserves a look.
	Ledger interface {
		Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
		ListInDoubt(ctx context.Context, limit int) ([]uuid.UUID, error)
	}

	// PaymentLedger mirrors the payment side: read the status, retry the
	// release or escalate to a human.
	PaymentLedger interface {
		GetPayment(ctx context.Context, deliveryID uuid.UUID) (*models.Payment, error)
		ReleaseHeldFunds(ctx context.Context, deliveryID uuid.UUID) error
		FlagForReview(ctx context.Context, deliveryID uuid.UUID, reason string) error
	}

	// NotificationSink informs the client when a stuck payment was repaired.
	NotificationSink interface {
		Notify(ctx context.Context, n models.Notification) error
	}
)
