package tracking

import (
	"context"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

type (
	// Ledger is the slice of the delivery record the channel needs: the
	// delivery itself plus the bounded recent-position window.
	Ledger interface {
		Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
		AppendPositionSample(ctx context.Context, sample models.PositionSample, windowSize int) error
		RecentPositions(ctx context.Context, deliveryID uuid.UUID, limit int) ([]models.PositionSample, error)
	}

	// StatusMachine applies lifecycle transitions. The channel never writes
	// statuses itself; it forwards and fans out the outcome.
	StatusMachine interface {
		Transition(ctx context.Context, deliveryID uuid.UUID, to types.DeliveryStatus, actor *models.User, notes string) (*models.Delivery, error)
	}

	// Broadcaster delivers a message to one connection. Implementations must
	// not block on slow peers.
	Broadcaster interface {
		SendTo(connID uuid.UUID, msg any) error
	}
)
