package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/kmutex"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/metrics"
	"github.com/ecodeli/delivery-tracking-system/pkg/trm"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

const serviceName = "tracking-service"

// Service owns the delivery lifecycle. Every status write goes through
// Transition, which serializes writes per delivery and keeps the audit trail
// and side effects consistent with the table in statemachine.go.
type Service struct {
	repo     Ledger
	payments PaymentLedger
	notifier NotificationSink
	repairs  RepairQueue
	trm      trm.TxManager
	locks    *kmutex.KMutex
	log      logger.Logger
}

func NewService(repo Ledger, payments PaymentLedger, notifier NotificationSink, txm trm.TxManager, locks *kmutex.KMutex, log logger.Logger) *Service {
	return &Service{
		repo:     repo,
		payments: payments,
		notifier: notifier,
		trm:      txm,
		locks:    locks,
		log:      log,
	}
}

// SetRepairQueue wires the reconciliation service in after construction; the
// two services reference each other, so one side has to be attached late.
func (s *Service) SetRepairQueue(q RepairQueue) {
	s.repairs = q
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return d, nil
}

func (s *Service) GetByTrackingCode(ctx context.Context, code string) (*models.Delivery, error) {
	d, err := s.repo.GetByTrackingCode(ctx, code)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return d, nil
}

// Transition validates and applies one status change. Invalid transitions and
// authorization failures are returned synchronously and never retried. A
// failed payment release on DELIVERED does not roll the status back; it is
// handed to the reconciliation service.
func (s *Service) Transition(ctx context.Context, deliveryID uuid.UUID, to types.DeliveryStatus, actor *models.User, notes string) (*models.Delivery, error) {
	ctx = wrap.WithAction(ctx, "delivery_transition")
	ctx = wrap.WithDeliveryID(ctx, deliveryID.String())

	// One writer per delivery. Reconciliation repairs take the same lock.
	s.locks.Lock(deliveryID.String())
	defer s.locks.Unlock(deliveryID.String())

	var (
		updated *models.Delivery
		from    types.DeliveryStatus
	)

	err := s.trm.Do(ctx, func(ctx context.Context) error {
		d, err := s.repo.Get(ctx, deliveryID)
		if err != nil {
			return wrap.Error(ctx, err)
		}

		if err := authorizeTransition(d, to, actor); err != nil {
			return wrap.Error(ctx, err)
		}

		if !CanTransition(d.Status, to) {
			metrics.InvalidTransitionsTotal.WithLabelValues(serviceName).Inc()
			return wrap.Error(ctx, &types.InvalidTransitionError{From: d.Status, To: to})
		}

		from = d.Status
		now := time.Now()

		d.Status = to
		applyTimestamp(d, to, now)

		if err := s.repo.UpdateStatus(ctx, d); err != nil {
			return wrap.Error(ctx, fmt.Errorf("could not update delivery status: %w", err))
		}

		// The audit trail is written with the status, independent of any
		// downstream side-effect outcome.
		event := models.StatusEvent{
			ID:         uuid.MustNew(),
			DeliveryID: d.ID,
			FromStatus: from,
			ToStatus:   to,
			ActorID:    actor.ID,
			Notes:      notes,
			CreatedAt:  now,
		}
		if err := s.repo.AppendStatusEvent(ctx, event); err != nil {
			return wrap.Error(ctx, fmt.Errorf("could not append status event: %w", err))
		}

		if to == types.StatusDelivered && d.CourierID != nil {
			if err := s.repo.IncrementCourierCompleted(ctx, *d.CourierID); err != nil {
				return wrap.Error(ctx, fmt.Errorf("could not increment courier stats: %w", err))
			}
		}

		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.StatusTransitionsTotal.WithLabelValues(serviceName, to.String()).Inc()

	// Side effects run after the commit: the written status is the source of
	// truth and must survive any upstream failure below.
	if to == types.StatusDelivered {
		s.releaseHeldFunds(ctx, updated)
	}

	s.notifyCounterparty(ctx, updated, to, notes)

	return updated, nil
}

// releaseHeldFunds asks the payment ledger to release the escrowed amount.
// On failure the delivery stays DELIVERED and the repair queue takes over.
func (s *Service) releaseHeldFunds(ctx context.Context, d *models.Delivery) {
	ctx = wrap.WithAction(ctx, "payment_release")

	if err := s.payments.ReleaseHeldFunds(ctx, d.ID); err != nil {
		s.log.Error(ctx, "payment release failed, deferring to reconciliation", err,
			"payment_id", d.PaymentID,
		)
		if s.repairs != nil {
			s.repairs.Enqueue(d.ID)
		}
	}
}

// notifyCounterparty sends the role- and status-specific message to the
// client. Fire and forget: the sink's availability never affects the
// transition outcome.
func (s *Service) notifyCounterparty(ctx context.Context, d *models.Delivery, to types.DeliveryStatus, notes string) {
	title, message := statusNotification(to, notes)

	n := models.Notification{
		UserID:  d.ClientID,
		Kind:    types.NotifyDeliveryUpdate,
		Title:   title,
		Message: message,
		Payload: map[string]any{
			"delivery_id":   d.ID.String(),
			"tracking_code": d.TrackingCode,
			"status":        d.Status.String(),
		},
	}

	go func() {
		ctx := wrap.WithAction(context.WithoutCancel(ctx), "notify_counterparty")
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn(ctx, "notification sink failed", "err", err.Error())
		}
	}()
}

// applyTimestamp sets the lifecycle timestamp owned by the destination
// status. Each field is written exactly once because the transition table
// never allows re-entering a state.
func applyTimestamp(d *models.Delivery, to types.DeliveryStatus, now time.Time) {
	switch to {
	case types.StatusAccepted:
		d.AcceptedAt = &now
	case types.StatusPickedUp:
		d.PickedUpAt = &now
	case types.StatusInTransit:
		d.InTransitAt = &now
	case types.StatusDelivered:
		d.DeliveredAt = &now
	case types.StatusCancelled:
		d.CancelledAt = &now
	}
}

// authorizeTransition decides whether the actor may request this transition.
// Admins may do anything; the assigned courier drives the normal lifecycle;
// the client may only cancel their own delivery.
func authorizeTransition(d *models.Delivery, to types.DeliveryStatus, actor *models.User) error {
	if actor == nil || actor.IsAnonymous() {
		return types.ErrNotAuthorized
	}

	switch actor.Role {
	case types.RoleAdmin:
		return nil
	case types.RoleCourier:
		if d.CourierID != nil && *d.CourierID == actor.ID {
			return nil
		}
	case types.RoleClient:
		if actor.ID == d.ClientID && to == types.StatusCancelled {
			return nil
		}
	}

	return types.ErrNotAuthorized
}
